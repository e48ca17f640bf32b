/*
Package session tracks who the API session belongs to.

A Guard moves through four states:

	Unresolved ──Resolve──▶ Resolving ──me ok──▶ Authenticated
	                            │                     │
	                            └──me failed──▶ Anonymous ◀──Logout / Invalidate

Resolve asks the "me" endpoint once per guard. Concurrent callers share the
lookup through golang.org/x/sync/singleflight, and a caller that gives up
does not cancel it for the others. Any failure, network errors included,
resolves to Anonymous.

Login, Logout and Invalidate bump an epoch. A lookup that finishes after
one of them is discarded, so a slow "me" reply can never undo a login that
happened meanwhile.

HTTPAuth implements AuthAPI over transport.Client. Login refreshes the CSRF
cookie before submitting the credentials.
*/
package session
