// Package navigation admits or redirects moves between named routes
// based on the session. Protected routes send anonymous sessions to
// "login"; "login" sends authenticated sessions to "dashboard". The Gate
// is also the transport's auth-lost hook.
package navigation
