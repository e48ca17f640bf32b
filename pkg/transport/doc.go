/*
Package transport is kvdeck's HTTP client for the cluster-management API.

Every request carries the session cookie and, once the server has issued
one, the anti-forgery token from the "csrftoken" cookie echoed in the
X-CSRFToken header. Bodies are JSON in both directions.

# Cookies

The cookie jar is a net/http/cookiejar.Jar with the public suffix list,
wrapped by PersistentJar, which copies every cookie the server sets into a
CookieStore. A new process restores the jar from the store and continues
the session.

# Errors

Every failure is an *Error wrapping exactly one kind:

	401                 ErrAuthenticationLost (ErrInvalidCredentials for anonymous requests)
	403                 ErrForbidden
	404                 ErrNotFound
	400, 422            ErrValidation
	other >= 400        ErrRemote
	no reply, bad JSON  ErrTransport

	var te *transport.Error
	if errors.Is(err, transport.ErrNotFound) && errors.As(err, &te) {
		fmt.Println(te.StatusCode, te.Message)
	}

Message holds the server's explanation: the "error", "detail" or
"message" field, or the field errors of a validation reply joined in field
order.

# Auth Lost

A 401 on a request that is not Anonymous calls the hook registered with
SetAuthLostHandler. There is a single hook; registering another replaces
it. Login is sent as Anonymous, so wrong credentials never look like a lost
session.

Requests are rate limited with golang.org/x/time/rate when Config.RateLimit
is set.
*/
package transport
