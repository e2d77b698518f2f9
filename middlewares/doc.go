// Package middlewares provides route middleware for kiln servers.
//
// # Authentication
//
// Authenticate resolves the user through an auth.Provider and authorises the
// request. Requests without valid credentials fail with a 401 Exception:
//
//	jwt, _ := auth.NewJWT(secret, auth.WithResolver(users.Find))
//	kiln.Describe("/account").
//	    Use(middlewares.Authenticate(jwt)).
//	    GET("/", c.show)
//
// SessionUser authorises requests whose session carries a user id. Pair it
// with RequireUser to reject anonymous requests.
//
// # Request ID
//
// RequestID echoes the request id in a response header. The id is taken from
// X-Request-ID when the client sent one.
//
// # Timeout
//
// Timeout is net/http middleware that puts a deadline on the request context.
// Install it with kiln.WithHTTPMiddleware. Handlers that return the context
// error are answered with 504.
package middlewares
