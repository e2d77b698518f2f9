// Package internal implements the kiln request lifecycle.
//
// Import "github.com/kilnhq/kiln" instead; it re-exports the public API.
//
// # Lifecycle
//
// Every request passes through the same stages:
//
//  1. CORS preflight requests are answered immediately. No hook runs and no
//     context is bound.
//  2. PreParse hooks run on the raw request.
//  3. A Context is bound into the request's context.Context. Current and
//     FromContext retrieve it from any code holding that context.
//  4. PreHandle hooks run. The built-ins read cookies, load or start the
//     session and drain multipart bodies into temporary storage.
//  5. chi routes the request. Global, controller and route middleware run in
//     that order, then the handler.
//  6. OnSend hooks run right before the headers are written. The built-ins
//     queue the session cookie and flush the cookie jar.
//  7. OnResponse hooks run after the response is flushed, on a goroutine the
//     server waits for on shutdown. The built-in persists the session.
//
// Any error returned by a hook, middleware or handler, and any panic, goes to
// OnError hooks and is then translated into a response, unless one was
// already written. An *Exception is sent verbatim; anything else gets the
// fallback status with {"message", "code"}.
//
// # Controllers
//
// Controllers describe their routes with a builder:
//
//	func (c *UserController) Routes() *internal.ControllerMeta {
//	    return internal.Describe("/users").
//	        Use(requireUser).
//	        GET("/", c.list).
//	        GET("/{id}", c.show).
//	        POST("/", c.create, rateLimit)
//	}
package internal
