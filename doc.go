// Package kiln is a request-lifecycle engine for HTTP services.
//
// A request passes a fixed sequence of hook points (pre-parse, pre-handle,
// on-send, on-response, on-error). Hooks, middleware and handlers share one
// [Context] per request, which [Current] retrieves from any context.Context
// derived from the request.
//
// # Quick Start
//
//	type UserController struct{ repo *Repo }
//
//	func (c *UserController) Routes() *kiln.ControllerMeta {
//	    return kiln.Describe("/users").
//	        GET("/{id}", c.show).
//	        POST("/", c.create, middlewares.RequireUser())
//	}
//
//	srv := kiln.New(
//	    kiln.WithControllers(&UserController{repo: repo}),
//	    kiln.WithSession(session.NewRedisStore(rdb)),
//	)
//	if err := srv.Initialise(); err != nil {
//	    return err
//	}
//	return srv.Listen(ctx)
//
// # Errors
//
// Handlers return errors. An [Exception] is sent with its status and body
// verbatim; anything else is logged and answered with the fallback status:
//
//	return kiln.NotFound("user not found")
//
// SetErrorHandling replaces the translation entirely.
//
// # Dependency injection
//
// [Module] wires the server into an fx application. Controllers and plugins
// join through value groups:
//
//	fx.New(
//	    kiln.Module,
//	    fx.Provide(kiln.AsController(NewUserController)),
//	    fx.Provide(kiln.AsPlugin(NewAuditPlugin)),
//	    kiln.Supply(kiln.WithAddress(":3000")),
//	)
package kiln
