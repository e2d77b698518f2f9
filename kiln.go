package kiln

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/pkg/config"
	"github.com/kilnhq/kiln/pkg/cookie"
	"github.com/kilnhq/kiln/pkg/logger"
	"github.com/kilnhq/kiln/pkg/session"
	"github.com/kilnhq/kiln/pkg/storage"
)

type (
	// Server drives the request lifecycle.
	Server = internal.Server

	// Context is the per-request state. It implements context.Context.
	Context = internal.Context

	// HandlerFunc handles a routed request.
	HandlerFunc = internal.HandlerFunc

	// Middleware runs before a handler; an error aborts the chain.
	Middleware = internal.Middleware

	// Controller exposes routes through a ControllerMeta.
	Controller = internal.Controller

	// ControllerMeta is the route builder returned by Describe.
	ControllerMeta = internal.ControllerMeta

	Route               = internal.Route
	ControllerAndRoutes = internal.ControllerAndRoutes
	Registry            = internal.Registry

	// Hook is a named function attached to a lifecycle point.
	Hook      = internal.Hook
	HookEvent = internal.HookEvent
	HookFunc  = internal.HookFunc
	Point     = internal.Point

	Plugin     = internal.Plugin
	PluginHost = internal.PluginHost

	// Exception is an error carrying the exact response to send.
	Exception  = internal.Exception
	PanicError = internal.PanicError
	HookError  = internal.HookError

	ErrorHandler = internal.ErrorHandler
	Response     = internal.Response
	JSONResponse = internal.JSONResponse
	TextResponse = internal.TextResponse

	Option          = internal.Option
	SessionOption   = internal.SessionOption
	SessionManager  = internal.SessionManager
	CORSConfig      = internal.CORSConfig
	MultipartLimits = internal.MultipartLimits
	CookieJar       = internal.CookieJar
	UploadedFile    = internal.UploadedFile
	ResponseWriter  = internal.ResponseWriter

	Session      = session.Session
	SessionStore = session.Store
	TempStore    = storage.TempStore

	// ContextExtractor adds request-scoped attributes to log records.
	ContextExtractor = logger.ContextExtractor
)

// Lifecycle points.
const (
	PreParse   = internal.PreParse
	PreHandle  = internal.PreHandle
	OnSend     = internal.OnSend
	OnResponse = internal.OnResponse
	OnError    = internal.OnError
)

// Multipart limits a server starts with.
const (
	DefaultMaxFileSize  = internal.DefaultMaxFileSize
	DefaultMaxFieldSize = internal.DefaultMaxFieldSize
	DefaultMaxFiles     = internal.DefaultMaxFiles
)

var (
	ErrServerAlreadyBuilt    = internal.ErrServerAlreadyBuilt
	ErrServerNotBuilt        = internal.ErrServerNotBuilt
	ErrMissingControllerMeta = internal.ErrMissingControllerMeta
	ErrInvalidRoute          = internal.ErrInvalidRoute
	ErrInvalidHook           = internal.ErrInvalidHook
	ErrContextNotBound       = internal.ErrContextNotBound
	ErrAlreadyAuthorised     = internal.ErrAlreadyAuthorised
	ErrSkipPoint             = internal.ErrSkipPoint
)

// New creates a server. Call Initialise before serving.
//
//	srv := kiln.New(
//	    kiln.WithAddress(":3000"),
//	    kiln.WithControllers(users.NewController(repo)),
//	)
//	if err := srv.Initialise(); err != nil {
//	    return err
//	}
//	return srv.Listen(ctx)
func New(opts ...Option) *Server {
	return internal.New(opts...)
}

// Describe starts route metadata rooted at base.
func Describe(base string) *ControllerMeta {
	return internal.Describe(base)
}

// NewRegistry creates an empty route registry.
var NewRegistry = internal.NewRegistry

// Current returns the Context bound to ctx and panics outside a request.
func Current(ctx context.Context) Context {
	return internal.Current(ctx)
}

// FromContext returns the Context bound to ctx, if any.
func FromContext(ctx context.Context) (Context, bool) {
	return internal.FromContext(ctx)
}

// Exceptions.

func NewException(code int, body any) *Exception { return internal.NewException(code, body) }
func BadRequest(message string) *Exception       { return internal.BadRequest(message) }
func Unauthorised(message string) *Exception     { return internal.Unauthorised(message) }
func Forbidden(message string) *Exception        { return internal.Forbidden(message) }
func NotFound(message string) *Exception         { return internal.NotFound(message) }
func PayloadTooLarge(message string) *Exception  { return internal.PayloadTooLarge(message) }
func Internal(message string) *Exception         { return internal.Internal(message) }

// Options.

func WithAddress(addr string) Option               { return internal.WithAddress(addr) }
func WithMiddleware(mws ...Middleware) Option      { return internal.WithMiddleware(mws...) }
func WithControllers(cs ...Controller) Option      { return internal.WithControllers(cs...) }
func WithPlugins(ps ...Plugin) Option              { return internal.WithPlugins(ps...) }
func WithHooks(hs ...Hook) Option                  { return internal.WithHooks(hs...) }
func WithErrorHandler(h ErrorHandler) Option       { return internal.WithErrorHandler(h) }
func WithFallbackStatus(code int) Option           { return internal.WithFallbackStatus(code) }
func WithCORS(cfg CORSConfig) Option               { return internal.WithCORS(cfg) }
func WithCookies(m *cookie.Manager) Option         { return internal.WithCookies(m) }
func WithTempStore(ts TempStore) Option            { return internal.WithTempStore(ts) }
func WithMultipartLimits(l MultipartLimits) Option { return internal.WithMultipartLimits(l) }
func WithUploadCleanup() Option                    { return internal.WithUploadCleanup() }
func WithMetrics(reg prometheus.Registerer) Option { return internal.WithMetrics(reg) }
func WithTracing(opts ...otelhttp.Option) Option   { return internal.WithTracing(opts...) }
func WithTrustProxy() Option                       { return internal.WithTrustProxy() }
func WithRegistry(r *Registry) Option              { return internal.WithRegistry(r) }
func WithShutdownHook(fn func(context.Context) error) Option {
	return internal.WithShutdownHook(fn)
}
func WithConfig(cfg config.Server) Option { return internal.WithConfig(cfg) }

// WithHTTPMiddleware adds net/http middleware that runs inside the lifecycle,
// before routing.
func WithHTTPMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return internal.WithHTTPMiddleware(mws...)
}

// WithSession enables sessions backed by store.
func WithSession(store SessionStore, opts ...SessionOption) Option {
	return internal.WithSession(store, opts...)
}

var (
	WithLogger          = internal.WithLogger
	WithShutdownTimeout = internal.WithShutdownTimeout
	WithSessionCookie   = internal.WithSessionCookie
	WithSessionTTL      = internal.WithSessionTTL
	WithSessionEntropy  = internal.WithSessionEntropy
)

// RequestIDExtractor adds "request_id" to log records of a request.
func RequestIDExtractor() ContextExtractor { return internal.RequestIDExtractor() }

// UserIDExtractor adds "user_id" to log records of an authorised request.
func UserIDExtractor() ContextExtractor { return internal.UserIDExtractor() }
