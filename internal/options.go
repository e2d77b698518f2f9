package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kilnhq/kiln/pkg/config"
	"github.com/kilnhq/kiln/pkg/cookie"
	"github.com/kilnhq/kiln/pkg/session"
	"github.com/kilnhq/kiln/pkg/storage"
)

// Option configures the Server.
type Option func(*Server)

// WithAddress sets the listen address. Defaults to ":3000".
func WithAddress(addr string) Option {
	return func(s *Server) {
		s.address = addr
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMiddleware adds global middleware. It runs before controller and
// route middleware, in the order given.
func WithMiddleware(mws ...Middleware) Option {
	return func(s *Server) {
		s.middleware = append(s.middleware, mws...)
	}
}

// WithHTTPMiddleware adds net/http middleware to the engine. It runs after
// the context is bound and before routing, so Current works inside it.
func WithHTTPMiddleware(mws ...func(http.Handler) http.Handler) Option {
	return func(s *Server) {
		s.httpMiddleware = append(s.httpMiddleware, mws...)
	}
}

// WithControllers registers controllers.
func WithControllers(cs ...Controller) Option {
	return func(s *Server) {
		s.controllers = append(s.controllers, cs...)
	}
}

// WithPlugins registers plugins. They are installed in order during Initialise.
func WithPlugins(ps ...Plugin) Option {
	return func(s *Server) {
		s.plugins = append(s.plugins, ps...)
	}
}

// WithHooks registers lifecycle hooks. They run after the built-in hooks of
// the same point.
func WithHooks(hs ...Hook) Option {
	return func(s *Server) {
		s.userHooks = append(s.userHooks, hs...)
	}
}

// WithErrorHandler replaces the default error translation.
func WithErrorHandler(h ErrorHandler) Option {
	return func(s *Server) {
		s.errorHandler = h
	}
}

// WithFallbackStatus sets the status sent for errors that are not Exceptions.
// Defaults to 500.
func WithFallbackStatus(code int) Option {
	return func(s *Server) {
		if code >= 400 && code <= 599 {
			s.fallbackStatus = code
		}
	}
}

// WithCORS enables the CORS responder.
func WithCORS(cfg CORSConfig) Option {
	return func(s *Server) {
		s.cors = newCORSResponder(cfg)
	}
}

// WithCookies sets the cookie manager used by the jar.
func WithCookies(m *cookie.Manager) Option {
	return func(s *Server) {
		s.cookies = m
	}
}

// WithSession enables sessions backed by store.
func WithSession(store session.Store, opts ...SessionOption) Option {
	return func(s *Server) {
		s.sessions = NewSessionManager(store, opts...)
	}
}

// WithTempStore sets where multipart files are drained to.
// Defaults to a directory under os.TempDir.
func WithTempStore(ts storage.TempStore) Option {
	return func(s *Server) {
		s.temp = ts
	}
}

// WithMultipartLimits bounds multipart draining.
func WithMultipartLimits(l MultipartLimits) Option {
	return func(s *Server) {
		s.limits = l
	}
}

// WithUploadCleanup removes drained files once on-response has run.
func WithUploadCleanup() Option {
	return func(s *Server) {
		s.cleanupUploads = true
	}
}

// WithMetrics registers the request metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(s *Server) {
		s.registerer = reg
	}
}

// WithTracing wraps the engine with an OpenTelemetry handler.
func WithTracing(opts ...otelhttp.Option) Option {
	return func(s *Server) {
		s.tracing = true
		s.tracingOpts = append(s.tracingOpts, opts...)
	}
}

// WithTrustProxy makes IP honour X-Forwarded-For and X-Real-IP.
func WithTrustProxy() Option {
	return func(s *Server) {
		s.trustProxy = true
	}
}

// WithRegistry sets the route registry, for sharing it with other components.
func WithRegistry(r *Registry) Option {
	return func(s *Server) {
		if r != nil {
			s.registry = r
		}
	}
}

// WithShutdownTimeout bounds graceful shutdown in Listen. Defaults to 30s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

// WithShutdownHook registers fn to run after the server has drained.
// Hooks run in registration order.
func WithShutdownHook(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.shutdownHooks = append(s.shutdownHooks, fn)
	}
}

// WithConfig applies a loaded server configuration.
// Sessions enabled in config without WithSession use an in-memory store.
func WithConfig(cfg config.Server) Option {
	return func(s *Server) {
		s.address = cfg.Addr()
		if cfg.ShutdownTimeout > 0 {
			s.shutdownTimeout = cfg.ShutdownTimeout
		}
		if cfg.FallbackStatus != 0 {
			WithFallbackStatus(cfg.FallbackStatus)(s)
		}
		s.trustProxy = cfg.TrustProxy

		if len(cfg.CORS.Origins) > 0 {
			s.cors = newCORSResponder(CORSConfig{
				Origins:          cfg.CORS.Origins,
				Methods:          cfg.CORS.Methods,
				Headers:          cfg.CORS.Headers,
				ExposedHeaders:   cfg.CORS.ExposedHeaders,
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           cfg.CORS.MaxAge,
				PreflightStatus:  cfg.CORS.PreflightStatus,
			})
		}

		s.limits = MultipartLimits{
			MaxFileSize:  cfg.Multipart.MaxFileSize,
			MaxFieldSize: cfg.Multipart.MaxFieldSize,
			MaxFiles:     cfg.Multipart.MaxFiles,
		}
		s.tempDir = cfg.Multipart.TempDir

		cookieOpts := []cookie.Option{
			cookie.WithDomain(cfg.Cookies.Domain),
			cookie.WithSecure(cfg.Cookies.Secure),
			cookie.WithSameSite(cfg.Cookies.SameSiteMode()),
			cookie.WithPlain(cfg.Cookies.Plain...),
		}
		if cfg.Cookies.Path != "" {
			cookieOpts = append(cookieOpts, cookie.WithPath(cfg.Cookies.Path))
		}
		if cfg.Cookies.Secret != "" {
			cookieOpts = append(cookieOpts, cookie.WithSecret(cfg.Cookies.Secret))
		}
		s.cookies = cookie.New(cookieOpts...)

		if cfg.Session.Enabled {
			sessOpts := []SessionOption{
				WithSessionCookie(cfg.Session.CookieName),
				WithSessionTTL(cfg.Session.TTL),
			}
			if s.sessions != nil {
				for _, opt := range sessOpts {
					opt(s.sessions)
				}
			} else {
				s.sessions = NewSessionManager(session.NewMemoryStore(), sessOpts...)
			}
		}
	}
}
