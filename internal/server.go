package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/kilnhq/kiln/pkg/cookie"
	"github.com/kilnhq/kiln/pkg/storage"
)

const (
	defaultAddress        = ":3000"
	defaultFallbackStatus = http.StatusInternalServerError
)

// Server drives the request lifecycle: hooks, context binding, routing,
// middleware, handlers and error translation.
type Server struct {
	logger         *slog.Logger
	registry       *Registry
	errorHandler   ErrorHandler
	cors           *corsResponder
	cookies        *cookie.Manager
	sessions       *SessionManager
	temp           storage.TempStore
	registerer     prometheus.Registerer
	address        string
	tempDir        string
	middleware     []Middleware
	httpMiddleware []func(http.Handler) http.Handler
	controllers    []Controller
	plugins        []Plugin
	userHooks      []Hook
	tracingOpts    []otelhttp.Option
	shutdownHooks  []func(context.Context) error
	limits         MultipartLimits
	fallbackStatus int
	tracing        bool
	trustProxy     bool
	cleanupUploads bool

	shutdownTimeout time.Duration

	mu         sync.Mutex
	built      bool
	hooks      *Pipeline
	metrics    *metrics
	router     chi.Router
	handler    http.Handler
	groups     []ControllerAndRoutes
	pending    sync.WaitGroup
	httpServer *http.Server
	listener   net.Listener
	serveErr   chan error
}

// New creates a server. Call Initialise before serving.
func New(opts ...Option) *Server {
	s := &Server{
		logger:          slog.New(slog.DiscardHandler),
		address:         defaultAddress,
		fallbackStatus:  defaultFallbackStatus,
		shutdownTimeout: defaultShutdownTimeout,
		limits:          DefaultMultipartLimits(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = NewRegistry(s.logger)
	}
	if s.cookies == nil {
		s.cookies = cookie.New()
	}
	if s.sessions != nil {
		s.sessions.logger = s.logger
	}
	return s
}

// SetErrorHandling replaces the error translation. A nil handler restores the
// default. The returned Response is sent verbatim.
func (s *Server) SetErrorHandling(h ErrorHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = h
}

// Initialise registers built-in hooks, installs plugins and builds the route
// table. Every call after the first fails with ErrServerAlreadyBuilt.
func (s *Server) Initialise() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.built {
		return errors.WithStack(ErrServerAlreadyBuilt)
	}
	s.built = true

	m, err := newMetrics(s.registerer)
	if err != nil {
		return err
	}
	s.metrics = m
	s.hooks = newPipeline(m, s.logger)
	if err := s.registerBuiltinHooks(); err != nil {
		return err
	}
	for _, h := range s.userHooks {
		if err := s.hooks.Add(h); err != nil {
			return err
		}
	}

	if s.temp == nil {
		dir := s.tempDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "kiln-uploads")
		}
		ts, err := storage.NewLocalStore(dir)
		if err != nil {
			return errors.Wrap(err, "kiln: temporary upload store")
		}
		s.temp = ts
	}

	r := chi.NewRouter()

	host := &PluginHost{srv: s}
	for _, p := range s.plugins {
		if err := p.Install(host); err != nil {
			return errors.Wrapf(err, "kiln: install plugin %s", p.Name())
		}
		s.logger.Info("plugin installed", slog.String("plugin", p.Name()))
	}
	r.Use(s.httpMiddleware...)
	r.Use(host.uses...)
	for _, mt := range host.mounts {
		if mt.method == "" {
			r.Handle(mt.pattern, mt.handler)
		} else {
			r.Method(mt.method, mt.pattern, mt.handler)
		}
	}

	groups, err := s.registry.Build(s.controllers...)
	if err != nil {
		return err
	}
	for _, g := range groups {
		for _, rt := range g.Routes {
			if err := mountRoute(r, rt, s.routeHandler(rt)); err != nil {
				return err
			}
			s.logger.Info("route loaded",
				slog.String("method", rt.Method),
				slog.String("path", rt.Path),
				slog.String("controller", rt.Controller),
			)
		}
	}
	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	s.groups = groups
	s.router = r

	var h http.Handler = s.lifecycle(r)
	if s.trustProxy {
		h = middleware.RealIP(h)
	}
	if s.tracing {
		h = otelhttp.NewHandler(h, "kiln", s.tracingOpts...)
	}
	s.handler = h
	return nil
}

// mountRoute turns a router panic on a bad method or pattern into
// ErrInvalidRoute.
func mountRoute(r chi.Router, rt *Route, h http.HandlerFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Wrapf(ErrInvalidRoute, "controller %s: %s %s: %v", rt.Controller, rt.Method, rt.Path, p)
		}
	}()
	r.Method(rt.Method, rt.Path, h)
	return nil
}

// Handler returns the initialised handler. Before Initialise every request
// gets 503.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return s.handler
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Handler().ServeHTTP(w, r)
}

// Registry returns the route registry.
func (s *Server) Registry() *Registry { return s.registry }

// Routes returns the registered routes in registration order.
func (s *Server) Routes() []*Route { return s.registry.Routes() }

// Controllers returns the resolved controllers. Empty before Initialise.
func (s *Server) Controllers() []ControllerAndRoutes { return s.groups }

// Hooks returns the hook pipeline. Nil before Initialise.
func (s *Server) Hooks() *Pipeline { return s.hooks }

func (s *Server) routeHandler(rt *Route) http.HandlerFunc {
	chain := make([]Middleware, 0, len(s.middleware)+len(rt.Middleware))
	chain = append(chain, s.middleware...)
	chain = append(chain, rt.Middleware...)

	return func(w http.ResponseWriter, r *http.Request) {
		c := Current(r.Context()).(*requestContext)
		c.adopt(w, r, rt)
		if err := runChain(c, chain); err != nil {
			s.fail(c, err)
			return
		}
		if c.rw.Written() {
			return
		}
		if err := rt.Handler(c); err != nil {
			s.fail(c, err)
		}
	}
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	c := Current(r.Context()).(*requestContext)
	c.adopt(w, r, nil)
	s.fail(c, NotFound("Route "+r.Method+":"+r.URL.Path+" not found"))
}

func (s *Server) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	c := Current(r.Context()).(*requestContext)
	c.adopt(w, r, nil)
	s.fail(c, MethodNotAllowed("Method "+r.Method+" not allowed on "+r.URL.Path))
}

// fail reports err to on-error hooks and translates it, unless a response
// was already written or an earlier error of this request was translated.
// A custom handler replaces the default translation: when it returns nil
// without writing, only the fallback status is sent.
func (s *Server) fail(c *requestContext, err error) {
	s.report(c, err)
	if c.translated || c.rw.Written() {
		return
	}
	c.translated = true

	s.mu.Lock()
	handler := s.errorHandler
	s.mu.Unlock()

	var resp Response
	if handler == nil {
		resp = s.defaultResponse(err)
	} else {
		resp = handler(err, c)
		if c.rw.Written() {
			// The handler answered on its own.
			return
		}
		if resp == nil {
			c.out.WriteHeader(s.fallbackStatus)
			return
		}
	}
	if sendErr := resp.Send(c.out); sendErr != nil {
		s.logger.WarnContext(c.request.Context(), "error response not sent",
			slog.String("error", sendErr.Error()),
		)
	}
}

func (s *Server) report(c *requestContext, err error) {
	e := c.event(OnError)
	e.Err = err
	s.hooks.runErrors(e)
}

func (s *Server) defaultResponse(err error) Response {
	if ex, ok := AsException(err); ok {
		return JSONResponse{Status: ex.Code, Body: ex.Body}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return JSONResponse{
			Status: http.StatusGatewayTimeout,
			Body:   map[string]any{"message": "request timed out", "code": http.StatusGatewayTimeout},
		}
	}
	return JSONResponse{
		Status: s.fallbackStatus,
		Body:   map[string]any{"message": err.Error(), "code": s.fallbackStatus},
	}
}
