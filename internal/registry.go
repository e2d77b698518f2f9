package internal

import (
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
)

// Controller exposes its routes through a ControllerMeta.
type Controller interface {
	Routes() *ControllerMeta
}

// Route is one method and path bound to a handler. It is immutable once the
// server is initialised.
type Route struct {
	Handler    HandlerFunc
	Method     string
	Path       string
	Controller string
	Middleware []Middleware
}

// ControllerAndRoutes is a controller with its resolved routes.
type ControllerAndRoutes struct {
	Controller Controller
	Name       string
	Routes     []*Route
}

type routeEntry struct {
	handler    HandlerFunc
	method     string
	path       string
	middleware []Middleware
}

// ControllerMeta describes a controller's routes. Start one with Describe.
type ControllerMeta struct {
	base       string
	name       string
	middleware []Middleware
	entries    []routeEntry
}

// Describe starts route metadata rooted at base.
func Describe(base string) *ControllerMeta {
	return &ControllerMeta{base: base}
}

// Name overrides the controller's display name.
func (m *ControllerMeta) Name(name string) *ControllerMeta {
	m.name = name
	return m
}

// Use adds middleware that runs before every route's own middleware.
func (m *ControllerMeta) Use(mws ...Middleware) *ControllerMeta {
	m.middleware = append(m.middleware, mws...)
	return m
}

func (m *ControllerMeta) GET(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodGet, p, h, mws...)
}

func (m *ControllerMeta) POST(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodPost, p, h, mws...)
}

func (m *ControllerMeta) PUT(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodPut, p, h, mws...)
}

func (m *ControllerMeta) PATCH(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodPatch, p, h, mws...)
}

func (m *ControllerMeta) DELETE(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodDelete, p, h, mws...)
}

func (m *ControllerMeta) HEAD(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodHead, p, h, mws...)
}

func (m *ControllerMeta) OPTIONS(p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	return m.Handle(http.MethodOptions, p, h, mws...)
}

// Handle adds a route for any method.
func (m *ControllerMeta) Handle(method, p string, h HandlerFunc, mws ...Middleware) *ControllerMeta {
	m.entries = append(m.entries, routeEntry{
		handler:    h,
		method:     strings.ToUpper(method),
		path:       p,
		middleware: mws,
	})
	return m
}

var knownMethods = map[string]struct{}{
	http.MethodGet: {}, http.MethodPost: {}, http.MethodPut: {}, http.MethodPatch: {},
	http.MethodDelete: {}, http.MethodHead: {}, http.MethodOptions: {},
	http.MethodConnect: {}, http.MethodTrace: {},
}

// Registry resolves controllers into routes and records every registered
// path in order. Duplicates are kept.
type Registry struct {
	logger *slog.Logger
	routes []*Route
	mu     sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{logger: logger}
}

// Build resolves the routes of every controller. Nothing is recorded unless
// every controller resolves.
func (r *Registry) Build(controllers ...Controller) ([]ControllerAndRoutes, error) {
	out := make([]ControllerAndRoutes, 0, len(controllers))
	for _, ctrl := range controllers {
		group, err := r.resolve(ctrl)
		if err != nil {
			return nil, err
		}
		out = append(out, group)
	}
	for _, group := range out {
		for _, rt := range group.Routes {
			r.record(rt)
		}
	}
	return out, nil
}

func (r *Registry) resolve(ctrl Controller) (ControllerAndRoutes, error) {
	typeName := controllerTypeName(ctrl)
	if ctrl == nil {
		return ControllerAndRoutes{}, errors.Wrap(ErrMissingControllerMeta, "nil controller")
	}
	meta := ctrl.Routes()
	if meta == nil {
		return ControllerAndRoutes{}, errors.Wrapf(ErrMissingControllerMeta, "controller %s", typeName)
	}
	name := meta.name
	if name == "" {
		name = typeName
	}

	group := ControllerAndRoutes{Controller: ctrl, Name: name}
	for _, e := range meta.entries {
		if _, ok := knownMethods[e.method]; !ok {
			return ControllerAndRoutes{}, errors.Wrapf(ErrInvalidRoute, "controller %s: method %q", name, e.method)
		}
		if e.handler == nil {
			return ControllerAndRoutes{}, errors.Wrapf(ErrInvalidRoute, "controller %s: %s %s has no handler", name, e.method, e.path)
		}
		full := joinPath(meta.base, e.path)
		if err := validatePattern(full); err != nil {
			return ControllerAndRoutes{}, errors.Wrapf(ErrInvalidRoute, "controller %s: %s %s: %v", name, e.method, full, err)
		}
		mws := make([]Middleware, 0, len(meta.middleware)+len(e.middleware))
		mws = append(mws, meta.middleware...)
		mws = append(mws, e.middleware...)
		rt := &Route{
			Handler:    e.handler,
			Method:     e.method,
			Path:       full,
			Controller: name,
			Middleware: mws,
		}
		group.Routes = append(group.Routes, rt)
	}
	return group, nil
}

// record appends rt, logging when the method and path were already taken.
func (r *Registry) record(rt *Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.routes {
		if existing.Method == rt.Method && existing.Path == rt.Path {
			r.logger.Warn("duplicate route path",
				slog.String("method", rt.Method),
				slog.String("path", rt.Path),
				slog.String("controller", rt.Controller),
				slog.String("previous", existing.Controller),
			)
			break
		}
	}
	r.routes = append(r.routes, rt)
}

// HasPathRegistered reports whether any route uses p.
func (r *Registry) HasPathRegistered(p string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rt := range r.routes {
		if rt.Path == p {
			return true
		}
	}
	return false
}

// RoutePaths returns every registered path in registration order.
func (r *Registry) RoutePaths() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	paths := make([]string, len(r.routes))
	for i, rt := range r.routes {
		paths[i] = rt.Path
	}
	return paths
}

// Routes returns every registered route in registration order.
func (r *Registry) Routes() []*Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Route, len(r.routes))
	copy(out, r.routes)
	return out
}

// validatePattern rejects patterns the router would panic on: unbalanced
// braces, empty parameters, and a wildcard before the end. Braces may nest
// inside a parameter's regexp.
func validatePattern(p string) error {
	depth := 0
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '{':
			if depth == 0 && i+1 < len(p) && p[i+1] == '}' {
				return errors.New("empty parameter")
			}
			depth++
		case '}':
			if depth == 0 {
				return errors.New("unbalanced braces")
			}
			depth--
		case '*':
			if depth == 0 && i != len(p)-1 {
				return errors.New("wildcard must be last")
			}
		}
	}
	if depth != 0 {
		return errors.New("unbalanced braces")
	}
	return nil
}

func joinPath(base, p string) string {
	joined := path.Join("/", base, p)
	if p != "/" && strings.HasSuffix(p, "/") && joined != "/" {
		joined += "/"
	}
	return joined
}

func controllerTypeName(ctrl Controller) string {
	if ctrl == nil {
		return "<nil>"
	}
	t := reflect.TypeOf(ctrl)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return fmt.Sprintf("%T", ctrl)
	}
	return t.Name()
}
