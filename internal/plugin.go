package internal

import (
	"context"
	"log/slog"
	"net/http"
)

// Plugin extends the server during Initialise.
type Plugin interface {
	Name() string
	Install(h *PluginHost) error
}

type mount struct {
	handler http.Handler
	method  string
	pattern string
}

// PluginHost is what a plugin can touch while being installed.
// Engine middleware and mounts are applied after every plugin is installed,
// so installation order does not matter for them.
type PluginHost struct {
	srv    *Server
	uses   []func(http.Handler) http.Handler
	mounts []mount
}

// Logger returns the server logger.
func (h *PluginHost) Logger() *slog.Logger { return h.srv.logger }

// Registry returns the route registry.
func (h *PluginHost) Registry() *Registry { return h.srv.registry }

// AddHook registers a lifecycle hook.
func (h *PluginHost) AddHook(hk Hook) error { return h.srv.hooks.Add(hk) }

// Use adds net/http middleware to the engine. It runs inside the lifecycle,
// after the context is bound, for routed and mounted requests alike.
func (h *PluginHost) Use(mws ...func(http.Handler) http.Handler) {
	h.uses = append(h.uses, mws...)
}

// Mount serves every method under pattern with handler.
func (h *PluginHost) Mount(pattern string, handler http.Handler) {
	h.mounts = append(h.mounts, mount{pattern: pattern, handler: handler})
}

// Method serves one method on pattern with handler.
func (h *PluginHost) Method(method, pattern string, handler http.Handler) {
	h.mounts = append(h.mounts, mount{method: method, pattern: pattern, handler: handler})
}

// OnShutdown registers fn to run after the server has drained.
func (h *PluginHost) OnShutdown(fn func(context.Context) error) {
	h.srv.shutdownHooks = append(h.srv.shutdownHooks, fn)
}
