package plugins

import (
	"net/http"
	"time"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/pkg/health"
)

// Default health endpoint paths.
const (
	DefaultLivenessPath  = "/health/live"
	DefaultReadinessPath = "/health/ready"
)

// HealthOption configures the health plugin.
type HealthOption func(*healthPlugin)

// WithHealthPaths overrides the endpoint paths.
func WithHealthPaths(live, ready string) HealthOption {
	return func(p *healthPlugin) {
		if live != "" {
			p.live = live
		}
		if ready != "" {
			p.ready = ready
		}
	}
}

// WithCheckTimeout bounds each readiness check.
func WithCheckTimeout(d time.Duration) HealthOption {
	return func(p *healthPlugin) { p.timeout = d }
}

type healthPlugin struct {
	checks  health.Checks
	live    string
	ready   string
	timeout time.Duration
}

// Health serves a liveness endpoint and a readiness endpoint that runs checks
// in parallel.
func Health(checks health.Checks, opts ...HealthOption) internal.Plugin {
	p := &healthPlugin{
		checks: checks,
		live:   DefaultLivenessPath,
		ready:  DefaultReadinessPath,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *healthPlugin) Name() string { return "health" }

func (p *healthPlugin) Install(h *internal.PluginHost) error {
	opts := []health.Option{health.WithLogger(h.Logger())}
	if p.timeout > 0 {
		opts = append(opts, health.WithTimeout(p.timeout))
	}
	h.Method(http.MethodGet, p.live, health.LivenessHandler())
	h.Method(http.MethodGet, p.ready, health.ReadinessHandler(p.checks, opts...))
	return nil
}
