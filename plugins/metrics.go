package plugins

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilnhq/kiln/internal"
)

// DefaultMetricsPath is where Metrics serves by default.
const DefaultMetricsPath = "/metrics"

type metricsPlugin struct {
	gatherer prometheus.Gatherer
	path     string
}

// Metrics exposes g in the Prometheus text format. Pair it with
// kiln.WithMetrics to include request metrics. An empty path uses
// DefaultMetricsPath.
func Metrics(g prometheus.Gatherer, path string) internal.Plugin {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	if path == "" {
		path = DefaultMetricsPath
	}
	return &metricsPlugin{gatherer: g, path: path}
}

func (p *metricsPlugin) Name() string { return "metrics" }

func (p *metricsPlugin) Install(h *internal.PluginHost) error {
	h.Method(http.MethodGet, p.path, promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	return nil
}
