package internal

import (
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	hooks    *prometheus.HistogramVec
	uploads  prometheus.Counter
	sessions *prometheus.CounterVec
}

// newMetrics creates the collectors and registers them with reg when it is
// not nil. Collectors already registered by another server are reused.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "http_requests_total",
			Help:      "Requests served, by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Name:      "http_request_duration_seconds",
			Help:      "Time from receipt to flushed response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		hooks: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kiln",
			Name:      "hook_duration_seconds",
			Help:      "Time spent in lifecycle hooks.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"point"}),
		uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "uploads_total",
			Help:      "Files drained into temporary storage.",
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiln",
			Name:      "session_saves_total",
			Help:      "Session persistence attempts, by result.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.requests, err = register(reg, m.requests); err != nil {
		return nil, err
	}
	if m.latency, err = register(reg, m.latency); err != nil {
		return nil, err
	}
	if m.hooks, err = register(reg, m.hooks); err != nil {
		return nil, err
	}
	if m.uploads, err = register(reg, m.uploads); err != nil {
		return nil, err
	}
	if m.sessions, err = register(reg, m.sessions); err != nil {
		return nil, err
	}
	return m, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, errors.Wrap(err, "kiln: register metrics")
	}
	return c, nil
}

func (m *metrics) observeRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *metrics) observeHook(pt Point, d time.Duration) {
	m.hooks.WithLabelValues(pt.String()).Observe(d.Seconds())
}

func (m *metrics) upload() {
	m.uploads.Inc()
}

func (m *metrics) sessionSave(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.sessions.WithLabelValues(result).Inc()
}
