package plugins_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/pkg/health"
	"github.com/kilnhq/kiln/pkg/storage"
	"github.com/kilnhq/kiln/plugins"
)

type controller struct{}

func (controller) Routes() *internal.ControllerMeta {
	return internal.Describe("/").
		GET("/", func(c internal.Context) error { return c.String(http.StatusOK, "ok") }).
		GET("/framed", func(c internal.Context) error {
			c.SetHeader("X-Frame-Options", "DENY")
			return c.NoContent(http.StatusOK)
		})
}

func newServer(t *testing.T, opts ...internal.Option) *internal.Server {
	t.Helper()
	ts, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	opts = append(opts, internal.WithTempStore(ts), internal.WithControllers(controller{}))
	srv := internal.New(opts...)
	require.NoError(t, srv.Initialise())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func get(srv *internal.Server, target string, header ...string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	for i := 0; i+1 < len(header); i += 2 {
		r.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)
	return rec
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	srv := newServer(t, internal.WithPlugins(plugins.SecurityHeaders(
		plugins.WithCSP("default-src 'self'"),
		plugins.WithHSTS(time.Hour),
	)))

	rec := get(srv, "/")
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "default-src 'self'", rec.Header().Get("Content-Security-Policy"))
	require.Equal(t, "max-age=3600; includeSubDomains", rec.Header().Get("Strict-Transport-Security"))

	rec = get(srv, "/framed")
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = get(srv, "/missing")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealth(t *testing.T) {
	t.Parallel()

	healthy := true
	srv := newServer(t, internal.WithPlugins(plugins.Health(health.Checks{
		"db": func(context.Context) error {
			if !healthy {
				return errors.New("db down")
			}
			return nil
		},
	}, plugins.WithCheckTimeout(time.Second))))

	rec := get(srv, plugins.DefaultLivenessPath)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(srv, plugins.DefaultReadinessPath, "Accept", "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"db"`)

	healthy = false
	rec = get(srv, plugins.DefaultReadinessPath)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	require.Len(t, srv.Routes(), 2, "plugin endpoints are not controller routes")
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	srv := newServer(t,
		internal.WithMetrics(reg),
		internal.WithPlugins(plugins.Metrics(reg, "")),
	)

	require.Equal(t, http.StatusOK, get(srv, "/").Code)
	require.NoError(t, srv.Shutdown(context.Background()))

	rec := get(srv, plugins.DefaultMetricsPath)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(t, strings.Contains(body, `kiln_http_requests_total{method="GET",route="/",status="200"} 1`), body)
	require.Contains(t, body, "kiln_hook_duration_seconds")
}
