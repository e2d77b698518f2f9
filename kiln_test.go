package kiln_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/kilnhq/kiln"
	"github.com/kilnhq/kiln/pkg/logger"
)

type greeter struct {
	greeting string
}

func newGreeter() *greeter { return &greeter{greeting: "hello"} }

func (g *greeter) Routes() *kiln.ControllerMeta {
	return kiln.Describe("/greet").
		GET("/{name}", func(c kiln.Context) error {
			return c.String(http.StatusOK, g.greeting+" "+c.Param("name"))
		}).
		GET("/log", func(c kiln.Context) error {
			c.LogInfo("greeting logged")
			return c.NoContent(http.StatusNoContent)
		})
}

type stampPlugin struct{}

func newStampPlugin() *stampPlugin { return &stampPlugin{} }

func (stampPlugin) Name() string { return "stamp" }

func (stampPlugin) Install(h *kiln.PluginHost) error {
	return h.AddHook(kiln.Hook{Name: "stamp", Point: kiln.OnSend, Fn: func(e *kiln.HookEvent) error {
		e.Response.Header().Set("X-Stamp", "kiln")
		return nil
	}})
}

func TestModule(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(logger.WithExtractors(slog.NewJSONHandler(&buf, nil), kiln.RequestIDExtractor()))

	var srv *kiln.Server
	app := fxtest.New(t,
		kiln.Module,
		fx.Supply(log),
		fx.Provide(kiln.AsController(newGreeter)),
		fx.Provide(kiln.AsPlugin(newStampPlugin)),
		kiln.Supply(kiln.WithAddress("127.0.0.1:0"), kiln.WithTempStore(newTempStore(t))),
		fx.Populate(&srv),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.Len(t, srv.Routes(), 2)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/greet/ada", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "hello ada", rec.Body.String())
	require.Equal(t, "kiln", rec.Header().Get("X-Stamp"))

	resp, err := http.Get("http://" + srv.Addr() + "/greet/bob")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	r := httptest.NewRequest(http.MethodGet, "/greet/log", nil)
	r.Header.Set("X-Request-ID", "req-42")
	srv.Handler().ServeHTTP(httptest.NewRecorder(), r)
	require.Contains(t, buf.String(), `"request_id":"req-42"`)
}

func TestModule_InitialiseFailureStopsApp(t *testing.T) {
	t.Parallel()

	app := fx.New(
		fx.NopLogger,
		kiln.Module,
		fx.Provide(kiln.AsController(func() *nilMeta { return &nilMeta{} })),
		fx.Invoke(func(*kiln.Server) {}),
	)
	require.ErrorContains(t, app.Err(), "no route metadata")
}

type nilMeta struct{}

func (nilMeta) Routes() *kiln.ControllerMeta { return nil }

func TestCurrent_OutsideRequest(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { kiln.Current(context.Background()) })
}
