package internal_test

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/kilnhq/kiln/internal"
)

type testController struct {
	meta *internal.ControllerMeta
}

func (c *testController) Routes() *internal.ControllerMeta { return c.meta }

func newServer(t *testing.T, opts ...internal.Option) *internal.Server {
	t.Helper()
	opts = append([]internal.Option{internal.WithTempStore(newTempStore(t))}, opts...)
	srv := internal.New(opts...)
	require.NoError(t, srv.Initialise())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func serve(srv *internal.Server, r *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, r)
	return rec
}

// drain waits for on-response work of completed requests.
func drain(t *testing.T, srv *internal.Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServer_InitialiseTwice(t *testing.T) {
	t.Parallel()

	srv := internal.New(internal.WithTempStore(newTempStore(t)))
	require.NoError(t, srv.Initialise())

	for range 3 {
		err := srv.Initialise()
		require.ErrorIs(t, err, internal.ErrServerAlreadyBuilt)
	}
}

func TestServer_ListenBeforeInitialise(t *testing.T) {
	t.Parallel()

	srv := internal.New()
	err := srv.Listen(context.Background())
	require.ErrorIs(t, err, internal.ErrServerNotBuilt)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_MissingControllerMeta(t *testing.T) {
	t.Parallel()

	srv := internal.New(
		internal.WithTempStore(newTempStore(t)),
		internal.WithControllers(&testController{}),
	)
	err := srv.Initialise()
	require.ErrorIs(t, err, internal.ErrMissingControllerMeta)
	require.Contains(t, err.Error(), "testController")
}

func TestServer_ErrorTranslation(t *testing.T) {
	t.Parallel()

	ctrl := &testController{meta: internal.Describe("/").
		GET("/boom", func(internal.Context) error { return errors.New("boom") }).
		GET("/teapot", func(internal.Context) error {
			return internal.NewException(http.StatusTeapot, map[string]any{"brew": "tea"})
		}).
		GET("/panic", func(internal.Context) error { panic("kaboom") }).
		GET("/late", func(c internal.Context) error {
			require.NoError(t, c.String(http.StatusOK, "done"))
			return errors.New("after write")
		}),
	}

	t.Run("generic error uses fallback status", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, map[string]any{"message": "boom", "code": float64(500)}, decodeBody(t, rec))
	})

	t.Run("configured fallback status", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl), internal.WithFallbackStatus(http.StatusBadGateway))

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Equal(t, float64(502), decodeBody(t, rec)["code"])
	})

	t.Run("exception is sent verbatim", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/teapot", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
		require.Equal(t, map[string]any{"brew": "tea"}, decodeBody(t, rec))
	})

	t.Run("panic is recovered", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/panic", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		require.Equal(t, "panic: kaboom", decodeBody(t, rec)["message"])
	})

	t.Run("error after write keeps the response", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/late", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "done", rec.Body.String())
	})

	t.Run("custom handler response is sent verbatim", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))
		srv.SetErrorHandling(func(err error, _ internal.Context) internal.Response {
			return internal.TextResponse{Status: http.StatusServiceUnavailable, Body: "sorry: " + err.Error()}
		})

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.Equal(t, "sorry: boom", rec.Body.String())
	})

	t.Run("custom handler writing itself is not followed by the default", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))
		srv.SetErrorHandling(func(_ error, c internal.Context) internal.Response {
			require.NoError(t, c.String(http.StatusTeapot, "custom"))
			return nil
		})

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
		require.Equal(t, "custom", rec.Body.String())
	})

	t.Run("custom handler returning nil sends the bare fallback status", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl), internal.WithFallbackStatus(http.StatusBadGateway))
		srv.SetErrorHandling(func(error, internal.Context) internal.Response { return nil })

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/boom", nil))
		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.Empty(t, rec.Body.String())
	})

	t.Run("unknown route", func(t *testing.T) {
		t.Parallel()
		srv := newServer(t, internal.WithControllers(ctrl))

		rec := serve(srv, httptest.NewRequest(http.MethodGet, "/nope", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		require.Equal(t, "Route GET:/nope not found", decodeBody(t, rec)["message"])
	})
}

func TestServer_UnauthorisedMiddleware(t *testing.T) {
	t.Parallel()

	var handlerCalled bool
	deny := func(internal.Context) error {
		return internal.Unauthorised("login required")
	}
	ctrl := &testController{meta: internal.Describe("/account").
		GET("/", func(c internal.Context) error {
			handlerCalled = true
			return c.NoContent(http.StatusOK)
		}, deny),
	}
	srv := newServer(t, internal.WithControllers(ctrl))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/account", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, map[string]any{"message": "login required", "code": float64(401)}, decodeBody(t, rec))
	require.False(t, handlerCalled)
}

func TestServer_MiddlewareOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var calls []string
	record := func(name string) internal.Middleware {
		return func(internal.Context) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, name)
			return nil
		}
	}
	ctrl := &testController{meta: internal.Describe("/").
		Use(record("controller")).
		GET("/", func(c internal.Context) error {
			record("handler")(c)
			return c.NoContent(http.StatusNoContent)
		}, record("route")),
	}
	srv := newServer(t,
		internal.WithControllers(ctrl),
		internal.WithMiddleware(record("global")),
	)

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"global", "controller", "route", "handler"}, calls)
}

func TestServer_MiddlewareWriteStopsChain(t *testing.T) {
	t.Parallel()

	var later bool
	ctrl := &testController{meta: internal.Describe("/").
		GET("/", func(c internal.Context) error {
			later = true
			return nil
		},
			func(c internal.Context) error { return c.Redirect(http.StatusSeeOther, "/login") },
			func(internal.Context) error { later = true; return nil },
		),
	}
	srv := newServer(t, internal.WithControllers(ctrl))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
	require.False(t, later)
}

func TestServer_ContextIdentity(t *testing.T) {
	t.Parallel()

	type key struct{}
	var mu sync.Mutex
	seen := map[string][]internal.Context{}
	remember := func(id string, c internal.Context) {
		mu.Lock()
		defer mu.Unlock()
		seen[id] = append(seen[id], c)
	}

	hook := internal.Hook{Name: "remember", Point: internal.PreHandle, Fn: func(e *internal.HookEvent) error {
		remember(e.Request.Header.Get("X-Request-ID"), internal.Current(e.Request.Context()))
		return nil
	}}
	ctrl := &testController{meta: internal.Describe("/").
		GET("/", func(c internal.Context) error {
			remember(c.ID(), internal.Current(c.Request().Context()))
			remember(c.ID(), internal.Current(c))
			c.Set(key{}, c.ID())
			return c.String(http.StatusOK, internal.ContextValue[string](c, key{}))
		}, func(c internal.Context) error {
			remember(c.ID(), c)
			return nil
		}),
	}
	srv := newServer(t, internal.WithControllers(ctrl), internal.WithHooks(hook))

	var wg sync.WaitGroup
	bodies := make(map[string]string)
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.Header.Set("X-Request-ID", id)
			rec := serve(srv, r)
			mu.Lock()
			bodies[id] = rec.Body.String()
			mu.Unlock()
		}()
	}
	wg.Wait()

	for id, body := range bodies {
		require.Equal(t, id, body)
	}

	require.Len(t, seen, 6)
	for id, ctxs := range seen {
		require.Len(t, ctxs, 4, id)
		for _, c := range ctxs {
			require.Same(t, ctxs[0], c)
			require.Equal(t, id, c.ID())
		}
	}
}

func TestCurrent_Unbound(t *testing.T) {
	t.Parallel()

	require.PanicsWithValue(t, internal.ErrContextNotBound, func() {
		internal.Current(context.Background())
	})
	_, ok := internal.FromContext(context.Background())
	require.False(t, ok)
}

func TestServer_AuthoriseAs(t *testing.T) {
	t.Parallel()

	ctrl := &testController{meta: internal.Describe("/").
		GET("/", func(c internal.Context) error {
			require.True(t, c.IsAuthenticated())
			err := c.AuthoriseAs(subject("other"))
			require.ErrorIs(t, err, internal.ErrAlreadyAuthorised)
			c.Reauthorise(subject("root"))
			return c.String(http.StatusOK, c.User().AuthID())
		}, func(c internal.Context) error {
			require.False(t, c.IsAuthenticated())
			return c.AuthoriseAs(subject("alice"))
		}),
	}
	srv := newServer(t, internal.WithControllers(ctrl))

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "root", rec.Body.String())
}

type subject string

func (s subject) AuthID() string { return string(s) }

func TestServer_Input(t *testing.T) {
	t.Parallel()

	ctrl := &testController{meta: internal.Describe("/").
		POST("/search", func(c internal.Context) error {
			return c.JSON(http.StatusOK, map[string]any{
				"q":      c.Input("q", ""),
				"page":   internal.Input(c, "page", 1),
				"draft":  c.Boolean("draft", false),
				"shared": c.Boolean("shared", true),
				"sort":   c.Input("sort", "recent"),
			})
		}),
	}
	srv := newServer(t, internal.WithControllers(ctrl))

	r := httptest.NewRequest(http.MethodPost, "/search?page=3&draft=on", strings.NewReader("q=kiln&shared=no"))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serve(srv, r)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]any{
		"q": "kiln", "page": float64(3), "draft": true, "shared": false, "sort": "recent",
	}, decodeBody(t, rec))
}

func TestServer_BindJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Email string `json:"email" validate:"required,email"`
	}
	ctrl := &testController{meta: internal.Describe("/").
		POST("/", func(c internal.Context) error {
			var p payload
			if err := c.BindJSON(&p); err != nil {
				return err
			}
			return c.String(http.StatusOK, p.Email)
		}),
	}
	srv := newServer(t, internal.WithControllers(ctrl))

	rec := serve(srv, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "a@b.co", rec.Body.String())

	rec = serve(srv, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope"}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, map[string]any{"Email": "email"}, decodeBody(t, rec)["errors"])

	rec = serve(srv, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ShutdownWaitsForOnResponse(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	var finished bool
	hook := internal.Hook{Name: "slow", Point: internal.OnResponse, Fn: func(e *internal.HookEvent) error {
		<-release
		finished = true
		return nil
	}}
	ctrl := &testController{meta: internal.Describe("/").
		GET("/", func(c internal.Context) error { return c.NoContent(http.StatusOK) }),
	}
	srv := internal.New(
		internal.WithTempStore(newTempStore(t)),
		internal.WithControllers(ctrl),
		internal.WithHooks(hook),
	)
	require.NoError(t, srv.Initialise())

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	time.AfterFunc(50*time.Millisecond, func() { close(release) })
	require.NoError(t, srv.Shutdown(context.Background()))
	require.True(t, finished)
}

func TestServer_ShutdownHooksRunInOrder(t *testing.T) {
	t.Parallel()

	var order []int
	srv := internal.New(
		internal.WithShutdownHook(func(context.Context) error { order = append(order, 1); return nil }),
		internal.WithShutdownHook(func(context.Context) error { order = append(order, 2); return errors.New("close failed") }),
		internal.WithShutdownHook(func(context.Context) error { order = append(order, 3); return nil }),
	)

	err := srv.Shutdown(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "close failed")
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestServer_Listen(t *testing.T) {
	t.Parallel()

	ctrl := &testController{meta: internal.Describe("/").
		GET("/ping", func(c internal.Context) error { return c.String(http.StatusOK, "pong") }),
	}
	srv := internal.New(
		internal.WithAddress("127.0.0.1:0"),
		internal.WithTempStore(newTempStore(t)),
		internal.WithControllers(ctrl),
	)
	require.NoError(t, srv.Initialise())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != "127.0.0.1:0" }, time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr() + "/ping")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, resp.Body.Close())

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Listen did not return after cancel")
	}
}

func TestServer_HTTPMiddlewareWrapsRoutedWriter(t *testing.T) {
	t.Parallel()

	payload := strings.Repeat("kiln ", 1024)
	ctrl := &testController{meta: internal.Describe("/").
		GET("/text", func(c internal.Context) error { return c.String(http.StatusOK, payload) }),
	}
	srv := newServer(t,
		internal.WithControllers(ctrl),
		internal.WithHTTPMiddleware(middleware.Compress(5, "text/plain")),
		internal.WithHooks(internal.Hook{
			Name:  "test.sent",
			Point: internal.OnSend,
			Fn: func(e *internal.HookEvent) error {
				e.Response.Header().Set("X-Sent", "1")
				return nil
			},
		}),
	)

	r := httptest.NewRequest(http.MethodGet, "/text", nil)
	r.Header.Set("Accept-Encoding", "gzip")
	rec := serve(srv, r)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
	require.Equal(t, "1", rec.Header().Get("X-Sent"))
	require.Less(t, rec.Body.Len(), len(payload))

	zr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(zr)
	require.NoError(t, err)
	require.Equal(t, payload, string(body))
}
