package middlewares_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilnhq/kiln/internal"
	"github.com/kilnhq/kiln/middlewares"
	"github.com/kilnhq/kiln/pkg/auth"
	"github.com/kilnhq/kiln/pkg/session"
	"github.com/kilnhq/kiln/pkg/storage"
)

const secret = "0123456789abcdef0123456789abcdef"

type controller struct {
	meta *internal.ControllerMeta
}

func (c controller) Routes() *internal.ControllerMeta { return c.meta }

func newServer(t *testing.T, meta *internal.ControllerMeta, opts ...internal.Option) http.Handler {
	t.Helper()
	ts, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	opts = append(opts, internal.WithTempStore(ts), internal.WithControllers(controller{meta: meta}))
	srv := internal.New(opts...)
	require.NoError(t, srv.Initialise())
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv.Handler()
}

func whoami(c internal.Context) error {
	if u := c.User(); u != nil {
		return c.String(http.StatusOK, u.AuthID())
	}
	return c.String(http.StatusOK, "guest")
}

func message(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, _ := body["message"].(string)
	return msg
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	provider, err := auth.NewJWT([]byte(secret))
	require.NoError(t, err)
	token, err := provider.Issue("alice", time.Minute)
	require.NoError(t, err)

	h := newServer(t, internal.Describe("/").
		GET("/strict", whoami, middlewares.Authenticate(provider)).
		GET("/optional", whoami, middlewares.Authenticate(provider, middlewares.WithOptionalAuth())),
	)

	tests := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
		msg    string
	}{
		{name: "valid token", path: "/strict", header: "Bearer " + token, code: http.StatusOK, body: "alice"},
		{name: "missing token", path: "/strict", code: http.StatusUnauthorized, msg: "missing authentication token"},
		{name: "garbage token", path: "/strict", header: "Bearer nope", code: http.StatusUnauthorized, msg: "invalid token"},
		{name: "optional without token", path: "/optional", code: http.StatusOK, body: "guest"},
		{name: "optional with garbage", path: "/optional", header: "Bearer nope", code: http.StatusUnauthorized, msg: "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, r)

			require.Equal(t, tt.code, rec.Code)
			if tt.msg != "" {
				require.Equal(t, tt.msg, message(t, rec))
			} else {
				require.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRequireUserAndGuestOnly(t *testing.T) {
	t.Parallel()

	h := newServer(t, internal.Describe("/").
		GET("/private", whoami, middlewares.RequireUser()).
		GET("/login", whoami, func(c internal.Context) error {
			if c.Query("as") != "" {
				return c.AuthoriseAs(auth.Subject(c.Query("as")))
			}
			return nil
		}, middlewares.GuestOnly()),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/private", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "authentication required", message(t, rec))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/login?as=bob", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestSessionUser(t *testing.T) {
	t.Parallel()

	resolve := func(_ context.Context, id string) (auth.Authenticatable, error) {
		if id == "ghost" {
			return nil, auth.ErrUnknownUser
		}
		return auth.Subject(id), nil
	}
	h := newServer(t, internal.Describe("/").
		POST("/login", func(c internal.Context) error {
			c.Session().SetUser(c.Query("id"))
			return c.NoContent(http.StatusNoContent)
		}).
		GET("/me", whoami, middlewares.SessionUser(resolve), middlewares.RequireUser()),
		internal.WithSession(session.NewMemoryStore()),
	)

	login := func(id string) *http.Cookie {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login?id="+id, nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		return cookies[0]
	}
	me := func(c *http.Cookie) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/me", nil)
		if c != nil {
			r.AddCookie(c)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	alice := login("alice")
	require.Eventually(t, func() bool { return me(alice).Code == http.StatusOK }, time.Second, 5*time.Millisecond)
	require.Equal(t, "alice", me(alice).Body.String())

	require.Equal(t, http.StatusUnauthorized, me(nil).Code)

	ghost := login("ghost")
	require.Equal(t, http.StatusUnauthorized, me(ghost).Code)
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	h := newServer(t, internal.Describe("/").
		GET("/", whoami, middlewares.RequestID("")).
		GET("/custom", whoami, middlewares.RequestID("X-Trace")),
	)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom", nil))
	require.NotEmpty(t, rec.Header().Get("X-Trace"))
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	h := newServer(t, internal.Describe("/").
		GET("/slow", func(c internal.Context) error {
			select {
			case <-c.Done():
				return c.Err()
			case <-time.After(time.Second):
				return c.String(http.StatusOK, "done")
			}
		}),
		internal.WithHTTPMiddleware(middlewares.Timeout(20*time.Millisecond)),
	)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))
	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	require.Equal(t, "request timed out", message(t, rec))
}
