package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type user struct{ id string }

func (u user) AuthID() string { return u.id }

func TestNewJWT_WeakSecret(t *testing.T) {
	t.Parallel()
	_, err := NewJWT([]byte("short"))
	require.ErrorIs(t, err, ErrWeakSecret)
}

func TestJWT_IssueAndAuthenticate(t *testing.T) {
	t.Parallel()

	j, err := NewJWT(secret, WithIssuer("kiln"), WithAudience("api"),
		WithResolver(func(_ context.Context, id string) (Authenticatable, error) {
			if id != "u-1" {
				return nil, errors.New("no such user")
			}
			return user{id: id}, nil
		}))
	require.NoError(t, err)

	tok, err := j.Issue("u-1", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "bearer "+tok)

	got, err := j.Authenticate(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, "u-1", got.AuthID())

	other, err := j.Issue("u-2", time.Hour)
	require.NoError(t, err)
	r.Header.Set("Authorization", "Bearer "+other)
	_, err = j.Authenticate(context.Background(), r)
	require.True(t, errors.Is(err, ErrUnknownUser))
}

func TestJWT_Failures(t *testing.T) {
	t.Parallel()

	j, err := NewJWT(secret, WithLeeway(0))
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := j.Authenticate(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := j.Verify("not.a.token")
		require.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		other, err := NewJWT([]byte("ffffffffffffffffffffffffffffffff"))
		require.NoError(t, err)
		tok, err := other.Issue("u", time.Hour)
		require.NoError(t, err)
		_, err = j.Verify(tok)
		require.True(t, errors.Is(err, ErrInvalidToken))
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		past, err := NewJWT(secret)
		require.NoError(t, err)
		past.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		tok, err := past.Issue("u", time.Hour)
		require.NoError(t, err)
		_, err = j.Verify(tok)
		require.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestExtractor(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/?token=q", nil)
	r.AddCookie(&http.Cookie{Name: "auth", Value: "c"})

	v, ok := Extractor{FromBearer(), FromCookie("auth"), FromQuery("token")}.Extract(r)
	require.True(t, ok)
	require.Equal(t, "c", v)

	v, ok = Extractor{FromHeader("X-Token"), FromQuery("token")}.Extract(r)
	require.True(t, ok)
	require.Equal(t, "q", v)

	_, ok = Extractor{FromBearer()}.Extract(r)
	require.False(t, ok)
}
