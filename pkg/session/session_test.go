package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kilnhq/kiln/pkg/session"
)

func TestSession_New(t *testing.T) {
	t.Parallel()
	s := session.New("id-1", "tok-1", time.Now().Add(time.Hour))

	require.True(t, s.IsNew())
	require.False(t, s.IsDirty())
	require.False(t, s.IsAuthenticated())
	require.NotNil(t, s.Values)
}

func TestSession_Values(t *testing.T) {
	t.Parallel()
	s := session.New("id", "tok", time.Now().Add(time.Hour))

	s.Delete("missing")
	require.False(t, s.IsDirty())

	s.Set("count", 3)
	require.True(t, s.IsDirty())

	n, err := session.Value[int](s, "count")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	_, err = session.Value[string](s, "count")
	require.ErrorIs(t, err, session.ErrTypeMismatch)
	require.Equal(t, "x", session.ValueOr(s, "nope", "x"))

	v, ok := s.Pull("count")
	require.True(t, ok)
	require.Equal(t, 3, v)
	_, ok = s.Get("count")
	require.False(t, ok)
}

func TestSession_UserAndRotate(t *testing.T) {
	t.Parallel()
	s := session.New("id", "tok", time.Now().Add(time.Hour))
	s.Saved()

	s.SetUser("u-1")
	require.True(t, s.IsAuthenticated())

	s.Rotate("tok-2")
	s.Rotate("tok-3")
	require.Equal(t, "tok", s.PreviousToken())
	require.Equal(t, "tok-3", s.Token)

	s.Saved()
	require.Empty(t, s.PreviousToken())
	require.False(t, s.IsNew())

	s.Set("k", "v")
	s.Forget()
	require.False(t, s.IsAuthenticated())
	require.Empty(t, s.Values)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemoryStore()

	s := session.New("id-1", "tok-1", time.Now().Add(time.Hour))
	s.Set("k", "v")
	s.SetUser("u-1")
	require.NoError(t, store.Create(ctx, s))

	got, err := store.Get(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "v", got.Values["k"])
	require.False(t, got.IsNew())
	require.False(t, got.IsDirty())

	// stored copy is isolated from later mutation
	s.Set("k", "changed")
	got, err = store.Get(ctx, "tok-1")
	require.NoError(t, err)
	require.Equal(t, "v", got.Values["k"])

	got.Rotate("tok-2")
	require.NoError(t, store.Update(ctx, got))
	_, err = store.Get(ctx, "tok-1")
	require.ErrorIs(t, err, session.ErrNotFound)
	_, err = store.Get(ctx, "tok-2")
	require.NoError(t, err)

	require.NoError(t, store.DeleteByUserID(ctx, "u-1"))
	require.Zero(t, store.Len())

	require.ErrorIs(t, store.Update(ctx, got), session.ErrNotFound)
}

func TestMemoryStore_ExpiredAndSweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := session.NewMemoryStore()

	require.NoError(t, store.Create(ctx, session.New("old", "old-tok", time.Now().Add(-time.Minute))))
	require.NoError(t, store.Create(ctx, session.New("new", "new-tok", time.Now().Add(time.Hour))))

	_, err := store.Get(ctx, "old-tok")
	require.ErrorIs(t, err, session.ErrExpired)

	n, err := store.Sweep(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, store.Len())

	require.NoError(t, store.Delete(ctx, "new"))
	require.Zero(t, store.Len())
}
