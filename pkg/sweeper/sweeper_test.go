package sweeper_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/kilnhq/kiln/pkg/logger"
	"github.com/kilnhq/kiln/pkg/sweeper"
)

type fakeTarget struct {
	calls  atomic.Int32
	cutoff atomic.Value
	err    error
}

func (f *fakeTarget) Sweep(_ context.Context, before time.Time) (int, error) {
	f.calls.Add(1)
	f.cutoff.Store(before)
	return 2, f.err
}

func TestSweeper_Add(t *testing.T) {
	t.Parallel()
	s := sweeper.New(logger.NewNope())

	require.ErrorIs(t, s.Add(sweeper.Task{}), sweeper.ErrInvalidTask)
	err := s.Add(sweeper.Task{Name: "x", Schedule: "not a cron", MaxAge: time.Minute, Target: &fakeTarget{}})
	require.True(t, errors.Is(err, sweeper.ErrInvalidTask))
	require.NoError(t, s.Add(sweeper.Task{Name: "x", Schedule: "@every 1h", MaxAge: time.Minute, Target: &fakeTarget{}}))
	require.NoError(t, s.Add(sweeper.Task{Name: "x", Schedule: "*/5 * * * *", MaxAge: time.Minute, Target: &fakeTarget{}}))
}

func TestSweeper_Run(t *testing.T) {
	t.Parallel()
	s := sweeper.New(logger.NewNope())
	target := &fakeTarget{}

	n := s.Run(context.Background(), sweeper.Task{Name: "uploads", MaxAge: time.Hour, Target: target, Timeout: time.Second})
	require.Equal(t, 2, n)
	require.EqualValues(t, 1, target.calls.Load())

	cutoff := target.cutoff.Load().(time.Time)
	require.WithinDuration(t, time.Now().Add(-time.Hour), cutoff, 5*time.Second)

	failing := &fakeTarget{err: errors.New("disk gone")}
	require.Equal(t, 2, s.Run(context.Background(), sweeper.Task{Name: "bad", MaxAge: time.Hour, Target: failing}))
}

func TestSweeper_StartStop(t *testing.T) {
	t.Parallel()
	s := sweeper.New(nil)
	require.NoError(t, s.StartFunc()(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown()(ctx))
}
