// Package sweeper periodically reclaims abandoned uploads and expired sessions.
//
// Any store with a Sweep(ctx, before) method can be registered. Each task runs
// on its own cron schedule (five-field syntax) and removes entries older than
// its MaxAge.
//
//	sw := sweeper.New(log)
//	_ = sw.Add(sweeper.Task{Name: "uploads", Schedule: "*/15 * * * *", MaxAge: time.Hour, Target: tempStore})
//	sw.Start()
//	defer sw.Stop(ctx)
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robfig/cron/v3"
)

// ErrInvalidTask is returned by Add for incomplete tasks or bad schedules.
var ErrInvalidTask = errors.New("sweeper: invalid task")

// Target is a store that can drop entries older than a cutoff.
type Target interface {
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// Task binds a Target to a schedule.
type Task struct {
	Name     string
	Schedule string
	MaxAge   time.Duration
	Timeout  time.Duration
	Target   Target
}

// Sweeper runs tasks on a cron scheduler.
type Sweeper struct {
	cron   *cron.Cron
	parser cron.Parser
	log    *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New creates a stopped Sweeper.
func New(log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Add schedules t. Adding a name twice replaces the earlier task.
func (s *Sweeper) Add(t Task) error {
	if t.Name == "" || t.Target == nil || t.MaxAge <= 0 {
		return ErrInvalidTask
	}
	sched, err := s.parser.Parse(t.Schedule)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "sweeper: schedule %q", t.Schedule), ErrInvalidTask)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[t.Name]; ok {
		s.cron.Remove(id)
	}
	s.entries[t.Name] = s.cron.Schedule(sched, cron.FuncJob(func() { s.Run(context.Background(), t) }))
	return nil
}

// Run executes one sweep of t immediately.
func (s *Sweeper) Run(ctx context.Context, t Task) int {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	start := time.Now()
	n, err := t.Target.Sweep(ctx, start.Add(-t.MaxAge))
	if err != nil {
		s.log.ErrorContext(ctx, "sweep failed",
			slog.String("task", t.Name),
			slog.Int("removed", n),
			slog.String("error", err.Error()))
		return n
	}
	if n > 0 {
		s.log.InfoContext(ctx, "sweep finished",
			slog.String("task", t.Name),
			slog.Int("removed", n),
			slog.Duration("duration", time.Since(start)))
	}
	return n
}

// Start begins scheduling in the background.
func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running sweeps or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartFunc adapts Start to a startup hook.
func (s *Sweeper) StartFunc() func(context.Context) error {
	return func(context.Context) error {
		s.Start()
		return nil
	}
}

// Shutdown adapts Stop to a shutdown hook.
func (s *Sweeper) Shutdown() func(context.Context) error {
	return s.Stop
}
