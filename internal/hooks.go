package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// Point identifies a stage of the request lifecycle.
type Point int

const (
	// PreParse runs before the context is bound and before the body is read.
	PreParse Point = iota
	// PreHandle runs after binding, before routing.
	PreHandle
	// OnSend runs right before the response headers are written.
	OnSend
	// OnResponse runs after the response has been flushed.
	OnResponse
	// OnError runs for every error raised while serving a request.
	OnError

	numPoints
)

func (p Point) String() string {
	switch p {
	case PreParse:
		return "pre-parse"
	case PreHandle:
		return "pre-handle"
	case OnSend:
		return "on-send"
	case OnResponse:
		return "on-response"
	case OnError:
		return "on-error"
	default:
		return "unknown"
	}
}

// ErrSkipPoint, returned by a hook, skips the remaining hooks at that point.
var ErrSkipPoint = errors.New("kiln: skip remaining hooks")

// HookEvent is what a hook sees. Context is nil at PreParse.
// A PreParse hook may replace Request; the replacement is what gets bound.
type HookEvent struct {
	Ctx      context.Context
	Request  *http.Request
	Response http.ResponseWriter
	Context  Context
	Err      error
	Point    Point
}

// HookFunc is the body of a hook.
type HookFunc func(e *HookEvent) error

// Hook is a named function attached to one lifecycle point.
//
// Suspends marks hooks that block on I/O. The driver waits for them, but
// skips them once the event context is done.
type Hook struct {
	Fn       HookFunc
	Name     string
	Point    Point
	Suspends bool
}

// Pipeline holds hooks per point in registration order.
// It is written during Initialise and read-only afterwards.
type Pipeline struct {
	metrics *metrics
	logger  *slog.Logger
	hooks   [numPoints][]Hook
}

func newPipeline(m *metrics, logger *slog.Logger) *Pipeline {
	return &Pipeline{metrics: m, logger: logger}
}

// Add appends a hook to its point.
func (p *Pipeline) Add(h Hook) error {
	if h.Name == "" || h.Fn == nil {
		return errors.Wrap(ErrInvalidHook, "hook needs a name and a function")
	}
	if h.Point < PreParse || h.Point >= numPoints {
		return errors.Wrapf(ErrInvalidHook, "hook %q has unknown point %d", h.Name, h.Point)
	}
	p.hooks[h.Point] = append(p.hooks[h.Point], h)
	return nil
}

// Hooks returns a copy of the hooks registered at pt.
func (p *Pipeline) Hooks(pt Point) []Hook {
	if pt < PreParse || pt >= numPoints {
		return nil
	}
	out := make([]Hook, len(p.hooks[pt]))
	copy(out, p.hooks[pt])
	return out
}

// run executes the hooks of e.Point in order and stops at the first error.
func (p *Pipeline) run(e *HookEvent) error {
	for _, h := range p.hooks[e.Point] {
		if h.Suspends && e.Ctx.Err() != nil {
			return &HookError{Hook: h.Name, Point: e.Point, Err: e.Ctx.Err()}
		}
		err := p.call(h, e)
		if errors.Is(err, ErrSkipPoint) {
			return nil
		}
		if err != nil {
			return &HookError{Hook: h.Name, Point: e.Point, Err: err}
		}
	}
	return nil
}

// runErrors executes on-error hooks. Their failures are logged, never returned.
func (p *Pipeline) runErrors(e *HookEvent) {
	for _, h := range p.hooks[OnError] {
		err := p.call(h, e)
		if errors.Is(err, ErrSkipPoint) {
			return
		}
		if err != nil {
			p.logger.ErrorContext(e.Ctx, "on-error hook failed",
				slog.String("hook", h.Name),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pipeline) call(h Hook, e *HookEvent) (err error) {
	start := time.Now()
	defer func() {
		if v := recover(); v != nil {
			err = newPanicError(v)
		}
		p.metrics.observeHook(e.Point, time.Since(start))
	}()
	return h.Fn(e)
}
