package internal

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// Built-in hook names.
const (
	HookInitiate      = "kiln.initiate"
	HookMultipart     = "kiln.multipart"
	HookSessionCookie = "kiln.session-cookie"
	HookCookies       = "kiln.cookies"
	HookSession       = "kiln.session"
	HookLog           = "kiln.log"
)

func (s *Server) registerBuiltinHooks() error {
	builtins := []Hook{
		{Name: HookInitiate, Point: PreHandle, Suspends: true, Fn: s.initiateHook},
		{Name: HookMultipart, Point: PreHandle, Suspends: true, Fn: s.multipartHook},
		{Name: HookSessionCookie, Point: OnSend, Fn: s.sessionCookieHook},
		{Name: HookCookies, Point: OnSend, Fn: cookieFlushHook},
		{Name: HookSession, Point: OnResponse, Suspends: true, Fn: s.sessionHook},
		{Name: HookLog, Point: OnError, Fn: s.logHook},
	}
	for _, h := range builtins {
		if err := s.hooks.Add(h); err != nil {
			return err
		}
	}
	return nil
}

// lifecycle wraps the router with the hook driver.
func (s *Server) lifecycle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cors != nil && s.cors.isPreflight(r) {
			s.cors.preflight(w, r)
			return
		}

		rw := NewResponseWriter(w)
		if s.cors != nil {
			s.cors.decorate(rw.Header(), r)
		}

		pre := &HookEvent{Ctx: r.Context(), Request: r, Response: rw, Point: PreParse}
		preErr := s.hooks.run(pre)

		c := newRequestContext(s, rw, pre.Request)
		rw.OnBeforeWrite(func() {
			if err := s.hooks.run(c.event(OnSend)); err != nil {
				s.report(c, err)
			}
		})
		defer s.complete(c)

		if preErr != nil {
			s.fail(c, preErr)
			return
		}
		if rw.Written() {
			return
		}
		if err := s.hooks.run(c.event(PreHandle)); err != nil {
			s.fail(c, err)
			return
		}
		if rw.Written() {
			return
		}
		next.ServeHTTP(rw, c.request)
	})
}

// complete runs when the handler chain returns or panics. It makes sure a
// response went out, then hands the context to on-response.
func (s *Server) complete(c *requestContext) {
	// Writers wrapped inside the router have unwound by now.
	c.out = c.rw
	if v := recover(); v != nil {
		if v == http.ErrAbortHandler {
			panic(v)
		}
		s.fail(c, newPanicError(v))
	}
	if !c.rw.Written() {
		c.rw.WriteHeader(c.rw.Status())
	}
	c.rw.Flush()

	route := ""
	if c.route != nil {
		route = c.route.Path
	}
	s.metrics.observeRequest(c.request.Method, route, c.rw.Status(), time.Since(c.start))

	s.pending.Add(1)
	go s.respond(c)
}

// respond runs on-response hooks detached from the request's cancellation.
func (s *Server) respond(c *requestContext) {
	defer s.pending.Done()
	defer func() {
		if v := recover(); v != nil {
			s.report(c, newPanicError(v))
		}
	}()

	c.detach()
	if err := s.hooks.run(c.event(OnResponse)); err != nil {
		s.report(c, err)
	}
	if s.cleanupUploads {
		s.removeUploads(c)
	}
}

func (s *Server) removeUploads(c *requestContext) {
	ctx := c.request.Context()
	for _, f := range c.files {
		if err := f.Remove(ctx); err != nil {
			s.logger.WarnContext(ctx, "upload cleanup failed",
				slog.String("handle", f.Handle()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Server) initiateHook(e *HookEvent) error {
	c, ok := e.Context.(*requestContext)
	if !ok {
		return nil
	}
	return c.initiateForRequest(e.Ctx)
}

func (s *Server) multipartHook(e *HookEvent) error {
	c, ok := e.Context.(*requestContext)
	if !ok || !isMultipart(e.Request.Header.Get("Content-Type")) {
		return nil
	}
	return drainMultipart(e.Ctx, c, s.temp, s.limits, s.metrics)
}

func (s *Server) sessionCookieHook(e *HookEvent) error {
	c, ok := e.Context.(*requestContext)
	if !ok || s.sessions == nil || c.session == nil {
		return nil
	}
	s.sessions.queueCookie(c.jar, c.session, c.sessionDestroyed)
	return nil
}

func cookieFlushHook(e *HookEvent) error {
	c, ok := e.Context.(*requestContext)
	if !ok {
		return nil
	}
	return c.jar.flush(e.Response.Header())
}

// sessionHook persists the session at most once per request.
func (s *Server) sessionHook(e *HookEvent) error {
	c, ok := e.Context.(*requestContext)
	if !ok || s.sessions == nil || c.session == nil || c.sessionSaved {
		return nil
	}
	c.sessionSaved = true
	called, err := s.sessions.Persist(e.Ctx, c.session, c.sessionDestroyed)
	if called {
		s.metrics.sessionSave(err)
	}
	return err
}

func (s *Server) logHook(e *HookEvent) error {
	if e.Err == nil {
		return nil
	}
	level := slog.LevelError
	attrs := []slog.Attr{
		slog.String("error", e.Err.Error()),
		slog.String("method", e.Request.Method),
		slog.String("path", e.Request.URL.Path),
	}
	if ex, ok := AsException(e.Err); ok {
		attrs = append(attrs, slog.Int("status", ex.Code))
		if ex.Code < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
	}
	var pe *PanicError
	if errors.As(e.Err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	if errors.Is(e.Err, context.Canceled) {
		level = slog.LevelDebug
	}
	s.logger.LogAttrs(e.Ctx, level, "request failed", attrs...)
	return nil
}
