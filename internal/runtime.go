package internal

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"
)

const (
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultMaxHeaderBytes    = 1 << 20 // 1MB
	defaultShutdownTimeout   = 30 * time.Second
)

// Start binds the address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.built || s.handler == nil {
		return errors.WithStack(ErrServerNotBuilt)
	}
	if s.httpServer != nil {
		return errors.New("kiln: server already listening")
	}

	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrapf(err, "kiln: listen on %s", s.address)
	}
	srv := &http.Server{
		Handler:           s.handler,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		MaxHeaderBytes:    defaultMaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.httpServer = srv
	s.listener = ln
	s.serveErr = make(chan error, 1)

	errCh := s.serveErr
	go func() {
		s.logger.Info("server starting", slog.String("address", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Listen serves until ctx is cancelled or the server fails, then shuts down
// gracefully within the shutdown timeout.
func (s *Server) Listen(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	errCh := s.serveErr
	s.mu.Unlock()

	var serveErr error
	stopped := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(stopped)
		serveErr = <-errCh
		return serveErr
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-stopped:
			// Shut down elsewhere.
			if serveErr == nil {
				return nil
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown stops the http server, waits for pending on-response work, then
// runs shutdown hooks in registration order.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	var errs error

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv != nil {
		errs = errors.CombineErrors(errs, srv.Shutdown(ctx))
	}

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = errors.CombineErrors(errs, errors.Wrap(ctx.Err(), "kiln: pending on-response work"))
	}

	for _, hook := range s.shutdownHooks {
		if err := hook(ctx); err != nil {
			errs = errors.CombineErrors(errs, err)
			s.logger.Error("shutdown hook failed", slog.String("error", err.Error()))
		}
	}

	if errs != nil {
		s.logger.Error("shutdown completed with errors")
		return errs
	}
	s.logger.Info("shutdown completed")
	return nil
}
