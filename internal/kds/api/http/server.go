package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"kitchen-display/internal/kds/api/http/handle"
	"kitchen-display/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	router *chi.Mux
	srv    *http.Server
	port   int
	mylog  logger.Logger
	mu     sync.Mutex
}

func NewServer(port int, kds *handle.KDSHandler, mylog logger.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		port:   port,
		mylog:  mylog,
	}
	s.configure(kds)
	return s
}

func (s *Server) configure(kds *handle.KDSHandler) {
	s.router.Use(middleware.RealIP)
	s.router.Use(handle.RequestID(s.mylog))
	s.router.Use(middleware.Recoverer)

	kds.RegisterRoutes(s.router)
}

// Handler exposes the router for in-process use.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.srv
	s.mu.Unlock()

	s.mylog.Action("server_started").Info("HTTP server is running", "port", s.port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv == nil {
		return nil
	}

	s.mylog.Action("graceful_shutdown_started").Info("Shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.mylog.Action("graceful_shutdown_failed").Error("Failed to shut down HTTP server gracefully", err)
		return fmt.Errorf("http server shutdown: %w", err)
	}

	s.mylog.Action("graceful_shutdown_completed").Info("HTTP server shut down gracefully")
	return nil
}
