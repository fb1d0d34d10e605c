package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/gameauth/internal/logging"
)

const shutdownTimeout = 30 * time.Second

type Server struct {
	addr    string
	handler http.Handler
	logger  logging.Logger

	server  *http.Server
	stopped atomic.Bool
}

func NewServer(addr string, handler http.Handler, logger logging.Logger) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logger.With("module", "httpapi"),
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			IdleTimeout:  time.Minute,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled or the listener fails, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ctx, lis)
}

func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "http server listening", "addr", lis.Addr().String())
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.Stop()
	case err, ok := <-errChan:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info(ctx, "http server stopping")
	return s.server.Shutdown(ctx)
}
