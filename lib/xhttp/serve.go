// Package xhttp implements http helpers for the local preview host.
package xhttp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"oss.terrastruct.com/xcontext"
)

// Listen listens on host:port over TCP. Port "0" picks a free port.
func Listen(host, port string) (net.Listener, error) {
	addr := net.JoinHostPort(host, port)
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return l, nil
}

// NewServer returns a server for h. Request bodies are capped at 1MiB since panels
// only send small JSON messages.
func NewServer(errorLog *log.Logger, h http.Handler) *http.Server {
	return &http.Server{
		Handler:        http.MaxBytesHandler(h, 1<<20),
		ErrorLog:       errorLog,
		MaxHeaderBytes: 1 << 18,
		ReadTimeout:    time.Minute,
		WriteTimeout:   time.Minute,
		IdleTimeout:    time.Hour,
	}
}

// Serve serves s on l until ctx is done. Shutdown waits at most shutdownTimeout for
// in flight requests.
func Serve(ctx context.Context, shutdownTimeout time.Duration, s *http.Server, l net.Listener) error {
	s.BaseContext = func(net.Listener) context.Context {
		return ctx
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.Serve(l)
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return err
	case <-ctx.Done():
	}

	// ctx is already done so shutdown needs its own deadline.
	shutdownCtx, cancel := context.WithTimeout(xcontext.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
