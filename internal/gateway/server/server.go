// Package server owns the gateway's HTTP listener and route table.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps the standard http.Server with h2c so browser websocket clients
// and HTTP/2 reverse proxies share one cleartext port.
type Server struct {
	httpServer *http.Server
}

func New(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:    addr,
			Handler: h2c.NewHandler(handler, &http2.Server{}),
		},
	}
}

// Start serves until Shutdown; the closed-server exit is not an error.
func (s *Server) Start() error {
	log.Printf("gateway listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests up to
// the context deadline. Long-lived session connections are closed by their own
// handlers; draining in-flight jobs is the app's responsibility.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
