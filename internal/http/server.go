package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server es el servidor HTTP de operación.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Listen abre addr; Serve arranca a atender.
func Listen(addr string, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second},
		ln:  ln,
	}, nil
}

// Addr devuelve la dirección efectiva (útil con ":0").
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve bloquea hasta Shutdown. Un cierre ordenado no es error.
func (s *Server) Serve() error {
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown espera a que terminen los requests en curso o venza ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
