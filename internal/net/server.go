package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
)

// Server accepts TCP connections and serves each one with its own handler.
// The game server proper lives elsewhere; this is used by the websocket
// gateway's tests and by local test doubles.
type Server struct {
	Addr    string
	Options Options

	// NewHandler returns the handler for a freshly accepted connection.
	// It runs before the connection starts reading.
	NewHandler func(conn *Connection) Handler

	mu    sync.Mutex
	ln    net.Listener
	conns []*Connection
}

// Listen binds the listening socket. Addr may use port 0.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// ListenAddr returns the bound address, or "" before Listen.
func (s *Server) ListenAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		ln = s.ln
	}

	logger := s.Options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		raw, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.closeAll()
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		logger.Info("peer connected", zap.String("remote", raw.RemoteAddr().String()))

		conn := NewConnection(raw, s.Options)
		if s.NewHandler != nil {
			conn.SetHandler(s.NewHandler(conn))
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()
		conn.Start()
	}
}

// Connections returns the connections accepted so far.
func (s *Server) Connections() []*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Connection(nil), s.conns...)
}

func (s *Server) closeAll() {
	for _, c := range s.Connections() {
		_ = c.Close()
	}
}
