// File: server/server.go
// Package server runs the accept loop and hands every connection to its own
// goroutine for handshake and relay.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsrelay/control"
	"github.com/momentics/hioload-wsrelay/internal/session"
	"github.com/momentics/hioload-wsrelay/internal/transport"
	"github.com/momentics/hioload-wsrelay/pool"
)

// ErrServerClosed is returned by Serve after Shutdown.
var ErrServerClosed = errors.New("server closed")

// NewServer builds the Server.
func NewServer(cfg *Config, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	s := &Server{
		cfg:      cfg,
		log:      zerolog.Nop(),
		probes:   control.NewDebugProbes(),
		history:  control.NewHistory(cfg.HistorySize),
		sessions: session.NewSessionManager(cfg.SessionShards),
		pool:     pool.NewBytePool(cfg.CopyBufferSize),
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = control.NewMetrics()
	}
	if s.dialer == nil {
		s.dialer = &transport.Dialer{Timeout: cfg.DialTimeout}
	}
	s.registerProbes()
	return s, nil
}

func (s *Server) registerProbes() {
	control.RegisterPlatformProbes(s.probes)
	s.probes.RegisterProbe("downstream", func() any { return s.cfg.Downstream })
	s.probes.RegisterProbe("active_sessions", func() any { return s.sessions.Len() })
	s.probes.RegisterProbe("sessions", func() any {
		type liveSession struct {
			ID      string    `json:"id"`
			Remote  string    `json:"remote"`
			Stage   string    `json:"stage"`
			Started time.Time `json:"started"`
		}
		var out []liveSession
		s.sessions.Range(func(ss session.Session) {
			out = append(out, liveSession{ss.ID(), ss.Remote(), ss.Stage().String(), ss.Started()})
		})
		return out
	})
	s.probes.RegisterProbe("recent_sessions", func() any { return s.history.Snapshot() })
}

// ListenAndServe binds the configured port on all interfaces and serves until
// ctx is done or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := transport.Listen(ctx, s.cfg.ListenPort)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. Each connection runs independently; a
// failure on one is logged and never reaches the accept loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.log.Info().Str("addr", ln.Addr().String()).Str("downstream", s.cfg.Downstream).Msg("relay listening")

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			// transient (EMFILE and friends): back off as net/http does
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			s.log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept error")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0
		s.conns.Add(1)
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Shutdown stops accepting, cancels every live session and waits for their
// goroutines to exit or ctx to expire. Repeated calls are harmless.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	ln := s.ln
	s.mu.Unlock()

	var err error
	if ln != nil {
		if cerr := ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
	}
	s.sessions.CancelAll()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listening address once Serve has started, else nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// AdminHandler serves /metrics and /debug/state.
func (s *Server) AdminHandler() http.Handler {
	return control.Handler(s.metrics, s.probes)
}

// Metrics exposes the server's collectors.
func (s *Server) Metrics() *control.Metrics {
	return s.metrics
}

// History exposes finished session records.
func (s *Server) History() *control.History {
	return s.history
}

// ActiveSessions returns the number of connections currently being served.
func (s *Server) ActiveSessions() int {
	return s.sessions.Len()
}
