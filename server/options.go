// File: server/options.go
// Package server defines functional options for the relay Server.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsrelay/control"
	"github.com/momentics/hioload-wsrelay/relay"
)

// ServerOption customizes server initialization.
type ServerOption func(*Server)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.log = l
	}
}

// WithMetrics replaces the server's collectors, e.g. to share one registry.
func WithMetrics(m *control.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithDialer overrides how downstream connections are opened.
func WithDialer(d relay.Dialer) ServerOption {
	return func(s *Server) {
		s.dialer = d
	}
}

// WithIDGenerator overrides session id generation.
func WithIDGenerator(fn func() string) ServerOption {
	return func(s *Server) {
		s.newID = fn
	}
}
