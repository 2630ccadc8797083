// File: internal/session/session.go
// Package session
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection session handle with idempotent cancellation.

package session

import (
	"sync"
	"time"
)

// sessionImpl tracks one accepted connection from accept to teardown.
type sessionImpl struct {
	id      string
	remote  string
	started time.Time

	mu     sync.Mutex
	stage  Stage
	cancel func()
	done   chan struct{}
	once   sync.Once
}

func newSession(id, remote string, cancel func()) *sessionImpl {
	if cancel == nil {
		cancel = func() {}
	}
	return &sessionImpl{
		id:      id,
		remote:  remote,
		started: time.Now(),
		stage:   StageHandshake,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (s *sessionImpl) ID() string { return s.id }
func (s *sessionImpl) Remote() string { return s.remote }
func (s *sessionImpl) Started() time.Time { return s.started }
func (s *sessionImpl) Done() <-chan struct{} { return s.done }

func (s *sessionImpl) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *sessionImpl) SetStage(st Stage) {
	s.mu.Lock()
	s.stage = st
	s.mu.Unlock()
}

// Cancel signals session teardown; idempotent.
func (s *sessionImpl) Cancel() {
	s.once.Do(func() {
		s.cancel()
		close(s.done)
	})
}
