// File: internal/session/store.go
// Package session
// Author: momentics <momentics@gmail.com>
//
// Sharded, thread-safe SessionManager for high concurrency.

package session

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// Stage is the lifecycle phase of a connection.
type Stage int

const (
	StageHandshake Stage = iota
	StageDialing
	StageRelaying
)

func (s Stage) String() string {
	switch s {
	case StageHandshake:
		return "handshake"
	case StageDialing:
		return "dialing"
	case StageRelaying:
		return "relaying"
	}
	return "unknown"
}

// SessionManager defines operations on live sessions.
type SessionManager interface {
	Create(id, remote string, cancel func()) (Session, error)
	Get(id string) (Session, bool)
	Delete(id string)
	Range(func(Session))
	Len() int
	CancelAll()
}

// Session abstracts per-connection state.
type Session interface {
	ID() string
	Remote() string
	Started() time.Time
	Stage() Stage
	SetStage(Stage)
	Cancel()
	Done() <-chan struct{}
}

// ErrDuplicateID is returned by Create when id is already registered.
var ErrDuplicateID = errors.New("session id already registered")

// sessionManager implements sharded storage for sessions.
type sessionManager struct {
	shards []*sessionShard
	mask   uint32
}

type sessionShard struct {
	mu       sync.RWMutex
	sessions map[string]*sessionImpl
}

// NewSessionManager constructs a sharded manager with shardCount shards.
func NewSessionManager(shardCount int) SessionManager {
	if shardCount <= 0 {
		shardCount = 16
	}
	// find power-of-two shards for bitmasking
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*sessionShard, m)
	for i := range shards {
		shards[i] = &sessionShard{sessions: make(map[string]*sessionImpl)}
	}
	return &sessionManager{shards: shards, mask: m - 1}
}

func (m *sessionManager) shard(id string) *sessionShard {
	return m.shards[fnv32(id)&m.mask]
}

// Create registers a new session. cancel is invoked once by Cancel.
func (m *sessionManager) Create(id, remote string, cancel func()) (Session, error) {
	sh := m.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.sessions[id]; ok {
		return nil, ErrDuplicateID
	}
	s := newSession(id, remote, cancel)
	sh.sessions[id] = s
	return s, nil
}

// Get fetches a session if present.
func (m *sessionManager) Get(id string) (Session, bool) {
	sh := m.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	if !ok {
		return nil, false
	}
	return s, true
}

// Delete cancels and removes the session.
func (m *sessionManager) Delete(id string) {
	sh := m.shard(id)
	sh.mu.Lock()
	s, ok := sh.sessions[id]
	delete(sh.sessions, id)
	sh.mu.Unlock()
	if ok {
		s.Cancel()
	}
}

// Range applies fn to all sessions. fn must not call back into the manager.
func (m *sessionManager) Range(fn func(Session)) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			fn(s)
		}
		sh.mu.RUnlock()
	}
}

// Len returns the number of registered sessions.
func (m *sessionManager) Len() int {
	n := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// CancelAll cancels every registered session without removing it; owners
// remove their own entries as they unwind.
func (m *sessionManager) CancelAll() {
	var all []*sessionImpl
	for _, sh := range m.shards {
		sh.mu.RLock()
		for _, s := range sh.sessions {
			all = append(all, s)
		}
		sh.mu.RUnlock()
	}
	for _, s := range all {
		s.Cancel()
	}
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
