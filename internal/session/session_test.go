package session_test

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/momentics/hioload-wsrelay/internal/session"
)

func TestSessionManager_Lifecycle(t *testing.T) {
	m := session.NewSessionManager(3)
	var cancelled atomic.Int32
	s, err := m.Create("a", "127.0.0.1:5000", func() { cancelled.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	if s.Stage() != session.StageHandshake {
		t.Errorf("initial stage = %v", s.Stage())
	}
	s.SetStage(session.StageRelaying)
	if got, ok := m.Get("a"); !ok || got.Stage() != session.StageRelaying {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if _, err := m.Create("a", "x", nil); !errors.Is(err, session.ErrDuplicateID) {
		t.Errorf("duplicate Create err = %v", err)
	}

	m.Delete("a")
	select {
	case <-s.Done():
	default:
		t.Error("Delete did not cancel session")
	}
	s.Cancel()
	if cancelled.Load() != 1 {
		t.Errorf("cancel ran %d times, want 1", cancelled.Load())
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after Delete", m.Len())
	}
}

func TestSessionManager_CancelAllConcurrent(t *testing.T) {
	m := session.NewSessionManager(8)
	var cancelled atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := m.Create(fmt.Sprintf("s-%d", i), "", func() { cancelled.Add(1) }); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()
	if m.Len() != 100 {
		t.Fatalf("Len = %d", m.Len())
	}
	m.CancelAll()
	m.CancelAll()
	if cancelled.Load() != 100 {
		t.Errorf("cancelled = %d, want 100", cancelled.Load())
	}
	n := 0
	m.Range(func(session.Session) { n++ })
	if n != 100 {
		t.Errorf("Range visited %d", n)
	}
}
