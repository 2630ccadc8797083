// control/history.go
// Author: momentics <momentics@gmail.com>
//
// Bounded FIFO of finished sessions for debug introspection.

package control

import (
	"sync"
	"time"

	"github.com/eapache/queue"
)

// SessionRecord describes one finished connection.
type SessionRecord struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	Started   time.Time `json:"started"`
	Ended     time.Time `json:"ended"`
	BytesUp   int64     `json:"bytes_up"`
	BytesDown int64     `json:"bytes_down"`
	Outcome   string    `json:"outcome"`
	Error     string    `json:"error,omitempty"`
}

// History keeps the most recent limit records; older ones are evicted first.
type History struct {
	mu    sync.Mutex
	q     *queue.Queue
	limit int
}

// NewHistory returns a history holding at most limit records. limit <= 0 disables recording.
func NewHistory(limit int) *History {
	return &History{q: queue.New(), limit: limit}
}

// Add appends rec, evicting the oldest record when full.
func (h *History) Add(rec SessionRecord) {
	if h == nil || h.limit <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.q.Add(rec)
	for h.q.Length() > h.limit {
		h.q.Remove()
	}
}

// Len returns the number of stored records.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.q.Length()
}

// Snapshot returns the stored records, oldest first.
func (h *History) Snapshot() []SessionRecord {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]SessionRecord, h.q.Length())
	for i := range out {
		out[i] = h.q.Get(i).(SessionRecord)
	}
	return out
}
