// File: relay/relay.go
// Package relay moves raw bytes between an upgraded client connection and
// the downstream service.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// A Session runs one copy loop per direction. The first loop to stop, cleanly
// or not, decides the outcome; both connections are then closed, which
// unblocks the other loop, and Run returns once it has exited too.

package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-wsrelay/pool"
)

// Dialer opens the downstream connection.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (net.Conn, error)
}

// Dial connects to the downstream address. Failures are DownstreamUnreachable.
func Dial(ctx context.Context, d Dialer, addr string) (net.Conn, error) {
	conn, err := d.DialContext(ctx, addr)
	if err != nil {
		return nil, &RelayError{Kind: DownstreamUnreachable, Err: err}
	}
	return conn, nil
}

// Relay dials addr and relays client through it until either side stops.
// client is closed in every case.
func Relay(ctx context.Context, client net.Conn, d Dialer, addr string, opts ...Option) error {
	downstream, err := Dial(ctx, d, addr)
	if err != nil {
		client.Close()
		return err
	}
	return NewSession(client, downstream, opts...).Run(ctx)
}

// Option customizes a Session.
type Option func(*Session)

// WithBufferPool sets the pool copy buffers are borrowed from.
func WithBufferPool(bp *pool.BytePool) Option {
	return func(s *Session) {
		if bp != nil {
			s.pool = bp
		}
	}
}

// WithPreamble sets bytes to deliver to the downstream before any copying,
// typically client data read ahead during the handshake.
func WithPreamble(b []byte) Option {
	return func(s *Session) {
		s.preamble = b
	}
}

var defaultPool = pool.NewBytePool(pool.DefaultBufferSize)

// Stats summarizes a session.
type Stats struct {
	BytesUp   int64 // client -> downstream
	BytesDown int64 // downstream -> client
	Started   time.Time
	Ended     time.Time
	// FirstDone is the direction whose loop ended the session.
	FirstDone Direction
}

// Duration is zero until the session has ended.
func (st Stats) Duration() time.Duration {
	if st.Ended.IsZero() {
		return 0
	}
	return st.Ended.Sub(st.Started)
}

// Session exclusively owns both connections from NewSession until Run returns.
type Session struct {
	client     net.Conn
	downstream net.Conn
	pool       *pool.BytePool
	preamble   []byte

	bytesUp   atomic.Int64
	bytesDown atomic.Int64

	mu        sync.Mutex
	started   time.Time
	ended     time.Time
	firstDone Direction

	closeOnce sync.Once
}

// NewSession pairs client with an already connected downstream.
func NewSession(client, downstream net.Conn, opts ...Option) *Session {
	s := &Session{
		client:     client,
		downstream: downstream,
		pool:       defaultPool,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type pipeResult struct {
	dir Direction
	err error
}

// Run relays until one direction reaches EOF or fails, or ctx is done.
// A clean EOF returns nil; I/O failures return *RelayError; cancellation returns ctx.Err().
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.started = time.Now()
	s.mu.Unlock()
	defer s.finish()

	if len(s.preamble) > 0 {
		n, err := s.downstream.Write(s.preamble)
		s.bytesUp.Add(int64(n))
		if err != nil {
			s.Close()
			return &RelayError{Kind: DownstreamIOError, Direction: ClientToDownstream, Err: err}
		}
	}

	results := make(chan pipeResult, 2)
	go func() {
		results <- pipeResult{ClientToDownstream, s.pipe(s.downstream, s.client, ClientToDownstream, &s.bytesUp)}
	}()
	go func() {
		results <- pipeResult{DownstreamToClient, s.pipe(s.client, s.downstream, DownstreamToClient, &s.bytesDown)}
	}()

	var first pipeResult
	var ctxErr error
	select {
	case first = <-results:
	case <-ctx.Done():
		ctxErr = ctx.Err()
	}
	s.Close()
	if ctxErr != nil {
		<-results
		<-results
		return ctxErr
	}
	s.mu.Lock()
	s.firstDone = first.dir
	s.mu.Unlock()
	// the loser fails on the closed sockets; its error is not reported
	<-results
	return first.err
}

// pipe copies src to dst until EOF or error.
func (s *Session) pipe(dst, src net.Conn, dir Direction, counter *atomic.Int64) error {
	bp := s.pool.GetBuffer()
	defer s.pool.PutBuffer(bp)
	buf := *bp
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			counter.Add(int64(w))
			if werr == nil && w < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return &RelayError{Kind: dir.writeKind(), Direction: dir, Err: werr}
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return &RelayError{Kind: dir.readKind(), Direction: dir, Err: rerr}
		}
	}
}

// Close closes both connections. Safe to call more than once and concurrently with Run.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = errors.Join(s.client.Close(), s.downstream.Close())
	})
	return err
}

func (s *Session) finish() {
	s.mu.Lock()
	s.ended = time.Now()
	s.mu.Unlock()
}

// Stats returns a snapshot; byte counters are live while Run is in progress.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		BytesUp:   s.bytesUp.Load(),
		BytesDown: s.bytesDown.Load(),
		Started:   s.started,
		Ended:     s.ended,
		FirstDone: s.firstDone,
	}
}
