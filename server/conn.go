// File: server/conn.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection task: handshake, downstream dial, relay. The response is
// fully written before the downstream is dialed, so no client byte reaches the
// downstream ahead of the upgrade.

package server

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsrelay/control"
	"github.com/momentics/hioload-wsrelay/internal/session"
	"github.com/momentics/hioload-wsrelay/internal/transport"
	"github.com/momentics/hioload-wsrelay/protocol"
	"github.com/momentics/hioload-wsrelay/relay"
)

// Session outcomes recorded in history.
const (
	outcomeClosed          = "closed"
	outcomeCancelled       = "cancelled"
	outcomeHandshakeFailed = "handshake_failed"
	outcomeRelayFailed     = "relay_failed"
)

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.conns.Done()

	id := s.newID()
	remote := conn.RemoteAddr().String()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// cancelling must also unblock a handshake read, which ctx alone cannot
	sess, err := s.sessions.Create(id, remote, func() {
		cancel()
		conn.Close()
	})
	if err != nil {
		conn.Close()
		s.log.Error().Err(err).Str("conn", id).Msg("register session")
		return
	}
	defer s.sessions.Delete(id)
	// accepted concurrently with Shutdown and registered after CancelAll
	if s.isClosed() {
		sess.Cancel()
		return
	}

	log := s.log.With().Str("conn", id).Str("remote", remote).Logger()
	log.Debug().Msg("connection accepted")
	s.metrics.ConnectionAccepted()
	if err := transport.Tune(conn); err != nil {
		log.Debug().Err(err).Msg("tune client socket")
	}

	rec := control.SessionRecord{ID: id, Remote: remote, Started: sess.Started()}
	defer func() {
		rec.Ended = time.Now()
		s.history.Add(rec)
	}()

	res, err := s.handshake(conn)
	if err != nil {
		kind := "unknown"
		var he *protocol.HandshakeError
		if errors.As(err, &he) {
			kind = he.Kind.String()
		}
		s.metrics.Handshake(kind)
		rec.Outcome, rec.Error = outcomeHandshakeFailed, err.Error()
		log.Warn().Err(err).Str("kind", kind).Msg("handshake failed")
		return
	}
	s.metrics.Handshake(control.HandshakeOK)
	log.Debug().Str("request", res.RequestLine).Msg("handshake complete")

	sess.SetStage(session.StageDialing)
	downstream, err := relay.Dial(ctx, s.dialer, s.cfg.Downstream)
	if err != nil {
		s.recordRelayError(&log, &rec, err)
		return
	}

	sess.SetStage(session.StageRelaying)
	rs := relay.NewSession(conn, downstream,
		relay.WithBufferPool(s.pool),
		relay.WithPreamble(res.Buffered))
	s.metrics.SessionStarted()
	err = rs.Run(ctx)
	st := rs.Stats()
	s.metrics.SessionEnded(st.BytesUp, st.BytesDown, st.Duration())
	rec.BytesUp, rec.BytesDown = st.BytesUp, st.BytesDown

	switch {
	case err == nil:
		rec.Outcome = outcomeClosed
		log.Info().
			Int64("bytes_up", st.BytesUp).
			Int64("bytes_down", st.BytesDown).
			Dur("duration", st.Duration()).
			Stringer("closed_by", st.FirstDone).
			Msg("session closed")
	case ctx.Err() != nil:
		rec.Outcome = outcomeCancelled
		log.Info().Msg("session cancelled")
	default:
		s.recordRelayError(&log, &rec, err)
	}
}

// handshake runs the upgrade under the optional handshake deadline.
func (s *Server) handshake(conn net.Conn) (*protocol.HandshakeResult, error) {
	if s.cfg.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout))
		defer conn.SetDeadline(time.Time{})
	}
	return protocol.PerformHandshake(conn)
}

func (s *Server) recordRelayError(log *zerolog.Logger, rec *control.SessionRecord, err error) {
	kind := "unknown"
	ev := log.Warn().Err(err)
	var re *relay.RelayError
	if errors.As(err, &re) {
		kind = re.Kind.String()
		if re.Direction != 0 {
			ev = ev.Stringer("direction", re.Direction)
		}
	}
	s.metrics.RelayError(kind)
	rec.Outcome, rec.Error = outcomeRelayFailed, err.Error()
	ev.Str("kind", kind).Msg("relay failed")
}
