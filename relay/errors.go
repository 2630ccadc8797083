// File: relay/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package relay

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed relay session.
type ErrorKind int

const (
	DownstreamUnreachable ErrorKind = iota + 1
	ClientIOError
	DownstreamIOError
)

var (
	ErrDownstreamUnreachable = errors.New("downstream unreachable")
	ErrClientIO              = errors.New("client i/o error")
	ErrDownstreamIO          = errors.New("downstream i/o error")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case DownstreamUnreachable:
		return ErrDownstreamUnreachable
	case ClientIOError:
		return ErrClientIO
	case DownstreamIOError:
		return ErrDownstreamIO
	}
	return nil
}

func (k ErrorKind) String() string {
	switch k {
	case DownstreamUnreachable:
		return "downstream_unreachable"
	case ClientIOError:
		return "client_io"
	case DownstreamIOError:
		return "downstream_io"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Direction names one copy loop of a session.
type Direction int

const (
	ClientToDownstream Direction = iota + 1
	DownstreamToClient
)

func (d Direction) String() string {
	switch d {
	case ClientToDownstream:
		return "client->downstream"
	case DownstreamToClient:
		return "downstream->client"
	}
	return "none"
}

// readKind is the error kind for a failed read in direction d.
func (d Direction) readKind() ErrorKind {
	if d == ClientToDownstream {
		return ClientIOError
	}
	return DownstreamIOError
}

// writeKind is the error kind for a failed write in direction d.
func (d Direction) writeKind() ErrorKind {
	if d == ClientToDownstream {
		return DownstreamIOError
	}
	return ClientIOError
}

// RelayError reports a failed session. Direction is zero for DownstreamUnreachable.
type RelayError struct {
	Kind      ErrorKind
	Direction Direction
	Err       error
}

func (e *RelayError) Error() string {
	msg := "relay: " + e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = "relay: " + s.Error()
	}
	if e.Direction != 0 {
		msg += " (" + e.Direction.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelayError) Unwrap() error { return e.Err }

func (e *RelayError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}
