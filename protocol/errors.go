// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package protocol

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed handshake.
type ErrorKind int

const (
	IncompleteRequest ErrorKind = iota + 1
	MissingKey
	WriteFailed
)

// Sentinels matched by errors.Is against any *HandshakeError of the same kind.
var (
	ErrIncompleteRequest = errors.New("incomplete handshake request")
	ErrMissingKey        = errors.New("missing Sec-WebSocket-Key header")
	ErrWriteFailed       = errors.New("write handshake response failed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case IncompleteRequest:
		return ErrIncompleteRequest
	case MissingKey:
		return ErrMissingKey
	case WriteFailed:
		return ErrWriteFailed
	}
	return nil
}

func (k ErrorKind) String() string {
	switch k {
	case IncompleteRequest:
		return "incomplete_request"
	case MissingKey:
		return "missing_key"
	case WriteFailed:
		return "write_failed"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// HandshakeError is returned by every handshake step. Err holds the I/O cause, if any.
type HandshakeError struct {
	Kind ErrorKind
	Err  error
}

func (e *HandshakeError) Error() string {
	msg := "handshake: " + e.Kind.String()
	if s := e.Kind.sentinel(); s != nil {
		msg = "handshake: " + s.Error()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e.Kind.
func (e *HandshakeError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newHandshakeError(kind ErrorKind, cause error) *HandshakeError {
	return &HandshakeError{Kind: kind, Err: cause}
}
