//go:build !linux
// +build !linux

// File: internal/transport/sockopt_other.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"net"
	"syscall"
)

// listenControl is a no-op; the runtime defaults apply.
func listenControl(network, address string, c syscall.RawConn) error { return nil }

func setNoDelay(tc *net.TCPConn) error { return tc.SetNoDelay(true) }
