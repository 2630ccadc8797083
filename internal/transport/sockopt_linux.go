//go:build linux
// +build linux

// File: internal/transport/sockopt_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenControl enables address reuse and clears IPV6_V6ONLY on IPv6 sockets.
func listenControl(network, address string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
			return
		}
		if network == "tcp" || network == "tcp6" {
			// fails on IPv4 sockets; ignore
			_ = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0)
		}
	})
	if err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", sockErr)
	}
	return nil
}

func setNoDelay(tc *net.TCPConn) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}); err != nil {
		return err
	}
	if sockErr != nil {
		return fmt.Errorf("setsockopt TCP_NODELAY: %w", sockErr)
	}
	return nil
}
