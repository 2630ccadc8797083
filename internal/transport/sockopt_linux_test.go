//go:build linux
// +build linux

package transport

import (
	"context"
	"net"
	"testing"

	"golang.org/x/sys/unix"
)

func noDelayEnabled(t *testing.T, tc *net.TCPConn) bool {
	t.Helper()
	raw, err := tc.SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	var v int
	var sockErr error
	if err := raw.Control(func(fd uintptr) {
		v, sockErr = unix.GetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY)
	}); err != nil {
		t.Fatal(err)
	}
	if sockErr != nil {
		t.Fatal(sockErr)
	}
	return v != 0
}

func TestDialer_SetsNoDelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		if c, err := ln.Accept(); err == nil {
			defer c.Close()
			buf := make([]byte, 1)
			_, _ = c.Read(buf)
		}
	}()

	d := &Dialer{}
	conn, err := d.DialContext(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	if !noDelayEnabled(t, conn.(*net.TCPConn)) {
		t.Error("TCP_NODELAY not set on dialed socket")
	}
}

func TestListen_ReuseAddr(t *testing.T) {
	ln, err := Listen(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	raw, err := ln.(*net.TCPListener).SyscallConn()
	if err != nil {
		t.Fatal(err)
	}
	var v int
	_ = raw.Control(func(fd uintptr) {
		v, _ = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR)
	})
	if v == 0 {
		t.Error("SO_REUSEADDR not set on listener")
	}
}
