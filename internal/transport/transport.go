// File: internal/transport/transport.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// Listen binds all interfaces on port, preferring the IPv6 wildcard so that
// one socket serves both families. It falls back to IPv4 when IPv6 is unavailable.
func Listen(ctx context.Context, port int) (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl}
	p := strconv.Itoa(port)
	ln, err := lc.Listen(ctx, "tcp", net.JoinHostPort("::", p))
	if err == nil {
		return ln, nil
	}
	ln, err4 := lc.Listen(ctx, "tcp4", net.JoinHostPort("0.0.0.0", p))
	if err4 != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	return ln, nil
}

// Dialer opens downstream connections.
type Dialer struct {
	Timeout time.Duration
}

// DialContext connects to addr and tunes the resulting socket.
func (d *Dialer) DialContext(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	_ = Tune(conn)
	return conn, nil
}

// Tune disables Nagle's algorithm on TCP sockets. Relayed protocols are
// frequently interactive (remote shells). Non-TCP conns are left untouched.
func Tune(conn net.Conn) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	return setNoDelay(tc)
}
