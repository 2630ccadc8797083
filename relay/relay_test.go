package relay_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-wsrelay/internal/transport"
	"github.com/momentics/hioload-wsrelay/pool"
	"github.com/momentics/hioload-wsrelay/relay"
)

// startDownstream serves each accepted conn with handle on a loopback port.
func startDownstream(t *testing.T, handle func(net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go handle(c)
		}
	}()
	return ln.Addr().String()
}

func echo(c net.Conn) {
	defer c.Close()
	io.Copy(c, c)
}

func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func runRelay(ctx context.Context, client net.Conn, addr string, opts ...relay.Option) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- relay.Relay(ctx, client, &transport.Dialer{Timeout: time.Second}, addr, opts...)
	}()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not terminate")
		return nil
	}
}

func TestRelay_RoundTrip(t *testing.T) {
	addr := startDownstream(t, echo)
	user, side := net.Pipe()
	done := runRelay(context.Background(), side, addr)

	for _, msg := range []string{"hello", "SSH-2.0-OpenSSH_9.6\r\n", string(bytes.Repeat([]byte{0, 0xff, 0x7f}, 4096))} {
		if _, err := user.Write([]byte(msg)); err != nil {
			t.Fatal(err)
		}
		got := make([]byte, len(msg))
		user.SetReadDeadline(time.Now().Add(2 * time.Second))
		if _, err := io.ReadFull(user, got); err != nil {
			t.Fatalf("read echo: %v", err)
		}
		if string(got) != msg {
			t.Fatalf("echo mismatch for %d-byte message", len(msg))
		}
	}
	user.Close()
	if err := waitErr(t, done); err != nil {
		t.Errorf("Relay after client close = %v, want nil", err)
	}
}

func TestRelay_DownstreamUnreachable(t *testing.T) {
	user, side := net.Pipe()
	err := waitErr(t, runRelay(context.Background(), side, closedAddr(t)))
	if !errors.Is(err, relay.ErrDownstreamUnreachable) {
		t.Fatalf("err = %v, want ErrDownstreamUnreachable", err)
	}
	user.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := user.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("client read after failed dial = %v, want EOF", err)
	}
}

func TestRelay_DownstreamCloseClosesClient(t *testing.T) {
	addr := startDownstream(t, func(c net.Conn) {
		c.Write([]byte("bye"))
		c.Close()
	})
	user, side := net.Pipe()
	done := runRelay(context.Background(), side, addr)

	user.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := io.ReadAll(user)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "bye" {
		t.Errorf("got %q, want bye", got)
	}
	if err := waitErr(t, done); err != nil {
		t.Errorf("Relay = %v, want nil", err)
	}
	if _, err := user.Write([]byte("late")); err == nil {
		t.Error("write after relay end succeeded silently")
	}
}

func TestRelay_ClientCloseClosesDownstream(t *testing.T) {
	sawEOF := make(chan struct{})
	addr := startDownstream(t, func(c net.Conn) {
		defer c.Close()
		io.Copy(io.Discard, c)
		close(sawEOF)
	})
	user, side := net.Pipe()
	done := runRelay(context.Background(), side, addr)
	user.Write([]byte("x"))
	user.Close()

	select {
	case <-sawEOF:
	case <-time.After(2 * time.Second):
		t.Fatal("downstream never observed close")
	}
	if err := waitErr(t, done); err != nil {
		t.Errorf("Relay = %v", err)
	}
}

func TestSession_ContextCancel(t *testing.T) {
	addr := startDownstream(t, func(c net.Conn) {
		defer c.Close()
		io.Copy(io.Discard, c)
	})
	ctx, cancel := context.WithCancel(context.Background())
	user, side := net.Pipe()
	defer user.Close()
	done := runRelay(ctx, side, addr)
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := waitErr(t, done); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestSession_PreambleAndStats(t *testing.T) {
	got := make(chan []byte, 1)
	addr := startDownstream(t, func(c net.Conn) {
		defer c.Close()
		b, _ := io.ReadAll(c)
		got <- b
	})
	d := &transport.Dialer{Timeout: time.Second}
	down, err := relay.Dial(context.Background(), d, addr)
	if err != nil {
		t.Fatal(err)
	}
	user, side := net.Pipe()
	s := relay.NewSession(side, down,
		relay.WithPreamble([]byte("early-")),
		relay.WithBufferPool(pool.NewBytePool(16)))
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	user.Write([]byte("late"))
	user.Close()
	if err := waitErr(t, done); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-got:
		if string(b) != "early-late" {
			t.Errorf("downstream got %q", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("downstream did not finish")
	}
	st := s.Stats()
	if st.BytesUp != int64(len("early-late")) {
		t.Errorf("BytesUp = %d", st.BytesUp)
	}
	if st.FirstDone != relay.ClientToDownstream {
		t.Errorf("FirstDone = %v", st.FirstDone)
	}
	if st.Duration() <= 0 {
		t.Errorf("Duration = %v", st.Duration())
	}
}

func TestRelay_SessionsIndependent(t *testing.T) {
	stall := make(chan struct{})
	defer close(stall)
	slow := startDownstream(t, func(c net.Conn) {
		defer c.Close()
		<-stall
	})
	fast := startDownstream(t, echo)

	slowUser, slowSide := net.Pipe()
	defer slowUser.Close()
	runRelay(context.Background(), slowSide, slow)

	user, side := net.Pipe()
	done := runRelay(context.Background(), side, fast)
	user.Write([]byte("ping"))
	buf := make([]byte, 4)
	user.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(user, buf); err != nil || string(buf) != "ping" {
		t.Fatalf("fast session blocked: %q %v", buf, err)
	}
	user.Close()
	waitErr(t, done)
}

func TestRelayError_Format(t *testing.T) {
	err := &relay.RelayError{Kind: relay.ClientIOError, Direction: relay.ClientToDownstream, Err: io.ErrUnexpectedEOF}
	if !errors.Is(err, relay.ErrClientIO) || errors.Is(err, relay.ErrDownstreamIO) {
		t.Errorf("Is mismatch for %v", err)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause not unwrapped")
	}
	want := "relay: client i/o error (client->downstream): unexpected EOF"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
