package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-wsrelay/control"
	"github.com/momentics/hioload-wsrelay/internal/session"
	"github.com/momentics/hioload-wsrelay/pool"
	"github.com/momentics/hioload-wsrelay/relay"
)

// Config holds all relay server configuration parameters.
type Config struct {
	ListenPort       int           // TCP port bound on all interfaces; 0 picks an ephemeral port
	Downstream       string        // host:port every upgraded client is relayed to
	DialTimeout      time.Duration // downstream connect timeout (0 = OS default)
	HandshakeTimeout time.Duration // optional deadline for the upgrade request (0 = none)
	CopyBufferSize   int           // per-direction relay buffer
	HistorySize      int           // finished sessions kept for /debug/state
	SessionShards    int           // shards of the live session registry
	AdminAddr        string        // optional listen address for /metrics and /debug/state
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenPort:       80,
		Downstream:       "127.0.0.1:22",
		DialTimeout:      10 * time.Second,
		HandshakeTimeout: 0,
		CopyBufferSize:   pool.DefaultBufferSize,
		HistorySize:      64,
		SessionShards:    16,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	if c.ListenPort < 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen port %d out of range", c.ListenPort)
	}
	if c.Downstream == "" {
		return errors.New("downstream address is required")
	}
	if _, _, err := net.SplitHostPort(c.Downstream); err != nil {
		return fmt.Errorf("downstream address %q: %w", c.Downstream, err)
	}
	if c.DialTimeout < 0 || c.HandshakeTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Server accepts clients, upgrades them and relays them to the downstream.
type Server struct {
	cfg      *Config
	log      zerolog.Logger
	metrics  *control.Metrics
	probes   *control.DebugProbes
	history  *control.History
	sessions session.SessionManager
	dialer   relay.Dialer
	pool     *pool.BytePool
	newID    func() string

	mu     sync.Mutex
	ln     net.Listener
	closed bool
	conns  sync.WaitGroup
}
