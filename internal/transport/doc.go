// File: internal/transport/doc.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// TCP socket layer for the relay: dual-stack listening sockets, downstream
// dialing and per-socket tuning. Platform specifics are split by build tags;
// Linux applies options directly through golang.org/x/sys/unix.

package transport
