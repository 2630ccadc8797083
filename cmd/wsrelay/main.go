// File: cmd/wsrelay/main.go
// Package main
// WebSocket-upgrade TCP relay: answers the opening handshake, then pipes raw
// bytes to a fixed downstream service (SSH on loopback by default).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
