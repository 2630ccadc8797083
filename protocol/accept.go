// File: protocol/accept.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RFC6455 Section 1.3 key/accept derivation.

package protocol

import (
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
)

// WebSocketGUID is appended to the client key before hashing.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ComputeAcceptKey computes the Sec-WebSocket-Accept value from the client's key.
func ComputeAcceptKey(clientKey string) string {
	hash := sha1.Sum([]byte(clientKey + WebSocketGUID))
	return base64.StdEncoding.EncodeToString(hash[:])
}

// NewHandshakeKey returns a fresh base64-encoded 16-byte nonce for client requests.
func NewHandshakeKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("handshake key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}
