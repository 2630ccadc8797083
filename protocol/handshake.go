// File: protocol/handshake.go
// Package protocol implements the server side of the WebSocket opening handshake
// used to upgrade a plain TCP stream before raw relaying.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// The request is parsed line by line rather than through net/http: only the
// Sec-WebSocket-Key header matters, and any bytes the client sends after the
// terminating empty line belong to the relayed protocol.

package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Header names are stored lower-cased.
const (
	HeaderSecWebSocketKey = "sec-websocket-key"

	// MaxHandshakeHeaderBytes bounds the whole request head.
	MaxHandshakeHeaderBytes = 8192

	readBufferSize = 4096
)

var errHeadersTooLarge = errors.New("handshake headers too large")

// HandshakeRequest is the parsed request head.
type HandshakeRequest struct {
	// RequestLine is the first line without its terminator. It is not validated.
	RequestLine string
	headers     map[string]string
}

// Header returns the first value seen for name, matched case-insensitively.
func (r *HandshakeRequest) Header(name string) (string, bool) {
	v, ok := r.headers[strings.ToLower(name)]
	return v, ok
}

// Key returns the client handshake key.
func (r *HandshakeRequest) Key() (string, error) {
	key, ok := r.headers[HeaderSecWebSocketKey]
	if !ok || key == "" {
		return "", newHandshakeError(MissingKey, nil)
	}
	return key, nil
}

// ReadHandshakeRequest consumes lines from br up to and including the first
// empty line. CRLF and bare LF terminators are both accepted.
func ReadHandshakeRequest(br *bufio.Reader) (*HandshakeRequest, error) {
	req := &HandshakeRequest{headers: make(map[string]string)}
	total := 0
	first := true
	for {
		line, err := br.ReadSlice('\n')
		total += len(line)
		if errors.Is(err, bufio.ErrBufferFull) || total > MaxHandshakeHeaderBytes {
			return nil, newHandshakeError(IncompleteRequest, errHeadersTooLarge)
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, newHandshakeError(IncompleteRequest, err)
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			return req, nil
		}
		if first {
			req.RequestLine = string(line)
			first = false
			continue
		}
		req.addHeaderLine(string(line))
	}
}

// addHeaderLine splits on the first colon. Lines without one are ignored.
func (r *HandshakeRequest) addHeaderLine(line string) {
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return
	}
	if _, seen := r.headers[name]; seen {
		return
	}
	r.headers[name] = strings.TrimSpace(value)
}

// HandshakeResult describes a completed handshake.
type HandshakeResult struct {
	RequestLine string
	Key         string
	Accept      string
	// Buffered holds client bytes read past the request head. They must reach
	// the downstream before anything else read from the connection.
	Buffered []byte
}

// PerformHandshake reads the upgrade request from rw and writes the 101
// response. Nothing is written unless a key was found.
func PerformHandshake(rw io.ReadWriter) (*HandshakeResult, error) {
	br := bufio.NewReaderSize(rw, readBufferSize)
	req, err := ReadHandshakeRequest(br)
	if err != nil {
		return nil, err
	}
	key, err := req.Key()
	if err != nil {
		return nil, err
	}
	accept := ComputeAcceptKey(key)
	if err := WriteUpgradeResponse(rw, accept); err != nil {
		return nil, err
	}

	res := &HandshakeResult{
		RequestLine: req.RequestLine,
		Key:         key,
		Accept:      accept,
	}
	if n := br.Buffered(); n > 0 {
		peek, _ := br.Peek(n)
		res.Buffered = append([]byte(nil), peek...)
	}
	return res, nil
}

// WriteUpgradeResponse writes the fixed 101 Switching Protocols response in one call.
func WriteUpgradeResponse(w io.Writer, accept string) error {
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n" +
		"\r\n"
	n, err := io.WriteString(w, resp)
	if err == nil && n < len(resp) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return newHandshakeError(WriteFailed, err)
	}
	return nil
}

// WriteHandshakeRequest writes a minimal client upgrade request for host and path.
func WriteHandshakeRequest(w io.Writer, host, path, key string) error {
	if path == "" {
		path = "/"
	}
	_, err := fmt.Fprintf(w, "GET %s HTTP/1.1\r\n"+
		"Host: %s\r\n"+
		"Upgrade: websocket\r\n"+
		"Connection: Upgrade\r\n"+
		"Sec-WebSocket-Key: %s\r\n"+
		"Sec-WebSocket-Version: 13\r\n"+
		"\r\n", path, host, key)
	if err != nil {
		return fmt.Errorf("handshake write request: %w", err)
	}
	return nil
}
