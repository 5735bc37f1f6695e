// File: handshake/server.go
// Package handshake performs the RFC 6455 HTTP upgrade dance and hands
// back a protocol.Connection wired to the hijacked TCP socket.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handshake

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/protocol"
	"github.com/momentics/wscore/transport"
)

const websocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// Errors returned by Accept when the request does not qualify as a
// valid WebSocket upgrade.
var (
	ErrNotHijackable       = errors.New("handshake: response writer does not support hijacking")
	ErrInvalidMethod       = errors.New("handshake: upgrade request must use GET")
	ErrInvalidUpgradeToken = errors.New("handshake: missing or invalid Upgrade header")
	ErrInvalidConnToken    = errors.New("handshake: missing or invalid Connection header")
	ErrMissingKey          = errors.New("handshake: missing or malformed Sec-WebSocket-Key header")
	ErrBadVersion          = errors.New("handshake: unsupported Sec-WebSocket-Version, only 13 is accepted")
)

// AcceptOptions configures Accept.
type AcceptOptions struct {
	// Protocol, if set, is echoed back as Sec-WebSocket-Protocol when
	// the client offered it among its requested subprotocols.
	Protocol string
	// ConnOptions are forwarded to protocol.NewConnection.
	ConnOptions protocol.Options
}

// Accept validates r as a WebSocket upgrade request, hijacks the
// underlying connection, writes the 101 response, and returns a
// server-role protocol.Connection ready for ReceiveMessage/Send.
//
// On any validation failure Accept writes an appropriate HTTP error
// response (when the connection has not yet been hijacked) and returns
// a non-nil error. If writing the 101 response fails after the hijack,
// Accept closes the hijacked connection itself before returning the
// error.
func Accept(w http.ResponseWriter, r *http.Request, opts AcceptOptions) (*protocol.Connection, error) {
	if err := validateUpgradeRequest(r); err != nil {
		log.Printf("[handshake] rejected upgrade from %s: %v", r.RemoteAddr, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, err
	}

	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, ErrNotHijackable.Error(), http.StatusInternalServerError)
		return nil, ErrNotHijackable
	}
	conn, rw, err := hj.Hijack()
	if err != nil {
		return nil, fmt.Errorf("handshake: hijack failed: %w", err)
	}

	if err := transport.SetNoDelay(conn); err != nil {
		log.Printf("[handshake] TCP_NODELAY unavailable for %s: %v", r.RemoteAddr, err)
	}

	accept := computeAcceptKey(r.Header.Get("Sec-WebSocket-Key"))
	protocolName := ""
	if opts.Protocol != "" && headerContainsToken(r.Header, "Sec-WebSocket-Protocol", opts.Protocol) {
		protocolName = opts.Protocol
	}
	if err := writeUpgradeResponse(rw.Writer, accept, protocolName); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: writing 101 response: %w", err)
	}

	stream := transport.NewConn(conn)
	return protocol.NewConnection(stream, api.RoleServer, nil, opts.ConnOptions), nil
}

func validateUpgradeRequest(r *http.Request) error {
	if r.Method != http.MethodGet {
		return ErrInvalidMethod
	}
	if !headerContainsToken(r.Header, "Upgrade", "websocket") {
		return ErrInvalidUpgradeToken
	}
	if !headerContainsToken(r.Header, "Connection", "Upgrade") {
		return ErrInvalidConnToken
	}
	key := r.Header.Get("Sec-WebSocket-Key")
	raw, err := base64.StdEncoding.DecodeString(key)
	if key == "" || err != nil || len(raw) != 16 {
		return ErrMissingKey
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		return ErrBadVersion
	}
	return nil
}

func computeAcceptKey(clientKey string) string {
	h := sha1.New()
	h.Write([]byte(clientKey + websocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func writeUpgradeResponse(w *bufio.Writer, accept, protocolName string) error {
	if _, err := w.WriteString("HTTP/1.1 101 Switching Protocols\r\n"); err != nil {
		return err
	}
	headers := []string{
		"Upgrade: websocket\r\n",
		"Connection: Upgrade\r\n",
		"Sec-WebSocket-Accept: " + accept + "\r\n",
	}
	if protocolName != "" {
		headers = append(headers, "Sec-WebSocket-Protocol: "+protocolName+"\r\n")
	}
	for _, h := range headers {
		if _, err := w.WriteString(h); err != nil {
			return err
		}
	}
	if _, err := w.WriteString("\r\n"); err != nil {
		return err
	}
	return w.Flush()
}

func headerContainsToken(h http.Header, headerName, token string) bool {
	token = strings.ToLower(token)
	for _, v := range h[http.CanonicalHeaderKey(headerName)] {
		for _, p := range strings.Split(v, ",") {
			if strings.ToLower(strings.TrimSpace(p)) == token {
				return true
			}
		}
	}
	return false
}
