// File: handshake/client.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package handshake

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/protocol"
	"github.com/momentics/wscore/transport"
)

// DialOptions configures Dial.
type DialOptions struct {
	// Header carries additional request headers (e.g. Origin, cookies).
	Header http.Header
	// Protocols requests subprotocols via Sec-WebSocket-Protocol.
	Protocols []string
	// ConnOptions are forwarded to protocol.NewConnection.
	ConnOptions protocol.Options
}

// Dial opens a TCP connection to the ws:// or wss:// URL rawURL,
// performs the client-side RFC 6455 handshake, and returns a
// client-role protocol.Connection.
func Dial(ctx context.Context, rawURL string, opts DialOptions) (*protocol.Connection, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("handshake: parsing url: %w", err)
	}

	var dialer net.Dialer
	network, addr, useTLS, err := dialTarget(u)
	if err != nil {
		return nil, err
	}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("handshake: dial %s: %w", addr, err)
	}
	if useTLS {
		conn, err = upgradeTLS(conn, u.Hostname())
		if err != nil {
			return nil, err
		}
	}
	if err := transport.SetNoDelay(conn); err != nil {
		log.Printf("[handshake] TCP_NODELAY unavailable for %s: %v", addr, err)
	}

	key, err := generateWebSocketKey()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: generating Sec-WebSocket-Key: %w", err)
	}

	if err := writeUpgradeRequest(conn, u, key, opts); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: writing request: %w", err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, nil)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: reading response: %w", err)
	}
	defer resp.Body.Close()

	if err := validateUpgradeResponse(resp, key); err != nil {
		conn.Close()
		return nil, err
	}

	stream := transport.NewConn(&bufferedConn{Conn: conn, r: br})
	return protocol.NewConnection(stream, api.RoleClient, nil, opts.ConnOptions), nil
}

func dialTarget(u *url.URL) (network, addr string, useTLS bool, err error) {
	switch strings.ToLower(u.Scheme) {
	case "ws":
		useTLS = false
	case "wss":
		useTLS = true
	default:
		return "", "", false, fmt.Errorf("handshake: unsupported scheme %q", u.Scheme)
	}
	host := u.Host
	if u.Port() == "" {
		if useTLS {
			host = net.JoinHostPort(u.Hostname(), "443")
		} else {
			host = net.JoinHostPort(u.Hostname(), "80")
		}
	}
	return "tcp", host, useTLS, nil
}

func generateWebSocketKey() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func writeUpgradeRequest(w io.Writer, u *url.URL, key string, opts DialOptions) error {
	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(bw, "Host: %s\r\n", u.Host)
	bw.WriteString("Upgrade: websocket\r\n")
	bw.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(bw, "Sec-WebSocket-Key: %s\r\n", key)
	bw.WriteString("Sec-WebSocket-Version: 13\r\n")
	if len(opts.Protocols) > 0 {
		fmt.Fprintf(bw, "Sec-WebSocket-Protocol: %s\r\n", strings.Join(opts.Protocols, ", "))
	}
	for k, vs := range opts.Header {
		for _, v := range vs {
			fmt.Fprintf(bw, "%s: %s\r\n", k, v)
		}
	}
	bw.WriteString("\r\n")
	return bw.Flush()
}

func validateUpgradeResponse(resp *http.Response, key string) error {
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return fmt.Errorf("handshake: server returned %s, expected 101", resp.Status)
	}
	if !headerContainsToken(resp.Header, "Upgrade", "websocket") {
		return ErrInvalidUpgradeToken
	}
	if !headerContainsToken(resp.Header, "Connection", "Upgrade") {
		return ErrInvalidConnToken
	}
	want := computeAcceptKey(key)
	if resp.Header.Get("Sec-WebSocket-Accept") != want {
		return fmt.Errorf("handshake: Sec-WebSocket-Accept mismatch")
	}
	return nil
}

func upgradeTLS(conn net.Conn, serverName string) (net.Conn, error) {
	tlsConn := tls.Client(conn, &tls.Config{ServerName: serverName})
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake: tls handshake: %w", err)
	}
	return tlsConn, nil
}

// bufferedConn splices back any bytes ReadResponse's bufio.Reader may
// have buffered past the header block before net.Conn reads resume.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) {
	if b.r.Buffered() > 0 {
		return b.r.Read(p)
	}
	return b.Conn.Read(p)
}
