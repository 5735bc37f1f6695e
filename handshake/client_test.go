package handshake_test

import (
	"context"
	"net"
	"testing"

	"github.com/momentics/wscore/handshake"
)

func TestDialRejectsNon101Response(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		conn.Read(buf)
		conn.Write([]byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"))
	}()

	_, err = handshake.Dial(context.Background(), "ws://"+ln.Addr().String(), handshake.DialOptions{})
	if err == nil {
		t.Fatal("Dial succeeded against a server that refused the upgrade")
	}
}

func TestDialRejectsUnsupportedScheme(t *testing.T) {
	_, err := handshake.Dial(context.Background(), "ftp://example.com", handshake.DialOptions{})
	if err == nil {
		t.Fatal("Dial succeeded with an unsupported scheme")
	}
}
