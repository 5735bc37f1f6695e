package protocol_test

import (
	"context"
	"net"
	"testing"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/protocol"
	"github.com/momentics/wscore/transport"
)

func TestReceiveMessageAutoPongAnswersPing(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	conn := protocol.NewConnection(transport.NewConn(server), api.RoleServer, nil, protocol.Options{})

	// The pong is read on the peer side while ReceiveMessageAutoPong runs:
	// Send blocks until its frame is written, and net.Pipe only completes
	// a write once the other end reads it.
	type pongResult struct {
		hdr, body       []byte
		hdrErr, bodyErr error
	}
	pongCh := make(chan pongResult, 1)
	go func() {
		key := [4]byte{0x01, 0x02, 0x03, 0x04}
		payload := []byte("ping-body")
		masked := make([]byte, len(payload))
		for i, b := range payload {
			masked[i] = b ^ key[i%4]
		}
		client.Write([]byte{api.FinBit | api.OpcodePing, api.MaskBit | byte(len(payload))})
		client.Write(key[:])
		client.Write(masked)

		var r pongResult
		r.hdr = make([]byte, 2)
		if _, r.hdrErr = readFull(client, r.hdr); r.hdrErr == nil {
			r.body = make([]byte, r.hdr[1])
			_, r.bodyErr = readFull(client, r.body)
		}
		pongCh <- r
	}()

	p, err := protocol.ReceiveMessageAutoPong(context.Background(), conn)
	if err != nil {
		t.Fatalf("ReceiveMessageAutoPong: %v", err)
	}
	if p.Kind != api.KindPing || string(p.Bytes()) != "ping-body" {
		t.Fatalf("got %+v, want Ping \"ping-body\"", p)
	}

	r := <-pongCh
	if r.hdrErr != nil {
		t.Fatalf("reading pong header: %v", r.hdrErr)
	}
	if r.hdr[0] != api.FinBit|api.OpcodePong {
		t.Fatalf("header byte0 = %#x, want fin+pong", r.hdr[0])
	}
	if r.bodyErr != nil {
		t.Fatalf("reading pong body: %v", r.bodyErr)
	}
	if string(r.body) != "ping-body" {
		t.Errorf("pong body = %q, want %q", r.body, "ping-body")
	}
}
