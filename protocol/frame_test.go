package protocol

import (
	"context"
	"net"
	"testing"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/transport"
)

func TestEncodeHeaderLenPicksShortestEncoding(t *testing.T) {
	cases := map[uint64]int{
		0:      2,
		125:    2,
		126:    4,
		0xFFFF: 4,
		0x10000: 10,
	}
	for n, want := range cases {
		if got := encodeHeaderLen(n); got != want {
			t.Errorf("encodeHeaderLen(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestEncodeDecodeHeaderRoundtrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := transport.NewConn(server)
	cc := transport.NewConn(client)

	cases := []struct {
		name       string
		payloadLen uint64
	}{
		{"short", 10},
		{"16bit", 300},
		{"64bit", 1 << 17},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			hdrLen := encodeHeaderLen(c.payloadLen)
			buf := make([]byte, hdrLen)
			encodeHeader(buf, true, api.OpcodeBinary, false, c.payloadLen)

			errCh := make(chan error, 1)
			go func() {
				errCh <- cc.WriteAll(context.Background(), buf)
			}()

			h, err := decodeHeader(context.Background(), sc)
			if err != nil {
				t.Fatalf("decodeHeader: %v", err)
			}
			if err := <-errCh; err != nil {
				t.Fatalf("WriteAll: %v", err)
			}
			if !h.Fin || h.Opcode != api.OpcodeBinary || h.Masked || h.PayloadLen != c.payloadLen {
				t.Errorf("decoded header = %+v, want Fin=true Opcode=%#x Masked=false PayloadLen=%d",
					h, api.OpcodeBinary, c.payloadLen)
			}
		})
	}
}

func TestDecodeHeaderRejectsReservedBits(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := transport.NewConn(server)
	go func() {
		_, _ = client.Write([]byte{api.FinBit | api.RSV1Bit | api.OpcodeText, 0x00})
	}()

	_, err := decodeHeader(context.Background(), sc)
	if err == nil {
		t.Fatal("expected a protocol error for a set RSV1 bit")
	}
}

func TestDecodeHeaderRejectsOversizedControlFrame(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	sc := transport.NewConn(server)
	go func() {
		_, _ = client.Write([]byte{api.FinBit | api.OpcodePing, 126})
		ext := make([]byte, 2)
		ext[0], ext[1] = 0, 126
		_, _ = client.Write(ext)
	}()

	_, err := decodeHeader(context.Background(), sc)
	if err == nil {
		t.Fatal("expected a protocol error for a 126-byte ping")
	}
}
