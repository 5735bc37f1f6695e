// File: api/websocket.go
// Author: momentics <momentics@gmail.com>
//
// Defines the WebSocket data model shared by the frame codec, the
// receive/send state machine, and the handshake adapters: Role,
// PayloadKind, the tagged Payload union, FrameHeader, and the Stream
// boundary interface the core consumes instead of a raw net.Conn.

package api

import "context"

// Role is fixed for a Connection's lifetime and determines masking
// obligations: Client frames must be masked, Server frames must not be.
type Role uint8

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "server"
}

// PayloadKind tags the application-visible message/control variants.
// Continuation (opcode 0x0) is a frame-level concept only and is never
// exposed as a PayloadKind.
type PayloadKind uint8

const (
	KindText PayloadKind = iota
	KindBinary
	KindClose
	KindPing
	KindPong
	// KindInvalid is produced internally when a frame's opcode is not
	// recognized (a reserved data or control opcode); it carries no data.
	KindInvalid
)

func (k PayloadKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindClose:
		return "close"
	case KindPing:
		return "ping"
	case KindPong:
		return "pong"
	default:
		return "invalid"
	}
}

// Opcode returns the wire opcode for the data/control kinds that have
// one. KindInvalid has no wire representation.
func (k PayloadKind) Opcode() byte {
	switch k {
	case KindText:
		return OpcodeText
	case KindBinary:
		return OpcodeBinary
	case KindClose:
		return OpcodeClose
	case KindPing:
		return OpcodePing
	case KindPong:
		return OpcodePong
	default:
		return 0
	}
}

// Payload is a discriminated union keyed by Kind, the Go idiom for a
// tagged variant (no inheritance). Only the fields relevant to Kind are
// populated by the constructors below.
type Payload struct {
	Kind Kind

	Text []byte // Text: UTF-8 bytes (exposed as string via Payload.String)

	Binary []byte // Binary: ordered bytes

	CloseCode   uint16 // Close: 16-bit status code
	CloseReason string // Close: optional UTF-8 reason

	Control []byte // Ping/Pong: ≤125 bytes
}

// Kind is an alias retained so call sites can write either api.Kind or
// api.PayloadKind; both name the same tagged-union discriminant.
type Kind = PayloadKind

// NewText builds a Text payload from a UTF-8 string.
func NewText(s string) Payload {
	return Payload{Kind: KindText, Text: []byte(s)}
}

// NewBinary builds a Binary payload.
func NewBinary(b []byte) Payload {
	return Payload{Kind: KindBinary, Binary: b}
}

// NewClose builds a Close payload with an optional reason.
func NewClose(code uint16, reason string) Payload {
	return Payload{Kind: KindClose, CloseCode: code, CloseReason: reason}
}

// NewPing builds a Ping payload. b must be ≤125 bytes per RFC 6455.
func NewPing(b []byte) Payload {
	return Payload{Kind: KindPing, Control: b}
}

// NewPong builds a Pong payload. b must be ≤125 bytes per RFC 6455.
func NewPong(b []byte) Payload {
	return Payload{Kind: KindPong, Control: b}
}

// String returns the text of a Text payload, or "" for any other kind.
func (p Payload) String() string {
	if p.Kind == KindText {
		return string(p.Text)
	}
	return ""
}

// Bytes returns the application bytes carried by p, regardless of kind
// (Text and Binary data, or the control payload for Ping/Pong). Close
// payloads return nil; use CloseCode/CloseReason instead.
func (p Payload) Bytes() []byte {
	switch p.Kind {
	case KindText:
		return p.Text
	case KindBinary:
		return p.Binary
	case KindPing, KindPong:
		return p.Control
	default:
		return nil
	}
}

// FrameHeader is the parsed form of a single frame's metadata, decoded
// bit-exact per RFC 6455 §5.2.
type FrameHeader struct {
	Fin        bool
	RSV1       bool
	RSV2       bool
	RSV3       bool
	Opcode     byte
	Masked     bool
	PayloadLen uint64
	MaskKey    [4]byte
}

// IsControl reports whether Opcode identifies a control frame (Close,
// Ping, Pong); control frames must have Fin=true and PayloadLen≤125.
func (h FrameHeader) IsControl() bool {
	return h.Opcode >= OpcodeClose
}

// Stream is the byte-oriented duplex interface the core consumes. An
// external handshake adapter is responsible for producing an
// already-upgraded Stream; the core never dials or accepts TCP/TLS
// itself.
type Stream interface {
	// ReadExact blocks/suspends until exactly len(buf) bytes have been
	// read into buf, or returns an error. Any failure to fill buf, whether
	// the stream ended before the first byte or part way through, surfaces
	// as a RecvShort error.
	ReadExact(ctx context.Context, buf []byte) error

	// WriteAll blocks/suspends until all of buf has been written, or
	// returns an error.
	WriteAll(ctx context.Context, buf []byte) error

	// Close releases the underlying transport without sending anything
	// at the WebSocket framing layer.
	Close() error
}
