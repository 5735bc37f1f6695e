// File: protocol/frame.go
// Package protocol implements the RFC 6455 frame codec and connection
// state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bit-exact encode/decode of the 2-byte base header, extended payload
// length, and masking key. Payload bytes themselves are read/written by
// the caller (Connection); this file only handles the header.

package protocol

import (
	"context"
	"encoding/binary"

	"github.com/momentics/wscore/api"
)

// MaxPayloadLen bounds the payload length this implementation will
// accept on receive. The wire format allows up to 2^63-1 bytes, but Go
// slices are capped at the addressable int range; more practically, an
// endpoint that let a peer declare an arbitrarily large length before
// validating anything would be trivially memory-exhausted. Declaring a
// length beyond this limit is treated as a protocol-error-like failure
// (Close 1009), per §9's acknowledged 64-bit-length-vs-buffer-limit gap.
const MaxPayloadLen = 1 << 32 // 4 GiB

// decodeHeader reads and parses the next frame header from s, returning
// the header and leaving the stream positioned at the start of the
// payload (mask key, if any, has already been consumed).
func decodeHeader(ctx context.Context, s api.Stream) (api.FrameHeader, error) {
	var h api.FrameHeader

	var b [2]byte
	if err := s.ReadExact(ctx, b[:]); err != nil {
		return h, api.NewRecvShort("short read on frame base header").WithContext("cause", err)
	}

	h.Fin = b[0]&api.FinBit != 0
	h.RSV1 = b[0]&api.RSV1Bit != 0
	h.RSV2 = b[0]&api.RSV2Bit != 0
	h.RSV3 = b[0]&api.RSV3Bit != 0
	h.Opcode = b[0] & 0x0F
	h.Masked = b[1]&api.MaskBit != 0
	len7 := b[1] & 0x7F

	if h.RSV1 || h.RSV2 || h.RSV3 {
		return h, api.NewProtocolError("reserved bits set without an extension")
	}

	switch {
	case len7 < 126:
		h.PayloadLen = uint64(len7)
	case len7 == 126:
		var ext [2]byte
		if err := s.ReadExact(ctx, ext[:]); err != nil {
			return h, api.NewRecvShort("short read on 16-bit extended length").WithContext("cause", err)
		}
		h.PayloadLen = uint64(binary.BigEndian.Uint16(ext[:]))
	default: // len7 == 127
		var ext [8]byte
		if err := s.ReadExact(ctx, ext[:]); err != nil {
			return h, api.NewRecvShort("short read on 64-bit extended length").WithContext("cause", err)
		}
		h.PayloadLen = binary.BigEndian.Uint64(ext[:])
		if h.PayloadLen>>63 != 0 {
			return h, api.NewProtocolError("64-bit length has MSB set")
		}
	}

	if h.IsControl() && (!h.Fin || h.PayloadLen > api.MaxControlPayloadLen) {
		return h, api.NewProtocolError("control frame must be unfragmented and ≤125 bytes")
	}
	if h.PayloadLen > MaxPayloadLen {
		return h, (&api.Error{Kind: api.ErrKindProtocolError, Message: "payload exceeds addressable buffer limit", CloseCode: api.CloseMessageTooBig})
	}

	if h.Masked {
		if err := s.ReadExact(ctx, h.MaskKey[:]); err != nil {
			return h, api.NewRecvShort("short read on masking key").WithContext("cause", err)
		}
	}

	return h, nil
}

// encodeHeaderLen returns the byte length of the base-header+extended-
// length prefix encodeHeader will write for payloadLen (excluding any
// masking key), i.e. the shortest of the 7-bit/16-bit/64-bit encodings.
func encodeHeaderLen(payloadLen uint64) int {
	switch {
	case payloadLen < 126:
		return 2
	case payloadLen <= 0xFFFF:
		return 4
	default:
		return 10
	}
}

// encodeHeader writes the base header + extended length prefix for
// (fin, opcode, masked, payloadLen) into dst, which must have at least
// encodeHeaderLen(payloadLen) bytes, and returns the number of bytes
// written. The masking key, if any, is appended separately by the
// caller since it must be generated per frame.
func encodeHeader(dst []byte, fin bool, opcode byte, masked bool, payloadLen uint64) int {
	var b0 byte
	if fin {
		b0 = api.FinBit
	}
	b0 |= opcode & 0x0F
	dst[0] = b0

	var maskBit byte
	if masked {
		maskBit = api.MaskBit
	}

	switch {
	case payloadLen < 126:
		dst[1] = byte(payloadLen) | maskBit
		return 2
	case payloadLen <= 0xFFFF:
		dst[1] = 126 | maskBit
		binary.BigEndian.PutUint16(dst[2:4], uint16(payloadLen))
		return 4
	default:
		dst[1] = 127 | maskBit
		binary.BigEndian.PutUint64(dst[2:10], payloadLen)
		return 10
	}
}
