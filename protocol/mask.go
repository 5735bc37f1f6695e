// File: protocol/mask.go
// Package protocol implements the RFC 6455 frame codec and connection
// state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Masking transform: a 4-byte key XORed byte-for-byte over a payload
// span. XOR is self-inverse, so the same function masks and unmasks.

package protocol

import "crypto/rand"

// maskBytes applies key in place over buf: buf[i] ^= key[i%4]. Used
// identically to mask an outbound client payload and to unmask an
// inbound masked payload.
func maskBytes(buf []byte, key [4]byte) {
	// Unrolled mod-4 indexing avoids a division per byte on the hot path.
	n := len(buf) - len(buf)%4
	for i := 0; i < n; i += 4 {
		buf[i] ^= key[0]
		buf[i+1] ^= key[1]
		buf[i+2] ^= key[2]
		buf[i+3] ^= key[3]
	}
	for i := n; i < len(buf); i++ {
		buf[i] ^= key[i%4]
	}
}

// newMaskKey draws a fresh 32-bit masking key for one outbound client
// frame. RFC 6455 only requires unpredictability against an attacker
// sharing the client's origin, not cryptographic strength, but
// crypto/rand is process-wide and removes any need to reason about a
// math/rand source's seeding or goroutine-safety, so it is used here
// rather than a PRNG guarded by the caller.
func newMaskKey() ([4]byte, error) {
	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, err
	}
	return key, nil
}
