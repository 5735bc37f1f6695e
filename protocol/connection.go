// File: protocol/connection.go
// Package protocol implements the core WebSocket connection handling.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connection owns a byte-oriented duplex Stream, a fixed Role, and the
// receive reassembly state. It is the public contract: a pull-driven
// ReceiveMessage for the caller's receive loop, a Send/SendMessage pair
// for the send path, and Close/Deinit for lifecycle teardown.

package protocol

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"unicode/utf8"

	"github.com/momentics/wscore/api"
	"github.com/momentics/wscore/pool"
)

// lifecycleState mirrors §4.5's Open → {Closing, Closed} machine.
type lifecycleState int32

const (
	stateOpen lifecycleState = iota
	stateClosing
	stateClosed
)

// Connection encapsulates one full-duplex WebSocket session. At most one
// in-flight ReceiveMessage and one in-flight Send are ever outstanding
// per the caller's own discipline (§5); the Connection does not defend
// against overlapping receives, only against overlapping writes.
type Connection struct {
	stream api.Stream
	role   api.Role
	opts   Options
	pool   api.BufferPool

	// Receive state (§3): Idle is recvFragmented == false.
	recvFragmented bool
	initialOpcode  byte
	recvBuf        []byte

	state  atomic.Int32
	wq     *writeQueue
	writing atomic.Bool

	bytesReceived  atomic.Int64
	bytesSent      atomic.Int64
	framesReceived atomic.Int64
	framesSent     atomic.Int64
}

// NewConnection constructs a Connection in the Open state, recv state
// Idle. A nil bufPool gets a fresh pool.NewBufferPool().
func NewConnection(stream api.Stream, role api.Role, bufPool api.BufferPool, opts Options) *Connection {
	if bufPool == nil {
		bufPool = pool.NewBufferPool()
	}
	return &Connection{
		stream: stream,
		role:   role,
		opts:   opts,
		pool:   bufPool,
		wq:     newWriteQueue(),
	}
}

// Role returns the connection's fixed role.
func (c *Connection) Role() api.Role { return c.role }

// GetStats returns a snapshot of connection counters for observability.
func (c *Connection) GetStats() map[string]int64 {
	return map[string]int64{
		"bytes_received":  c.bytesReceived.Load(),
		"bytes_sent":      c.bytesSent.Load(),
		"frames_received": c.framesReceived.Load(),
		"frames_sent":     c.framesSent.Load(),
	}
}

// ---- Receive path -----------------------------------------------------

// ReceiveMessage reads frames from the stream until one complete logical
// message (a Text/Binary message, possibly reassembled from several
// frames) or a single control frame (Close/Ping/Pong) is available, and
// returns it. It is pull-driven: nothing is read until this is called.
func (c *Connection) ReceiveMessage(ctx context.Context) (api.Payload, error) {
	// stateClosing must still be allowed to read: Close's own wait loop
	// calls ReceiveMessage while the Connection sits in stateClosing,
	// looking for the peer's echoed Close frame. Only stateClosed (the
	// stream has actually been dropped) should fail outright.
	if lifecycleState(c.state.Load()) == stateClosed {
		return api.Payload{}, api.ErrConnectionClosed
	}

	for {
		h, err := decodeHeader(ctx, c.stream)
		if err != nil {
			return api.Payload{}, err
		}

		if err := c.checkMaskValidity(h); err != nil {
			return api.Payload{}, err
		}

		buf, data, err := c.readRawPayload(ctx, h)
		if err != nil {
			return api.Payload{}, err
		}
		c.framesReceived.Add(1)
		c.bytesReceived.Add(int64(len(data)))

		if h.IsControl() {
			p, cerr := decodeControlPayload(h.Opcode, data)
			buf.Release()
			return p, cerr
		}

		switch h.Opcode {
		case api.OpcodeText, api.OpcodeBinary:
			if c.recvFragmented {
				if !c.opts.Lenient {
					buf.Release()
					c.resetRecv()
					return api.Payload{}, api.NewProtocolError("data frame received while a fragmented message is open")
				}
				// Lenient: abandon the open message and start fresh.
				c.resetRecv()
			}

			if h.Fin {
				out := append([]byte(nil), data...)
				buf.Release()
				return decodeFinalPayload(h.Opcode, out)
			}

			c.recvFragmented = true
			c.initialOpcode = h.Opcode
			c.recvBuf = append(c.recvBuf[:0], data...)
			buf.Release()
			if err := c.checkMessageSize(); err != nil {
				c.resetRecv()
				return api.Payload{}, err
			}

		case api.OpcodeContinuation:
			if !c.recvFragmented {
				buf.Release()
				return api.Payload{}, api.NewProtocolError("continuation frame received without an open message")
			}
			c.recvBuf = append(c.recvBuf, data...)
			buf.Release()
			if err := c.checkMessageSize(); err != nil {
				c.resetRecv()
				return api.Payload{}, err
			}

			if h.Fin {
				op := c.initialOpcode
				out := append([]byte(nil), c.recvBuf...)
				c.resetRecv()
				return decodeFinalPayload(op, out)
			}

		default:
			// Reserved data opcode (0x3-0x7): neither control nor a
			// recognized data/continuation opcode. Drained above to
			// stay byte-aligned; surfaced as Invalid so the caller can
			// close the connection per §4.3 step 6.
			buf.Release()
			return api.Payload{Kind: api.KindInvalid}, api.NewInvalidPayload("unrecognized opcode")
		}
	}
}

// checkMaskValidity enforces the role-dependent masking rule of §4.3
// step 2: Server must receive masked frames, Client must receive
// unmasked frames.
func (c *Connection) checkMaskValidity(h api.FrameHeader) error {
	if c.role == api.RoleServer && !h.Masked {
		return api.NewProtocolError("server received an unmasked frame")
	}
	if c.role == api.RoleClient && h.Masked {
		return api.NewProtocolError("client received a masked frame")
	}
	return nil
}

// readRawPayload reads h.PayloadLen bytes from the stream into a pooled
// buffer and unmasks them if needed. The caller must Release the
// returned Buffer once it has copied out anything it needs to keep.
func (c *Connection) readRawPayload(ctx context.Context, h api.FrameHeader) (api.Buffer, []byte, error) {
	n := int(h.PayloadLen)
	buf := c.pool.Get(n)
	data := buf.Bytes()[:n]
	if n > 0 {
		if err := c.stream.ReadExact(ctx, data); err != nil {
			buf.Release()
			return nil, nil, api.NewRecvShort("short read on frame payload").WithContext("cause", err)
		}
	}
	if h.Masked {
		maskBytes(data, h.MaskKey)
	}
	return buf, data, nil
}

// checkMessageSize enforces Options.MaxMessageSize (or MaxPayloadLen if
// unset) against the bytes accumulated so far in a reassembly.
func (c *Connection) checkMessageSize() error {
	limit := c.opts.MaxMessageSize
	if limit == 0 {
		limit = MaxPayloadLen
	}
	if uint64(len(c.recvBuf)) > limit {
		return &api.Error{
			Kind:      api.ErrKindProtocolError,
			Message:   "reassembled message exceeds the configured maximum size",
			CloseCode: api.CloseMessageTooBig,
		}
	}
	return nil
}

// resetRecv returns the receive state machine to Idle. The invariant
// "the receive buffer is empty whenever Idle and no partial frame has
// been read" holds immediately after this call.
func (c *Connection) resetRecv() {
	c.recvFragmented = false
	c.initialOpcode = 0
	c.recvBuf = c.recvBuf[:0]
}

// decodeControlPayload interprets a control frame's (already unmasked)
// payload per its opcode.
func decodeControlPayload(opcode byte, data []byte) (api.Payload, error) {
	switch opcode {
	case api.OpcodeClose:
		return decodeClosePayload(data)
	case api.OpcodePing:
		return api.NewPing(append([]byte(nil), data...)), nil
	case api.OpcodePong:
		return api.NewPong(append([]byte(nil), data...)), nil
	default:
		// Reserved control opcode (0xB-0xF).
		return api.Payload{Kind: api.KindInvalid}, api.NewInvalidPayload("unrecognized control opcode")
	}
}

func decodeClosePayload(data []byte) (api.Payload, error) {
	switch len(data) {
	case 0:
		return api.NewClose(api.CloseNoStatusRcvd, ""), nil
	case 1:
		return api.Payload{}, api.NewProtocolError("close frame body must be 0 or ≥2 bytes")
	default:
		code := binary.BigEndian.Uint16(data[:2])
		if !api.ValidCloseCode(code) {
			return api.Payload{}, api.NewProtocolError("invalid close status code")
		}
		reason := data[2:]
		if !utf8.Valid(reason) {
			return api.Payload{}, api.NewInvalidUTF8("close reason is not valid utf-8")
		}
		return api.NewClose(code, string(reason)), nil
	}
}

// decodeFinalPayload builds the surfaced message once a complete
// Text/Binary message (single-frame or reassembled) is available.
// Text messages are validated as UTF-8 at message boundary, not per
// frame, per §4.3's note that the standard does not strictly require
// per-chunk validation.
func decodeFinalPayload(opcode byte, data []byte) (api.Payload, error) {
	switch opcode {
	case api.OpcodeText:
		if !utf8.Valid(data) {
			return api.Payload{}, api.NewInvalidUTF8("text message payload is not valid utf-8")
		}
		return api.Payload{Kind: api.KindText, Text: data}, nil
	case api.OpcodeBinary:
		return api.Payload{Kind: api.KindBinary, Binary: data}, nil
	default:
		return api.Payload{}, api.NewProtocolError("unexpected opcode completing a message")
	}
}

// ---- Send path ---------------------------------------------------------

// payloadBytes extracts the raw application bytes to frame for p,
// validating control-frame size limits.
func payloadBytes(p api.Payload) ([]byte, error) {
	switch p.Kind {
	case api.KindText:
		return p.Text, nil
	case api.KindBinary:
		return p.Binary, nil
	case api.KindPing, api.KindPong:
		if len(p.Control) > api.MaxControlPayloadLen {
			return nil, api.NewProtocolError("ping/pong payload exceeds 125 bytes")
		}
		return p.Control, nil
	case api.KindClose:
		if len(p.CloseReason) > api.MaxControlPayloadLen-2 {
			return nil, api.NewProtocolError("close reason too long for a single control frame")
		}
		b := make([]byte, 2+len(p.CloseReason))
		binary.BigEndian.PutUint16(b[:2], p.CloseCode)
		copy(b[2:], p.CloseReason)
		return b, nil
	default:
		return nil, api.NewInvalidPayload("cannot serialize an Invalid payload")
	}
}

// serializeFrame builds one complete frame's wire bytes for (fin,
// opcode, payload). If the Connection's role is Client it generates a
// fresh mask and XORs a private copy of payload, never the caller's
// slice.
func (c *Connection) serializeFrame(fin bool, opcode byte, payload []byte) ([]byte, error) {
	if uint64(len(payload)) > MaxPayloadLen {
		return nil, api.NewInvalidPayload("payload exceeds addressable buffer limit")
	}

	masked := c.role == api.RoleClient
	hdrLen := encodeHeaderLen(uint64(len(payload)))
	total := hdrLen + len(payload)
	if masked {
		total += 4
	}

	buf := make([]byte, total)
	n := encodeHeader(buf, fin, opcode, masked, uint64(len(payload)))

	if masked {
		key, err := newMaskKey()
		if err != nil {
			return nil, api.NewSendFailed("mask key generation failed").WithContext("cause", err)
		}
		copy(buf[n:n+4], key[:])
		n += 4
		copy(buf[n:], payload)
		maskBytes(buf[n:], key)
	} else {
		copy(buf[n:], payload)
	}

	return buf, nil
}

// SerializeSingle builds a single-frame message (fin=1) for payload.
func (c *Connection) SerializeSingle(p api.Payload) ([]byte, error) {
	b, err := payloadBytes(p)
	if err != nil {
		return nil, err
	}
	return c.serializeFrame(true, p.Kind.Opcode(), b)
}

// SerializeFragmentStart builds the first frame (fin=0) of a fragmented
// Text/Binary message. Control payloads cannot be fragmented.
func (c *Connection) SerializeFragmentStart(p api.Payload) ([]byte, error) {
	if p.Kind != api.KindText && p.Kind != api.KindBinary {
		return nil, api.NewProtocolError("only text/binary messages may be fragmented")
	}
	b, err := payloadBytes(p)
	if err != nil {
		return nil, err
	}
	return c.serializeFrame(false, p.Kind.Opcode(), b)
}

// SerializeFragment builds a continuation frame (opcode 0x0) carrying
// the next chunk of a fragmented message.
func (c *Connection) SerializeFragment(chunk []byte, fin bool) ([]byte, error) {
	return c.serializeFrame(fin, api.OpcodeContinuation, chunk)
}

// Send writes already-serialized frame bytes to the stream. Concurrent
// Send calls are safe: the caller that wins the race becomes this
// frame's writer (and drains any frames queued by other concurrent
// Send calls) in strict enqueue order; Send blocks until its own frame
// has been written.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	if lifecycleState(c.state.Load()) == stateClosed {
		return api.ErrConnectionClosed
	}
	done := c.wq.push(data)
	c.drainWrites(ctx)
	return <-done
}

// drainWrites flushes the write queue. Only one goroutine at a time
// ever runs the loop body (enforced by the writing trylock); every
// other concurrent caller's frame still gets written, just by whichever
// goroutine holds the lock, which keeps the wire order equal to
// enqueue order without spawning any dedicated pump goroutine. After
// releasing the lock the holder re-checks the queue, so a frame pushed
// while it was finishing up is not left behind.
func (c *Connection) drainWrites(ctx context.Context) {
	for c.wq.len() > 0 {
		if !c.writing.CompareAndSwap(false, true) {
			return
		}
		for {
			pw := c.wq.pop()
			if pw == nil {
				break
			}
			err := c.stream.WriteAll(ctx, pw.data)
			if err != nil {
				pw.done <- api.NewSendFailed("write to stream failed").WithContext("cause", err)
				continue
			}
			c.framesSent.Add(1)
			c.bytesSent.Add(int64(len(pw.data)))
			pw.done <- nil
		}
		c.writing.Store(false)
	}
}

// SendMessage is a convenience wrapper: it serializes p (fragmenting
// across Options.FragmentSize-sized chunks if p is Text/Binary and
// longer than FragmentSize) and sends it.
func (c *Connection) SendMessage(ctx context.Context, p api.Payload) error {
	if c.opts.FragmentSize <= 0 || (p.Kind != api.KindText && p.Kind != api.KindBinary) {
		frame, err := c.SerializeSingle(p)
		if err != nil {
			return err
		}
		return c.Send(ctx, frame)
	}

	data, _ := payloadBytes(p)
	if len(data) <= c.opts.FragmentSize {
		frame, err := c.SerializeSingle(p)
		if err != nil {
			return err
		}
		return c.Send(ctx, frame)
	}

	first := data[:c.opts.FragmentSize]
	frame, err := c.SerializeFragmentStart(withPayloadBytes(p.Kind, first))
	if err != nil {
		return err
	}
	if err := c.Send(ctx, frame); err != nil {
		return err
	}

	for off := c.opts.FragmentSize; off < len(data); off += c.opts.FragmentSize {
		end := off + c.opts.FragmentSize
		fin := end >= len(data)
		if fin {
			end = len(data)
		}
		frame, err := c.SerializeFragment(data[off:end], fin)
		if err != nil {
			return err
		}
		if err := c.Send(ctx, frame); err != nil {
			return err
		}
	}
	return nil
}

// withPayloadBytes rebuilds a Payload of kind (Text or Binary) carrying
// data, used to frame one chunk of a fragmented send.
func withPayloadBytes(kind api.PayloadKind, data []byte) api.Payload {
	if kind == api.KindText {
		return api.Payload{Kind: api.KindText, Text: data}
	}
	return api.Payload{Kind: api.KindBinary, Binary: data}
}

// ---- Lifecycle ----------------------------------------------------------

// Close sends a Close frame with code/reason, then reads until it
// observes the peer's echoed Close frame (addressing §9's second Open
// Question), a receive fails, or ctx is done, and finally drops the
// stream. Use a ctx
// with a deadline to bound how long Close waits for the peer's Close.
func (c *Connection) Close(ctx context.Context, code uint16, reason string) error {
	if !c.state.CompareAndSwap(int32(stateOpen), int32(stateClosing)) {
		return c.Deinit()
	}

	frame, err := c.SerializeSingle(api.NewClose(code, reason))
	if err == nil {
		_ = c.Send(ctx, frame)
	}

	for {
		select {
		case <-ctx.Done():
			return c.Deinit()
		default:
		}
		p, rerr := c.ReceiveMessage(ctx)
		if rerr != nil || p.Kind == api.KindClose {
			break
		}
	}

	return c.Deinit()
}

// Deinit drops the stream without sending anything, transitioning to
// Closed from any prior state. Safe to call more than once.
func (c *Connection) Deinit() error {
	if c.state.Swap(int32(stateClosed)) == int32(stateClosed) {
		return nil
	}
	c.recvBuf = nil
	return c.stream.Close()
}
