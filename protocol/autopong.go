// File: protocol/autopong.go
// Package protocol implements the RFC 6455 frame codec and connection
// state machine.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// ReceiveMessageAutoPong reproduces the teacher's handleControl behavior (every Ping
// answered immediately with a Pong echoing the same payload) as an
// opt-in wrapper rather than baking it into Connection.ReceiveMessage,
// since automatic ping/pong scheduling is explicitly out of the core's
// scope.

package protocol

import (
	"context"

	"github.com/momentics/wscore/api"
)

// ReceiveMessageAutoPong calls c.ReceiveMessage and, if the surfaced
// message is a Ping, immediately answers with a Pong carrying the same
// control payload before returning the Ping to the caller.
func ReceiveMessageAutoPong(ctx context.Context, c *Connection) (api.Payload, error) {
	p, err := c.ReceiveMessage(ctx)
	if err != nil {
		return p, err
	}
	if p.Kind == api.KindPing {
		frame, ferr := c.SerializeSingle(api.NewPong(append([]byte(nil), p.Control...)))
		if ferr == nil {
			_ = c.Send(ctx, frame)
		}
	}
	return p, nil
}
