package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type socketConn struct {
	socket *socketio.Socket
}

func (c *socketConn) ID() string { return string(c.socket.Id()) }

func (c *socketConn) Emit(event string, payload any) error {
	return c.socket.Emit(event, payload)
}

func (c *socketConn) EmitWithAck(ctx context.Context, timeout time.Duration, event string, payload any) ([]any, error) {
	type result struct {
		args []any
		err  error
	}
	done := make(chan result, 1)
	c.socket.Timeout(timeout).EmitWithAck(event, payload)(func(args []any, err error) {
		done <- result{args: args, err: err}
	})

	select {
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("%w: %v", confetti.ErrAckTimeout, r.err)
		}
		return r.args, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *socketConn) Disconnect() { c.socket.Disconnect(true) }
