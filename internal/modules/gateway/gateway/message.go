package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	"go.uber.org/zap"
)

// clusterUpdate is published so other instances can refresh widgets they hold.
type clusterUpdate struct {
	Origin    string            `json:"origin"`
	ControlID string            `json:"control_id"`
	Snapshot  confetti.Snapshot `json:"snapshot"`
}

// clusterMount announces that an instance gained its first or lost its last widget of a control.
type clusterMount struct {
	Origin    string `json:"origin"`
	ControlID string `json:"control_id"`
	Mounted   bool   `json:"mounted"`
}

// clusterInvoke asks the instance holding the widget to run a command.
// The answer is pushed to redisReplyPrefix+RequestID.
type clusterInvoke struct {
	Origin    string `json:"origin"`
	RequestID string `json:"request_id"`
	ControlID string `json:"control_id"`
	Method    string `json:"method"`
}

const (
	replyRejected      = "rejected"
	replyAckTimeout    = "ack_timeout"
	replyNotMounted    = "not_mounted"
	replyChannelClosed = "channel_closed"
	replyFailed        = "failed"
)

type clusterReply struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func newClusterReply(err error) clusterReply {
	switch {
	case err == nil:
		return clusterReply{}
	case errors.Is(err, confetti.ErrRejected):
		msg := strings.TrimPrefix(err.Error(), confetti.ErrRejected.Error())
		return clusterReply{Code: replyRejected, Message: strings.TrimLeft(msg, ": ")}
	case errors.Is(err, confetti.ErrAckTimeout), errors.Is(err, context.DeadlineExceeded):
		return clusterReply{Code: replyAckTimeout}
	case errors.Is(err, confetti.ErrNotMounted):
		return clusterReply{Code: replyNotMounted}
	case errors.Is(err, confetti.ErrChannelClosed):
		return clusterReply{Code: replyChannelClosed}
	default:
		return clusterReply{Code: replyFailed, Message: err.Error()}
	}
}

func (r clusterReply) err() error {
	switch r.Code {
	case "":
		return nil
	case replyRejected:
		if r.Message != "" {
			return fmt.Errorf("%w: %s", confetti.ErrRejected, r.Message)
		}
		return confetti.ErrRejected
	case replyAckTimeout:
		return confetti.ErrAckTimeout
	case replyNotMounted:
		return confetti.ErrNotMounted
	case replyChannelClosed:
		return confetti.ErrChannelClosed
	default:
		return fmt.Errorf("remote invoke failed: %s", r.Message)
	}
}

// ackPayload is what a widget passes to the invoke acknowledgement.
type ackPayload struct {
	OK    *bool  `json:"ok"`
	Error string `json:"error"`
}

func gatewayMessageFormat(event string, payload interface{}) gatewayPayload {
	return gatewayPayload{Type: event, Data: payload}
}

// parseAck accepts an empty ack, {ok:true}, or {ok:false,error:"..."}.
func parseAck(args []any) error {
	if len(args) == 0 || args[0] == nil {
		return nil
	}

	var ack ackPayload
	switch raw := args[0].(type) {
	case bool:
		if raw {
			return nil
		}
		return confetti.ErrRejected
	case string:
		if err := json.Unmarshal([]byte(raw), &ack); err != nil {
			return fmt.Errorf("%w: %s", confetti.ErrRejected, strings.TrimSpace(raw))
		}
	case []byte:
		if err := json.Unmarshal(raw, &ack); err != nil {
			return fmt.Errorf("%w: malformed ack", confetti.ErrRejected)
		}
	default:
		data, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("%w: malformed ack", confetti.ErrRejected)
		}
		if err := json.Unmarshal(data, &ack); err != nil {
			return fmt.Errorf("%w: malformed ack", confetti.ErrRejected)
		}
	}

	if ack.OK == nil || *ack.OK {
		return nil
	}
	if msg := strings.TrimSpace(ack.Error); msg != "" {
		return fmt.Errorf("%w: %s", confetti.ErrRejected, msg)
	}
	return confetti.ErrRejected
}

// subscribeRedis listens for updates, mounts and commands from other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanUpdate, redisChanMount, redisChanInvoke)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("gateway subscribe failed", zap.Error(err))
		}
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			data := []byte(redisMsg.Payload)
			switch redisMsg.Channel {
			case redisChanUpdate:
				h.handleClusterUpdate(data)
			case redisChanMount:
				h.handleClusterMount(ctx, data)
			case redisChanInvoke:
				h.handleClusterInvoke(ctx, data)
			}
		}
	}
}

func (h *Hub) handleClusterUpdate(data []byte) {
	var msg clusterUpdate
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("gateway cluster message dropped", zap.Error(err))
		return
	}
	if msg.Origin == h.instanceID || msg.ControlID == "" {
		return
	}
	h.deliverUpdate(msg.ControlID, updateFrame{
		ControlID: msg.ControlID,
		Version:   msg.Snapshot.Version(),
		Snapshot:  msg.Snapshot.Map(),
	})
}

func (h *Hub) handleClusterMount(ctx context.Context, data []byte) {
	var msg clusterMount
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("gateway cluster mount dropped", zap.Error(err))
		return
	}
	if msg.Origin == "" || msg.Origin == h.instanceID || msg.ControlID == "" {
		return
	}
	select {
	case h.mounts <- mountEvent{origin: msg.Origin, controlID: msg.ControlID, mounted: msg.Mounted}:
	case <-ctx.Done():
	case <-h.closed:
	}
}

// handleClusterInvoke runs a forwarded command when this instance holds a widget of the control.
// Instances without one stay silent.
func (h *Hub) handleClusterInvoke(ctx context.Context, data []byte) {
	var msg clusterInvoke
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("gateway cluster invoke dropped", zap.Error(err))
		return
	}
	if msg.Origin == h.instanceID || msg.ControlID == "" || msg.RequestID == "" {
		return
	}
	conns := h.conns(msg.ControlID)
	if len(conns) == 0 {
		return
	}

	go func() {
		reply := newClusterReply(h.invokeLocal(ctx, conns[len(conns)-1], msg.ControlID, msg.Method))
		payload, err := json.Marshal(reply)
		if err != nil {
			return
		}
		pushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.rc.Push(pushCtx, redisReplyPrefix+msg.RequestID, string(payload), 2*h.ackTimeout+time.Second); err != nil {
			h.logger.Warn("gateway invoke reply failed", zap.String("control_id", msg.ControlID), zap.Error(err))
		}
	}()
}

// invokeRemote forwards a command over Redis and waits for the first reply.
func (h *Hub) invokeRemote(ctx context.Context, controlID, command string) error {
	req := clusterInvoke{Origin: h.instanceID, RequestID: uuid.NewString(), ControlID: controlID, Method: command}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("gateway forward %s: %w", controlID, err)
	}
	if err := h.rc.Publish(ctx, redisChanInvoke, string(data)); err != nil {
		return fmt.Errorf("gateway forward %s: %w", controlID, err)
	}

	raw, ok, err := h.rc.PopWait(ctx, redisReplyPrefix+req.RequestID, h.ackTimeout+time.Second)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("gateway forward %s: %w", controlID, err)
	}
	if !ok {
		return confetti.ErrAckTimeout
	}
	var reply clusterReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return fmt.Errorf("%w: malformed reply", confetti.ErrRejected)
	}
	return reply.err()
}
