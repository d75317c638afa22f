package gateway

import (
	"context"
	"strings"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

func (h *Hub) registerNamespaces() {
	ns := h.sio.Of(namespaceConfetti, nil)
	_ = ns.On("connection", func(args ...any) {
		if len(args) == 0 {
			return
		}
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		conn := &socketConn{socket: client}
		controlID, ok := h.authenticate(extractToken(client))
		if !ok {
			_ = client.Emit(eventMessage, gatewayMessageFormat("AUTH_FAILED", "auth failed"))
			client.Disconnect(true)
			return
		}

		_ = client.On("disconnect", func(_ ...any) {
			h.enqueueMount(mountEvent{conn: conn, controlID: controlID, mounted: false})
		})
		h.enqueueMount(mountEvent{conn: conn, controlID: controlID, mounted: true})
		// A disconnect that fired before the handler was attached is never re-emitted.
		if !client.Connected() {
			h.enqueueMount(mountEvent{conn: conn, controlID: controlID, mounted: false})
			return
		}

		_ = client.Emit(eventMessage, gatewayMessageFormat("GATEWAY_CONNECT", map[string]string{"control_id": controlID}))
		h.replay(context.Background(), conn, controlID)
	})
}

func (h *Hub) authenticate(raw string) (string, bool) {
	token := normalizeToken(raw)
	if token == "" || h.validate == nil {
		return "", false
	}
	controlID, err := h.validate(token)
	if err != nil || controlID == "" {
		h.logger.Debug("widget auth rejected", zap.Error(err))
		return "", false
	}
	return controlID, true
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
