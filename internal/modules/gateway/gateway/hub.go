package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

func NewHub(opts Options) *Hub {
	ackTimeout := opts.AckTimeout
	if ackTimeout <= 0 {
		ackTimeout = defaultAckTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		controlConns: make(map[string][]widgetConn),
		sidControl:   make(map[string]string),
		remoteMounts: make(map[string]map[string]struct{}),
		mounts:       make(chan mountEvent, 256),
		publish:      make(chan outbound, 256),
		closed:       make(chan struct{}),
		instanceID:   uuid.NewString(),
		ackTimeout:   ackTimeout,
		rc:           opts.Redis,
		store:        opts.Store,
		logger:       logger,
		sio:          socketio.NewServer(nil, nil),
		validate:     opts.Validate,
	}
	h.registerNamespaces()
	return h
}

// OnMountChange adds a listener. Listeners must be added before Run.
func (h *Hub) OnMountChange(fn MountListener) {
	if fn != nil {
		h.listeners = append(h.listeners, fn)
	}
}

// Run starts the hub loop and Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.withdraw()
			h.shutdown()
			return

		case ev := <-h.mounts:
			h.handleMount(ev)

		case msg := <-h.publish:
			if h.rc == nil {
				continue
			}
			if err := h.rc.Publish(ctx, msg.channel, string(msg.data)); err != nil {
				h.logger.Warn("gateway publish failed", zap.String("channel", msg.channel), zap.Error(err))
			}
		}
	}
}

func (h *Hub) shutdown() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.sio.Close(nil)
	})
}

func (h *Hub) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

// enqueueMount hands a mount event to the hub loop. Dropped once the hub is closed.
func (h *Hub) enqueueMount(ev mountEvent) {
	select {
	case h.mounts <- ev:
	case <-h.closed:
	}
}

func (h *Hub) handleMount(ev mountEvent) {
	switch {
	case ev.conn == nil:
		h.applyRemoteMount(ev)
	case ev.mounted:
		h.registerConn(ev)
	default:
		h.unregisterConn(ev)
	}
}

func (h *Hub) registerConn(ev mountEvent) {
	sid := ev.conn.ID()

	h.mu.Lock()
	var (
		prev                     string
		prevEmpty, prevUnmounted bool
	)
	if p, ok := h.sidControl[sid]; ok {
		if p == ev.controlID {
			h.mu.Unlock()
			return
		}
		prev = p
		prevEmpty, prevUnmounted = h.detachLocked(p, sid)
	}
	wasMounted := h.mountedLocked(ev.controlID)
	firstLocal := len(h.controlConns[ev.controlID]) == 0
	h.controlConns[ev.controlID] = append(h.controlConns[ev.controlID], ev.conn)
	h.sidControl[sid] = ev.controlID
	h.mu.Unlock()

	if prev != "" {
		h.afterDetach(prev, prevEmpty, prevUnmounted)
	}
	h.logger.Debug("widget mounted", zap.String("control_id", ev.controlID), zap.String("sid", sid))
	if firstLocal {
		h.announce(ev.controlID, true)
	}
	if !wasMounted {
		h.notify(ev.controlID, true)
	}
}

func (h *Hub) unregisterConn(ev mountEvent) {
	sid := ev.conn.ID()

	h.mu.Lock()
	controlID, ok := h.sidControl[sid]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sidControl, sid)
	empty, unmounted := h.detachLocked(controlID, sid)
	h.mu.Unlock()

	h.logger.Debug("widget unmounted", zap.String("control_id", controlID), zap.String("sid", sid))
	h.afterDetach(controlID, empty, unmounted)
}

// detachLocked drops sid from the control. It reports whether no local connection
// is left and whether the control is now unmounted cluster-wide.
func (h *Hub) detachLocked(controlID, sid string) (empty, unmounted bool) {
	conns := h.controlConns[controlID]
	for i, c := range conns {
		if c.ID() == sid {
			conns = append(conns[:i:i], conns[i+1:]...)
			break
		}
	}
	if len(conns) == 0 {
		delete(h.controlConns, controlID)
		empty = true
	} else {
		h.controlConns[controlID] = conns
	}
	return empty, !h.mountedLocked(controlID)
}

func (h *Hub) afterDetach(controlID string, empty, unmounted bool) {
	if empty {
		h.announce(controlID, false)
	}
	if unmounted {
		h.notify(controlID, false)
	}
}

func (h *Hub) applyRemoteMount(ev mountEvent) {
	h.mu.Lock()
	was := h.mountedLocked(ev.controlID)
	if ev.mounted {
		origins := h.remoteMounts[ev.controlID]
		if origins == nil {
			origins = make(map[string]struct{})
			h.remoteMounts[ev.controlID] = origins
		}
		origins[ev.origin] = struct{}{}
	} else if origins, ok := h.remoteMounts[ev.controlID]; ok {
		delete(origins, ev.origin)
		if len(origins) == 0 {
			delete(h.remoteMounts, ev.controlID)
		}
	}
	now := h.mountedLocked(ev.controlID)
	h.mu.Unlock()

	if was != now {
		h.notify(ev.controlID, now)
	}
}

func (h *Hub) mountedLocked(controlID string) bool {
	return len(h.controlConns[controlID]) > 0 || len(h.remoteMounts[controlID]) > 0
}

// announce tells other instances that this one gained its first or lost its last widget of a control.
func (h *Hub) announce(controlID string, mounted bool) {
	if h.rc == nil {
		return
	}
	data, err := json.Marshal(clusterMount{Origin: h.instanceID, ControlID: controlID, Mounted: mounted})
	if err != nil {
		return
	}
	h.queue(redisChanMount, data, controlID)
}

func (h *Hub) queue(channel string, data []byte, controlID string) {
	select {
	case h.publish <- outbound{channel: channel, data: data}:
	default:
		h.logger.Warn("gateway publish queue full", zap.String("channel", channel), zap.String("control_id", controlID))
	}
}

// withdraw announces that every local widget is gone before the hub stops.
func (h *Hub) withdraw() {
	if h.rc == nil {
		return
	}
	h.mu.RLock()
	ids := make([]string, 0, len(h.controlConns))
	for id := range h.controlConns {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, id := range ids {
		data, err := json.Marshal(clusterMount{Origin: h.instanceID, ControlID: id, Mounted: false})
		if err != nil {
			continue
		}
		if err := h.rc.Publish(ctx, redisChanMount, string(data)); err != nil {
			h.logger.Warn("gateway withdraw failed", zap.String("control_id", id), zap.Error(err))
			return
		}
	}
}

func (h *Hub) notify(controlID string, mounted bool) {
	for _, fn := range h.listeners {
		fn(controlID, mounted)
	}
}

func (h *Hub) conns(controlID string) []widgetConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]widgetConn, len(h.controlConns[controlID]))
	copy(out, h.controlConns[controlID])
	return out
}

// Apply stores the snapshot, pushes it to local widgets and to other instances.
func (h *Hub) Apply(ctx context.Context, controlID string, snap confetti.Snapshot) error {
	if h.isClosed() {
		return confetti.ErrChannelClosed
	}

	version := snap.Version()
	if h.store != nil {
		entry, err := h.store.Save(ctx, controlID, snap)
		if err != nil {
			return fmt.Errorf("gateway apply %s: %w", controlID, err)
		}
		version = entry.Version
	}

	h.deliverUpdate(controlID, updateFrame{ControlID: controlID, Version: version, Snapshot: snap.Map()})

	data, err := json.Marshal(clusterUpdate{Origin: h.instanceID, ControlID: controlID, Snapshot: snap})
	if err != nil {
		return fmt.Errorf("gateway apply %s: %w", controlID, err)
	}
	h.queue(redisChanUpdate, data, controlID)
	return nil
}

func (h *Hub) deliverUpdate(controlID string, frame updateFrame) {
	for _, c := range h.conns(controlID) {
		if err := c.Emit(eventUpdate, frame); err != nil {
			h.logger.Warn("gateway emit update failed",
				zap.String("control_id", controlID), zap.String("sid", c.ID()), zap.Error(err))
		}
	}
}

// Invoke sends a command to the most recently mounted local widget of the control and
// waits for its ack. Without a local widget the command goes to the instance holding one.
func (h *Hub) Invoke(ctx context.Context, controlID, command string) error {
	if h.isClosed() {
		return confetti.ErrChannelClosed
	}
	if conns := h.conns(controlID); len(conns) > 0 {
		return h.invokeLocal(ctx, conns[len(conns)-1], controlID, command)
	}
	if h.rc != nil && h.remoteMounted(controlID) {
		return h.invokeRemote(ctx, controlID, command)
	}
	return confetti.ErrNotMounted
}

func (h *Hub) invokeLocal(ctx context.Context, target widgetConn, controlID, command string) error {
	args, err := target.EmitWithAck(ctx, h.ackTimeout, eventInvoke, invokeFrame{ControlID: controlID, Method: command})
	if err != nil {
		return err
	}
	if err := parseAck(args); err != nil {
		h.logger.Info("widget rejected command",
			zap.String("control_id", controlID), zap.String("method", command), zap.Error(err))
		return err
	}
	return nil
}

func (h *Hub) remoteMounted(controlID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.remoteMounts[controlID]) > 0
}

// Mounted reports whether a widget on any instance is attached to the control.
func (h *Hub) Mounted(controlID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mountedLocked(controlID)
}

// ClientCount returns the number of local widgets, or those of one control.
func (h *Hub) ClientCount(controlID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if controlID == "" {
		return len(h.sidControl)
	}
	return len(h.controlConns[controlID])
}

// ControlCount returns the number of controls with at least one local widget.
func (h *Hub) ControlCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.controlConns)
}

// RemoteControlCount returns the number of controls mounted only on other instances.
func (h *Hub) RemoteControlCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for id := range h.remoteMounts {
		if len(h.controlConns[id]) == 0 {
			n++
		}
	}
	return n
}

// InstanceID identifies this hub in cluster messages.
func (h *Hub) InstanceID() string { return h.instanceID }

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

func (h *Hub) replay(ctx context.Context, conn widgetConn, controlID string) {
	if h.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	entry, err := h.store.Load(ctx, controlID)
	if err != nil {
		h.logger.Warn("gateway replay load failed", zap.String("control_id", controlID), zap.Error(err))
		return
	}
	if entry == nil {
		return
	}
	frame := updateFrame{ControlID: controlID, Version: entry.Version, Snapshot: entry.Snapshot.Map()}
	if err := conn.Emit(eventUpdate, frame); err != nil {
		h.logger.Warn("gateway replay emit failed", zap.String("control_id", controlID), zap.Error(err))
	}
}

// Unmount disconnects every local widget attached to the control.
func (h *Hub) Unmount(controlID string) int {
	conns := h.conns(controlID)
	for _, c := range conns {
		c.Disconnect()
	}
	return len(conns)
}
