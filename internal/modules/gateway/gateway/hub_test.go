package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	pkgredis "github.com/mx-space/confetti-bridge/internal/pkg/redis"
	"github.com/mx-space/confetti-bridge/internal/pkg/snapshotstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"
)

type emitted struct {
	event   string
	payload any
}

type fakeConn struct {
	id string

	mu           sync.Mutex
	emits        []emitted
	ackArgs      []any
	ackErr       error
	disconnected bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{event: event, payload: payload})
	return nil
}

func (c *fakeConn) EmitWithAck(_ context.Context, _ time.Duration, event string, payload any) ([]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emits = append(c.emits, emitted{event: event, payload: payload})
	return c.ackArgs, c.ackErr
}

func (c *fakeConn) setAck(args []any, err error) {
	c.mu.Lock()
	c.ackArgs, c.ackErr = args, err
	c.mu.Unlock()
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeConn) events() []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]emitted, len(c.emits))
	copy(out, c.emits)
	return out
}

func newTestHub(t *testing.T) (*Hub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rc.Close() })

	h := NewHub(Options{
		Redis:      rc,
		Store:      snapshotstore.New(rc, time.Hour),
		Logger:     zaptest.NewLogger(t),
		AckTimeout: 100 * time.Millisecond,
	})
	return h, mr
}

// nextPublished returns the first queued cluster message on channel, skipping others.
func nextPublished(t *testing.T, h *Hub, channel string) []byte {
	t.Helper()
	for {
		select {
		case msg := <-h.publish:
			if msg.channel == channel {
				return msg.data
			}
		default:
			t.Fatalf("no queued message on %s", channel)
			return nil
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubMountBookkeeping(t *testing.T) {
	h, _ := newTestHub(t)
	var changes []string
	h.OnMountChange(func(id string, mounted bool) {
		if mounted {
			changes = append(changes, "+"+id)
		} else {
			changes = append(changes, "-"+id)
		}
	})

	a := &fakeConn{id: "s1"}
	b := &fakeConn{id: "s2"}
	h.registerConn(mountEvent{conn: a, controlID: "c1", mounted: true})
	h.registerConn(mountEvent{conn: b, controlID: "c1", mounted: true})
	h.registerConn(mountEvent{conn: a, controlID: "c1", mounted: true})

	if !h.Mounted("c1") || h.ClientCount("c1") != 2 || h.ClientCount("") != 2 || h.ControlCount() != 1 {
		t.Fatalf("unexpected counts: c1=%d total=%d", h.ClientCount("c1"), h.ClientCount(""))
	}

	h.unregisterConn(mountEvent{conn: a})
	if !h.Mounted("c1") {
		t.Fatalf("c1 should still be mounted by s2")
	}
	h.unregisterConn(mountEvent{conn: b})
	h.unregisterConn(mountEvent{conn: b})
	if h.Mounted("c1") || h.ClientCount("") != 0 {
		t.Fatalf("c1 should be unmounted")
	}

	want := []string{"+c1", "-c1"}
	if len(changes) != len(want) || changes[0] != want[0] || changes[1] != want[1] {
		t.Fatalf("changes=%v want=%v", changes, want)
	}
}

func TestHubRemountMovesConnection(t *testing.T) {
	h, _ := newTestHub(t)
	var changes []string
	h.OnMountChange(func(id string, mounted bool) {
		changes = append(changes, fmt.Sprintf("%s=%v", id, mounted))
	})
	a := &fakeConn{id: "s1"}
	h.registerConn(mountEvent{conn: a, controlID: "c1", mounted: true})
	h.registerConn(mountEvent{conn: a, controlID: "c2", mounted: true})
	if h.Mounted("c1") || !h.Mounted("c2") {
		t.Fatalf("connection should have moved to c2")
	}
	want := []string{"c1=true", "c1=false", "c2=true"}
	if fmt.Sprint(changes) != fmt.Sprint(want) {
		t.Fatalf("changes=%v want=%v", changes, want)
	}
}

func TestHubRunAppliesMountsInOrder(t *testing.T) {
	for i := 0; i < 50; i++ {
		h := NewHub(Options{Logger: zaptest.NewLogger(t)})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		widget := &fakeConn{id: "s1"}
		h.enqueueMount(mountEvent{conn: widget, controlID: "c1", mounted: true})
		h.enqueueMount(mountEvent{conn: widget, controlID: "c1", mounted: false})
		h.enqueueMount(mountEvent{conn: &fakeConn{id: "marker"}, controlID: "marker", mounted: true})

		go func() {
			h.Run(ctx)
			close(done)
		}()
		waitFor(t, "marker mount", func() bool { return h.ClientCount("marker") == 1 })

		if h.Mounted("c1") {
			cancel()
			<-done
			t.Fatalf("iteration %d: widget that disconnected right after connecting is still mounted", i)
		}
		if err := h.Invoke(ctx, "c1", confetti.CommandPlay); !errors.Is(err, confetti.ErrNotMounted) {
			t.Fatalf("iteration %d: err=%v want ErrNotMounted", i, err)
		}
		cancel()
		<-done
	}
}

func TestHubRemoteMountState(t *testing.T) {
	h, _ := newTestHub(t)
	var changes []string
	h.OnMountChange(func(id string, mounted bool) {
		changes = append(changes, fmt.Sprintf("%s=%v", id, mounted))
	})

	h.handleMount(mountEvent{origin: "peer", controlID: "c1", mounted: true})
	if !h.Mounted("c1") || h.ClientCount("c1") != 0 || h.RemoteControlCount() != 1 {
		t.Fatalf("remote mount not tracked")
	}

	local := &fakeConn{id: "s1"}
	h.handleMount(mountEvent{conn: local, controlID: "c1", mounted: true})
	var announced clusterMount
	if err := json.Unmarshal(nextPublished(t, h, redisChanMount), &announced); err != nil {
		t.Fatal(err)
	}
	if announced.Origin != h.instanceID || announced.ControlID != "c1" || !announced.Mounted {
		t.Fatalf("announcement=%+v", announced)
	}
	if h.RemoteControlCount() != 0 {
		t.Fatalf("control held locally is not remote-only")
	}

	h.handleMount(mountEvent{origin: "peer", controlID: "c1", mounted: false})
	if !h.Mounted("c1") {
		t.Fatalf("local widget still holds c1")
	}
	h.handleMount(mountEvent{conn: local, controlID: "c1", mounted: false})
	if h.Mounted("c1") {
		t.Fatalf("c1 should be unmounted")
	}
	h.handleMount(mountEvent{origin: "peer", controlID: "c1", mounted: false})

	want := []string{"c1=true", "c1=false"}
	if fmt.Sprint(changes) != fmt.Sprint(want) {
		t.Fatalf("changes=%v want=%v", changes, want)
	}
}

func TestHubInvokeAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newHub := func(listener MountListener) *Hub {
		rc := pkgredis.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
		t.Cleanup(func() { _ = rc.Close() })
		h := NewHub(Options{
			Redis:      rc,
			Store:      snapshotstore.New(rc, time.Hour),
			Logger:     zaptest.NewLogger(t),
			AckTimeout: 200 * time.Millisecond,
		})
		h.OnMountChange(listener)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			h.Run(ctx)
			close(done)
		}()
		t.Cleanup(func() {
			cancel()
			<-done
		})
		return h
	}
	var (
		mu      sync.Mutex
		mounted []bool
	)
	owner := newHub(func(id string, m bool) {
		mu.Lock()
		mounted = append(mounted, m)
		mu.Unlock()
	})
	holder := newHub(nil)
	waitFor(t, "subscriptions", func() bool {
		return mr.PubSubNumSub(redisChanInvoke)[redisChanInvoke] == 2
	})

	widget := &fakeConn{id: "s1", ackArgs: []any{map[string]any{"ok": true}}}
	holder.enqueueMount(mountEvent{conn: widget, controlID: "c1", mounted: true})
	waitFor(t, "remote mount", func() bool { return owner.Mounted("c1") })

	ctx := context.Background()
	if err := owner.Invoke(ctx, "c1", confetti.CommandPlay); err != nil {
		t.Fatalf("forwarded play: %v", err)
	}
	ev := widget.events()
	if len(ev) != 1 || ev[0].payload.(invokeFrame).Method != confetti.CommandPlay {
		t.Fatalf("widget events=%v", ev)
	}

	widget.setAck([]any{map[string]any{"ok": false, "error": "not ready"}}, nil)
	err := owner.Invoke(ctx, "c1", confetti.CommandStop)
	if !errors.Is(err, confetti.ErrRejected) || !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("err=%v want ErrRejected carrying the widget message", err)
	}

	holder.enqueueMount(mountEvent{conn: widget, controlID: "c1", mounted: false})
	waitFor(t, "remote unmount", func() bool { return !owner.Mounted("c1") })
	if err := owner.Invoke(ctx, "c1", confetti.CommandPlay); !errors.Is(err, confetti.ErrNotMounted) {
		t.Fatalf("err=%v want ErrNotMounted", err)
	}

	waitFor(t, "owner mount changes", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Sprint(mounted) == "[true false]"
	})
}

func TestClusterReplyMapping(t *testing.T) {
	tests := []struct {
		in   error
		want error
	}{
		{nil, nil},
		{fmt.Errorf("%w: busy", confetti.ErrRejected), confetti.ErrRejected},
		{confetti.ErrAckTimeout, confetti.ErrAckTimeout},
		{context.DeadlineExceeded, confetti.ErrAckTimeout},
		{confetti.ErrNotMounted, confetti.ErrNotMounted},
		{confetti.ErrChannelClosed, confetti.ErrChannelClosed},
	}
	for _, tt := range tests {
		got := newClusterReply(tt.in).err()
		if tt.want == nil {
			if got != nil {
				t.Fatalf("reply for nil = %v", got)
			}
			continue
		}
		if !errors.Is(got, tt.want) {
			t.Fatalf("reply for %v = %v, want %v", tt.in, got, tt.want)
		}
	}
	if err := newClusterReply(errors.New("socket write")).err(); err == nil || !strings.Contains(err.Error(), "socket write") {
		t.Fatalf("generic failure lost: %v", err)
	}
}

func TestHubInvoke(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()

	if err := h.Invoke(ctx, "c1", confetti.CommandPlay); !errors.Is(err, confetti.ErrNotMounted) {
		t.Fatalf("err=%v want ErrNotMounted", err)
	}

	old := &fakeConn{id: "s1"}
	latest := &fakeConn{id: "s2", ackArgs: []any{map[string]any{"ok": true}}}
	h.registerConn(mountEvent{conn: old, controlID: "c1", mounted: true})
	h.registerConn(mountEvent{conn: latest, controlID: "c1", mounted: true})

	if err := h.Invoke(ctx, "c1", confetti.CommandPlay); err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if len(old.events()) != 0 {
		t.Fatalf("older widget should not receive commands")
	}
	ev := latest.events()
	if len(ev) != 1 || ev[0].event != eventInvoke {
		t.Fatalf("events=%v", ev)
	}
	if frame := ev[0].payload.(invokeFrame); frame.Method != "play" || frame.ControlID != "c1" {
		t.Fatalf("frame=%+v", frame)
	}

	latest.setAck([]any{map[string]any{"ok": false, "error": "not ready"}}, nil)
	err := h.Invoke(ctx, "c1", confetti.CommandStop)
	if !errors.Is(err, confetti.ErrRejected) {
		t.Fatalf("err=%v want ErrRejected", err)
	}

	latest.setAck(nil, confetti.ErrAckTimeout)
	if err := h.Invoke(ctx, "c1", confetti.CommandStop); !errors.Is(err, confetti.ErrAckTimeout) {
		t.Fatalf("err=%v want ErrAckTimeout", err)
	}

	h.shutdown()
	if err := h.Invoke(ctx, "c1", confetti.CommandPlay); !errors.Is(err, confetti.ErrChannelClosed) {
		t.Fatalf("err=%v want ErrChannelClosed", err)
	}
}

func TestHubApplyStoresAndDelivers(t *testing.T) {
	h, _ := newTestHub(t)
	ctx := context.Background()
	conn := &fakeConn{id: "s1"}
	h.registerConn(mountEvent{conn: conn, controlID: "c1", mounted: true})

	cfg := confetti.DefaultConfig()
	cfg.Colors = []confetti.Color{"#FF0000"}
	snap := confetti.PrepareSnapshot(cfg)
	if err := h.Apply(ctx, "c1", snap); err != nil {
		t.Fatal(err)
	}

	ev := conn.events()
	if len(ev) != 1 || ev[0].event != eventUpdate {
		t.Fatalf("events=%v", ev)
	}
	frame := ev[0].payload.(updateFrame)
	if frame.Version != snap.Version() || frame.Snapshot[confetti.KeyColorsEncoded] != `["#FF0000"]` {
		t.Fatalf("frame=%+v", frame)
	}

	entry, err := h.store.Load(ctx, "c1")
	if err != nil || entry == nil || entry.Version != snap.Version() {
		t.Fatalf("stored entry=%+v err=%v", entry, err)
	}

	var msg clusterUpdate
	if err := json.Unmarshal(nextPublished(t, h, redisChanUpdate), &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Origin != h.instanceID || msg.ControlID != "c1" || msg.Snapshot.Version() != snap.Version() {
		t.Fatalf("cluster message=%+v", msg)
	}

	late := &fakeConn{id: "s2"}
	h.replay(ctx, late, "c1")
	if ev := late.events(); len(ev) != 1 || ev[0].payload.(updateFrame).Version != snap.Version() {
		t.Fatalf("replay events=%v", ev)
	}
}

func TestHubClusterUpdate(t *testing.T) {
	h, _ := newTestHub(t)
	conn := &fakeConn{id: "s1"}
	h.registerConn(mountEvent{conn: conn, controlID: "c1", mounted: true})

	snap := confetti.PrepareSnapshot(confetti.DefaultConfig())
	own, _ := json.Marshal(clusterUpdate{Origin: h.instanceID, ControlID: "c1", Snapshot: snap})
	h.handleClusterUpdate(own)
	if len(conn.events()) != 0 {
		t.Fatalf("own messages must be ignored")
	}

	other, _ := json.Marshal(clusterUpdate{Origin: "peer", ControlID: "c1", Snapshot: snap})
	h.handleClusterUpdate(other)
	h.handleClusterUpdate([]byte("{broken"))
	ev := conn.events()
	if len(ev) != 1 || ev[0].payload.(updateFrame).Version != snap.Version() {
		t.Fatalf("events=%v", ev)
	}
}

func TestHubUnmount(t *testing.T) {
	h, _ := newTestHub(t)
	a := &fakeConn{id: "s1"}
	h.registerConn(mountEvent{conn: a, controlID: "c1", mounted: true})
	if n := h.Unmount("c1"); n != 1 || !a.disconnected {
		t.Fatalf("unmount n=%d disconnected=%v", n, a.disconnected)
	}
}

func TestParseAck(t *testing.T) {
	tests := []struct {
		name    string
		args    []any
		wantErr bool
	}{
		{"no args", nil, false},
		{"nil arg", []any{nil}, false},
		{"true", []any{true}, false},
		{"false", []any{false}, true},
		{"ok map", []any{map[string]any{"ok": true}}, false},
		{"map without ok", []any{map[string]any{}}, false},
		{"rejected map", []any{map[string]any{"ok": false, "error": "busy"}}, true},
		{"json string", []any{`{"ok":false}`}, true},
		{"plain string", []any{"nope"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := parseAck(tt.args)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, confetti.ErrRejected) {
				t.Fatalf("err=%v should wrap ErrRejected", err)
			}
		})
	}
}

func TestTokenHelpers(t *testing.T) {
	if got := normalizeToken("  Bearer abc "); got != "abc" {
		t.Fatalf("normalizeToken=%q", got)
	}
	if got := normalizeToken("raw"); got != "raw" {
		t.Fatalf("normalizeToken=%q", got)
	}
	values := map[string][]string{"Authorization": {" Bearer x "}, "empty": {}}
	if got := firstValueFromMultiMap(values, "authorization"); got != "Bearer x" {
		t.Fatalf("firstValueFromMultiMap=%q", got)
	}
	if got := firstValueFromMultiMap(values, "empty"); got != "" {
		t.Fatalf("firstValueFromMultiMap=%q", got)
	}
}

func TestHubAuthenticate(t *testing.T) {
	h, _ := newTestHub(t)
	if _, ok := h.authenticate("Bearer t"); ok {
		t.Fatalf("no validator must reject")
	}
	h.validate = func(token string) (string, error) {
		if token == "good" {
			return "c1", nil
		}
		return "", errors.New("bad token")
	}
	if id, ok := h.authenticate("Bearer good"); !ok || id != "c1" {
		t.Fatalf("authenticate=%q,%v", id, ok)
	}
	if _, ok := h.authenticate("bad"); ok {
		t.Fatalf("bad token accepted")
	}
}
