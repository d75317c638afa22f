package confetti

import (
	"context"
	"errors"
)

// Commands understood by the host widget.
const (
	CommandPlay = "play"
	CommandStop = "stop"
)

var (
	// ErrNotMounted is returned when no host widget is attached to the control.
	ErrNotMounted = errors.New("confetti: control is not mounted")
	// ErrChannelClosed is returned after the action channel has shut down.
	ErrChannelClosed = errors.New("confetti: action channel closed")
	// ErrAckTimeout is returned when the widget did not acknowledge in time.
	ErrAckTimeout = errors.New("confetti: acknowledgement timed out")
	// ErrRejected is returned when the widget acknowledged with an error.
	ErrRejected = errors.New("confetti: command rejected by host")
)

// Host applies snapshots to the live rendering widget of a control.
type Host interface {
	Apply(ctx context.Context, controlID string, snap Snapshot) error
}

// ActionChannel delivers a named command to the widget instance and waits for its acknowledgement.
type ActionChannel interface {
	Invoke(ctx context.Context, controlID, command string) error
}

// Control owns the configuration of one emitter and relays commands to its widget.
// A Control has a single owner and is not safe for concurrent use.
type Control struct {
	id      string
	cfg     Config
	host    Host
	channel ActionChannel
}

// NewControl creates a control with the given configuration.
func NewControl(id string, cfg Config, host Host, channel ActionChannel) *Control {
	return &Control{id: id, cfg: cfg.Clone(), host: host, channel: channel}
}

// ID returns the control identifier used by the host and the channel.
func (c *Control) ID() string { return c.id }

// Config returns a copy of the current configuration.
func (c *Control) Config() Config { return c.cfg.Clone() }

// Update mutates the configuration in place. Call Sync afterwards to push it to the host.
func (c *Control) Update(fn func(*Config)) {
	if fn != nil {
		fn(&c.cfg)
	}
}

// Snapshot projects the current configuration without handing it to the host.
func (c *Control) Snapshot() Snapshot { return PrepareSnapshot(c.cfg) }

// Sync prepares a fresh snapshot and hands it to the host.
func (c *Control) Sync(ctx context.Context) (Snapshot, error) {
	snap := PrepareSnapshot(c.cfg)
	if c.host == nil {
		return snap, nil
	}
	if err := c.host.Apply(ctx, c.id, snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// Play asks the widget to start emitting. It returns once the channel acknowledges dispatch.
func (c *Control) Play(ctx context.Context) error {
	return c.invoke(ctx, CommandPlay)
}

// Stop asks the widget to halt emission.
func (c *Control) Stop(ctx context.Context) error {
	return c.invoke(ctx, CommandStop)
}

func (c *Control) invoke(ctx context.Context, command string) error {
	if c.channel == nil {
		return ErrChannelClosed
	}
	return c.channel.Invoke(ctx, c.id, command)
}
