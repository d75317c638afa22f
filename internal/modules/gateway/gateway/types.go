package gateway

import (
	"context"
	"sync"
	"time"

	pkgredis "github.com/mx-space/confetti-bridge/internal/pkg/redis"
	"github.com/mx-space/confetti-bridge/internal/pkg/snapshotstore"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"
)

const (
	namespaceConfetti = "/confetti"
	redisChanUpdate   = "confetti:gateway:update"
	redisChanMount    = "confetti:gateway:mount"
	redisChanInvoke   = "confetti:gateway:invoke"
	redisReplyPrefix  = "confetti:gateway:reply:"

	eventMessage = "message"
	eventUpdate  = "update"
	eventInvoke  = "invoke"

	defaultAckTimeout = 5 * time.Second
)

// updateFrame is emitted to a widget whenever its control is synchronized.
type updateFrame struct {
	ControlID string         `json:"control_id"`
	Version   string         `json:"version"`
	Snapshot  map[string]any `json:"snapshot"`
}

// invokeFrame carries a named command. Commands have no arguments.
type invokeFrame struct {
	ControlID string `json:"control_id"`
	Method    string `json:"method"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// widgetConn is one mounted host widget connection.
type widgetConn interface {
	ID() string
	Emit(event string, payload any) error
	EmitWithAck(ctx context.Context, timeout time.Duration, event string, payload any) ([]any, error)
	Disconnect()
}

// mountEvent is a mount state change. conn is set for widgets on this
// instance; origin is set for widgets announced by another instance.
type mountEvent struct {
	conn      widgetConn
	origin    string
	controlID string
	mounted   bool
}

type outbound struct {
	channel string
	data    []byte
}

// TokenValidator resolves a mount token to the control it grants access to.
type TokenValidator func(token string) (controlID string, err error)

// MountListener is told when the first widget of a control mounts or the last one leaves.
type MountListener func(controlID string, mounted bool)

// Hub manages host widget connections, command delivery and cluster fan-out.
type Hub struct {
	mu sync.RWMutex

	// controlConns keeps mount order; the last entry receives commands.
	controlConns map[string][]widgetConn
	sidControl   map[string]string
	// remoteMounts holds, per control, the instances that announced a widget.
	remoteMounts map[string]map[string]struct{}

	// mounts carries mount and unmount in arrival order.
	mounts  chan mountEvent
	publish chan outbound

	closeOnce sync.Once
	closed    chan struct{}

	instanceID string
	ackTimeout time.Duration
	rc         *pkgredis.Client
	store      *snapshotstore.Store
	logger     *zap.Logger
	sio        *socketio.Server
	validate   TokenValidator
	listeners  []MountListener
}

// Options configures a Hub.
type Options struct {
	Redis      *pkgredis.Client
	Store      *snapshotstore.Store
	Logger     *zap.Logger
	AckTimeout time.Duration
	Validate   TokenValidator
}
