// Package registry owns the live confetti controls of this process and exposes them over HTTP.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	"github.com/mx-space/confetti-bridge/internal/modules/preset"
	"go.uber.org/zap"
)

var (
	ErrNotFound = errors.New("control not found")
	ErrInvalid  = errors.New("invalid configuration")
)

// SnapshotForgetter drops the stored snapshot of a discarded control.
type SnapshotForgetter interface {
	Delete(ctx context.Context, controlID string) error
}

// Unmounter disconnects widgets of a discarded control.
type Unmounter interface {
	Unmount(controlID string) int
}

// TokenIssuer signs a mount token for a control.
type TokenIssuer func(controlID string) (string, error)

type entry struct {
	mu        sync.Mutex
	ctrl      *confetti.Control
	snap      confetti.Snapshot
	createdAt time.Time
	syncedAt  time.Time

	// guarded by Service.mu
	mounted   bool
	idleSince time.Time
}

type Options struct {
	Host      confetti.Host
	Channel   confetti.ActionChannel
	Presets   *preset.Catalog
	Store     SnapshotForgetter
	Unmounter Unmounter
	Issue     TokenIssuer
	Logger    *zap.Logger
}

type Service struct {
	mu      sync.RWMutex
	entries map[string]*entry

	host      confetti.Host
	channel   confetti.ActionChannel
	presets   *preset.Catalog
	store     SnapshotForgetter
	unmounter Unmounter
	issue     TokenIssuer
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		entries:   make(map[string]*entry),
		host:      opts.Host,
		channel:   opts.Channel,
		presets:   opts.Presets,
		store:     opts.Store,
		unmounter: opts.Unmounter,
		issue:     opts.Issue,
		logger:    logger,
		now:       time.Now,
	}
}

// Declare creates a control from a preset and an optional patch, then pushes its first snapshot.
func (s *Service) Declare(ctx context.Context, dto CreateDTO) (*Declared, error) {
	cfg := confetti.DefaultConfig()
	if s.presets != nil {
		p, err := s.presets.Get(dto.Preset)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		cfg = p
	} else if dto.Preset != "" && dto.Preset != preset.DefaultName {
		return nil, fmt.Errorf("%w: unknown preset %s", ErrInvalid, dto.Preset)
	}
	if err := dto.Config.Apply(&cfg); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	var token string
	if s.issue != nil {
		t, err := s.issue(id)
		if err != nil {
			return nil, fmt.Errorf("issue mount token: %w", err)
		}
		token = t
	}

	now := s.now()
	e := &entry{
		ctrl:      confetti.NewControl(id, cfg, s.host, s.channel),
		createdAt: now,
		idleSince: now,
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	s.mu.Lock()
	s.entries[id] = e
	s.mu.Unlock()

	if err := s.syncLocked(ctx, e); err != nil {
		s.mu.Lock()
		delete(s.entries, id)
		s.mu.Unlock()
		return nil, err
	}

	s.logger.Info("control declared", zap.String("control_id", id), zap.String("preset", dto.Preset))
	return &Declared{View: s.viewLocked(e), MountToken: token}, nil
}

func (s *Service) syncLocked(ctx context.Context, e *entry) error {
	snap, err := e.ctrl.Sync(ctx)
	if err != nil {
		return fmt.Errorf("sync %s: %w", e.ctrl.ID(), err)
	}
	e.snap = snap
	e.syncedAt = s.now()
	return nil
}

func (s *Service) viewLocked(e *entry) View {
	s.mu.RLock()
	mounted := e.mounted
	s.mu.RUnlock()
	return View{
		ID:        e.ctrl.ID(),
		Mounted:   mounted,
		Version:   e.snap.Version(),
		Config:    confetti.NewConfigView(e.ctrl.Config()),
		Snapshot:  e.snap,
		CreatedAt: e.createdAt,
		SyncedAt:  e.syncedAt,
	}
}

func (s *Service) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Get returns the current view of a control.
func (s *Service) Get(id string) (View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.viewLocked(e), nil
}

// List returns every control ordered by creation time.
func (s *Service) List() []Summary {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.entries))
	for id, e := range s.entries {
		sum := Summary{ID: id, Mounted: e.mounted, CreatedAt: e.createdAt}
		if !e.mounted {
			idle := e.idleSince
			sum.IdleSince = &idle
		}
		out = append(out, sum)
	}
	s.mu.RUnlock()

	for i := range out {
		if e, err := s.lookup(out[i].ID); err == nil {
			e.mu.Lock()
			out[i].Version = e.snap.Version()
			e.mu.Unlock()
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update applies a patch and synchronizes the control. A failed patch changes nothing.
func (s *Service) Update(ctx context.Context, id string, patch *ConfigPatch) (View, error) {
	e, err := s.lookup(id)
	if err != nil {
		return View{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.ctrl.Config()
	if err := patch.Apply(&cfg); err != nil {
		return View{}, err
	}
	e.ctrl.Update(func(c *confetti.Config) { *c = cfg })
	if err := s.syncLocked(ctx, e); err != nil {
		return View{}, err
	}
	return s.viewLocked(e), nil
}

// Remove discards a control, its stored snapshot and any mounted widgets.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if s.unmounter != nil {
		s.unmounter.Unmount(id)
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, id); err != nil {
			return fmt.Errorf("forget snapshot %s: %w", id, err)
		}
	}
	s.logger.Info("control removed", zap.String("control_id", id))
	return nil
}

// Play starts emission on the mounted widget.
func (s *Service) Play(ctx context.Context, id string) error {
	return s.invoke(ctx, id, (*confetti.Control).Play)
}

// Stop halts emission on the mounted widget.
func (s *Service) Stop(ctx context.Context, id string) error {
	return s.invoke(ctx, id, (*confetti.Control).Stop)
}

func (s *Service) invoke(ctx context.Context, id string, fn func(*confetti.Control, context.Context) error) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	// Commands only read the control identity, so the ack wait runs unlocked.
	e.mu.Lock()
	ctrl := e.ctrl
	e.mu.Unlock()
	return fn(ctrl, ctx)
}

// MountToken issues a fresh mount token for an existing control.
func (s *Service) MountToken(id string) (string, error) {
	if _, err := s.lookup(id); err != nil {
		return "", err
	}
	if s.issue == nil {
		return "", errors.New("mount tokens are not configured")
	}
	return s.issue(id)
}

// SetMounted records mount transitions reported by the gateway.
func (s *Service) SetMounted(id string, mounted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return
	}
	e.mounted = mounted
	if !mounted {
		e.idleSince = s.now()
	}
}

// SweepIdle removes controls that have had no widget for longer than ttl. ttl <= 0 disables it.
func (s *Service) SweepIdle(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-ttl)

	s.mu.RLock()
	var stale []string
	for id, e := range s.entries {
		if !e.mounted && e.idleSince.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()
	sort.Strings(stale)

	var errs []error
	removed := 0
	for _, id := range stale {
		err := s.Remove(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		removed++
		if err != nil {
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}
