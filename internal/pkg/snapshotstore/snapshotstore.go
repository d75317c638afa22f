// Package snapshotstore keeps the last snapshot applied to each control so a widget that
// mounts later can be brought up to date.
package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mx-space/confetti-bridge/internal/modules/confetti"
	pkgredis "github.com/mx-space/confetti-bridge/internal/pkg/redis"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "confetti:snapshot:"

// Entry is the stored form of a snapshot.
type Entry struct {
	ControlID string            `json:"control_id"`
	Version   string            `json:"version"`
	Snapshot  confetti.Snapshot `json:"snapshot"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Store persists entries in Redis with a TTL.
type Store struct {
	rc  *pkgredis.Client
	ttl time.Duration
}

// New creates a store. ttl <= 0 keeps entries until deleted.
func New(rc *pkgredis.Client, ttl time.Duration) *Store {
	if ttl < 0 {
		ttl = 0
	}
	return &Store{rc: rc, ttl: ttl}
}

func key(controlID string) string { return keyPrefix + controlID }

// Save stores snap as the latest snapshot of controlID.
func (s *Store) Save(ctx context.Context, controlID string, snap confetti.Snapshot) (*Entry, error) {
	entry := &Entry{
		ControlID: controlID,
		Version:   snap.Version(),
		Snapshot:  snap,
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot %s: %w", controlID, err)
	}
	if err := s.rc.Set(ctx, key(controlID), data, s.ttl); err != nil {
		return nil, fmt.Errorf("save snapshot %s: %w", controlID, err)
	}
	return entry, nil
}

// Load returns the latest entry, or nil when none is stored.
func (s *Store) Load(ctx context.Context, controlID string) (*Entry, error) {
	data, err := s.rc.Raw().Get(ctx, key(controlID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", controlID, err)
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", controlID, err)
	}
	return &entry, nil
}

// Delete removes the stored entry.
func (s *Store) Delete(ctx context.Context, controlID string) error {
	return s.rc.Del(ctx, key(controlID))
}
