package preset

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileWatcher polls a file's modification time and reloads the catalog when it changes.
type FileWatcher struct {
	catalog  *Catalog
	interval time.Duration
	logger   *zap.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	last     time.Time
	seen     bool
}

// NewFileWatcher creates a watcher for the catalog's file.
func NewFileWatcher(catalog *Catalog, interval time.Duration, logger *zap.Logger) *FileWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileWatcher{
		catalog:  catalog,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins polling in a goroutine.
func (w *FileWatcher) Start() {
	w.check()
	ticker := time.NewTicker(w.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if w.check() {
					w.reload()
				}
			case <-w.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the watcher.
func (w *FileWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// check records the current mtime and reports whether it changed since the last call.
// A file that disappears counts as a change so the catalog falls back to defaults.
func (w *FileWatcher) check() bool {
	fi, err := os.Stat(w.catalog.Path())
	if err != nil {
		changed := w.seen
		w.seen = false
		w.last = time.Time{}
		return changed
	}
	mt := fi.ModTime()
	changed := !w.seen || !mt.Equal(w.last)
	w.seen = true
	w.last = mt
	return changed
}

func (w *FileWatcher) reload() {
	if err := w.catalog.Reload(); err != nil {
		w.logger.Warn("presets reload failed", zap.String("path", w.catalog.Path()), zap.Error(err))
	}
}
