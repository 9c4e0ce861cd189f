package policy

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// ReloadedEvent represents a role table reload
type ReloadedEvent struct {
	Timestamp time.Time
	Roles     map[types.Role]int
	Error     error
}

// RoleTableWatcher reloads a RoleTable whenever its YAML file changes
type RoleTableWatcher struct {
	watcher         *fsnotify.Watcher
	path            string
	table           *RoleTable
	logger          *zap.Logger
	debounceTimeout time.Duration
	debounceTimer   *time.Timer
	eventChan       chan ReloadedEvent
	stopChan        chan struct{}
	mu              sync.RWMutex
	isWatching      bool
}

// NewRoleTableWatcher creates a watcher for the role table file at path
func NewRoleTableWatcher(path string, table *RoleTable, logger *zap.Logger) (*RoleTableWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if table == nil {
		return nil, fmt.Errorf("role table is required")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &RoleTableWatcher{
		watcher:         watcher,
		path:            filepath.Clean(path),
		table:           table,
		logger:          logger,
		debounceTimeout: 500 * time.Millisecond,
		eventChan:       make(chan ReloadedEvent, 10),
		stopChan:        make(chan struct{}),
	}, nil
}

// Watch starts watching. The containing directory is watched so that editors
// which replace the file by rename are picked up.
func (w *RoleTableWatcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.isWatching {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.isWatching = true
	w.mu.Unlock()

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		w.mu.Lock()
		w.isWatching = false
		w.mu.Unlock()
		return fmt.Errorf("failed to add path to watcher: %w", err)
	}

	w.logger.Info("Starting role table watcher",
		zap.String("path", w.path),
		zap.Duration("debounce", w.debounceTimeout),
	)

	go w.watchLoop(ctx)
	return nil
}

func (w *RoleTableWatcher) watchLoop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.isWatching = false
		w.mu.Unlock()
		w.logger.Info("Role table watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == w.path &&
				event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.handleEvent(event)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", zap.Error(err))
		}
	}
}

func (w *RoleTableWatcher) handleEvent(event fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Debug("Role table change detected",
		zap.String("file", event.Name),
		zap.String("op", event.Op.String()),
	)

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceTimeout, w.Reload)
}

// Reload reads the file and swaps the table. A failed reload keeps the
// previous table in place.
func (w *RoleTableWatcher) Reload() {
	roles, err := LoadRoleTableFile(w.path)
	if err == nil {
		err = w.table.Replace(roles)
	}
	if err != nil {
		w.logger.Error("Failed to reload role table",
			zap.String("path", w.path),
			zap.Error(err),
		)
		w.emit(ReloadedEvent{Timestamp: time.Now(), Error: err})
		return
	}

	w.logger.Info("Role table reloaded", zap.Int("roles", len(roles)))
	w.emit(ReloadedEvent{Timestamp: time.Now(), Roles: w.table.Snapshot()})
}

func (w *RoleTableWatcher) emit(ev ReloadedEvent) {
	select {
	case w.eventChan <- ev:
	default:
		w.logger.Warn("Role table reload event dropped, channel full")
	}
}

// EventChan returns a channel for receiving reload events
func (w *RoleTableWatcher) EventChan() <-chan ReloadedEvent {
	return w.eventChan
}

// SetDebounceTimeout sets the debounce timeout for file changes
func (w *RoleTableWatcher) SetDebounceTimeout(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceTimeout = d
}

// IsWatching returns true if the watcher is currently active
func (w *RoleTableWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.isWatching
}

// Stop stops watching for file changes
func (w *RoleTableWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
		return nil
	default:
	}
	close(w.stopChan)

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Error("Error closing watcher", zap.Error(err))
		return err
	}
	return nil
}
