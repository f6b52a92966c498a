// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

const (
	// reloadDebounce coalesces the burst of events editors emit for one save.
	reloadDebounce = 150 * time.Millisecond
	// saveLockTimeout bounds how long Save waits for another process.
	saveLockTimeout = 2 * time.Second
)

// =============================================================================
// STORE
// =============================================================================

// Store holds the live configuration as an immutable snapshot that is
// replaced atomically. Readers never block; writers are serialized.
type Store struct {
	path    string
	current atomic.Pointer[Config]

	// file is the configuration as it should be written back: the file's
	// own values plus changes made through Update, without environment
	// overrides. Guarded by writeMu.
	file *Config

	// writeMu serializes Update, Save and Reload so no change is lost
	// between clone and swap.
	writeMu sync.Mutex
}

// NewStore creates a Store backed by path and seeded with cfg.
// A nil cfg seeds the store with Default().
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{path: path, file: cfg.Clone()}
	s.current.Store(cfg.Clone())
	return s
}

// OpenStore loads path (defaults when absent) and returns a Store for it.
// Environment overrides apply to snapshots but are never saved.
func OpenStore(path string) (*Store, error) {
	file, live, err := loadLayers(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, file: file}
	s.current.Store(live)
	return s, nil
}

// Path returns the file the store saves to and watches.
func (s *Store) Path() string {
	return s.path
}

// Snapshot returns the current configuration. The returned value is shared
// and must be treated as read-only.
func (s *Store) Snapshot() *Config {
	return s.current.Load()
}

// Update applies fn to a private clone of the current configuration,
// validates the result and publishes it. The same change is recorded for
// Save. On error the live snapshot is left untouched.
func (s *Store) Update(fn func(*Config) error) (*Config, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	file := s.file.Clone()
	if err := fn(file); err != nil {
		return nil, err
	}
	s.file = file
	s.current.Store(next)
	return next, nil
}

// Set is a convenience wrapper around Update for a single dot key.
func (s *Store) Set(key, value string) (*Config, error) {
	return s.Update(func(c *Config) error {
		return c.Set(key, value)
	})
}

// Save writes the configuration to the store's path atomically. Values
// that came from environment overrides are not written. A lock
// file next to the config keeps concurrent tierchat processes from
// interleaving their saves.
func (s *Store) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.path == "" {
		return errors.New("config store has no path")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lock := flock.New(s.path + ".lock")
	ctx, cancel := context.WithTimeout(context.Background(), saveLockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(ctx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquire config lock: %w", err)
	}
	if !locked {
		return errors.New("config file is locked by another process")
	}
	defer lock.Unlock()

	return SaveToPath(s.file, s.path)
}

// Reload re-reads the backing file and swaps it in. An invalid file keeps
// the previous snapshot and returns the error.
func (s *Store) Reload() (*Config, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	file, cfg, err := loadLayers(s.path)
	if err != nil {
		return nil, err
	}
	s.file = file
	s.current.Store(cfg)
	return cfg, nil
}

// =============================================================================
// FILE WATCHER
// =============================================================================

// Watch reloads the store whenever its file is written by another process
// and calls onChange (if non-nil) with each new snapshot. It blocks until
// ctx is cancelled.
func (s *Store) Watch(ctx context.Context, onChange func(*Config)) error {
	if s.path == "" {
		return errors.New("config store has no path")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic saves replace the file, which would drop
	// a watch placed on the file itself.
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	logger := log.WithField("path", s.path)
	logger.Debug("Watching config file")

	target := filepath.Clean(s.path)
	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		pending bool
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if !pending {
				continue
			}
			pending = false

			cfg, err := s.Reload()
			if err != nil {
				logger.WithError(err).Warn("Config file changed but could not be loaded; keeping previous settings")
				continue
			}
			logger.Info("Config reloaded")
			if onChange != nil {
				onChange(cfg)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("Config watcher error")
		}
	}
}
