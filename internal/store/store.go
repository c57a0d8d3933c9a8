// Package store provides durable key-record persistence for the scheduler
// configuration and the per-VM processing cache. Writes are atomic (staging
// file + rename) and every access runs under an advisory file lock with a
// bounded wait, because short-lived CLI invocations share the files with a
// running daemon.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/atrejom/vcfping/internal/logger"
)

const (
	// lockRetryDelay is the poll interval while waiting for the file lock.
	lockRetryDelay = 50 * time.Millisecond

	// DefaultLockTimeout bounds how long a caller waits for the file lock
	// before giving up.
	DefaultLockTimeout = 5 * time.Second
)

// Store persists a single JSON document at a fixed path.
type Store struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	logger      *logger.Logger
}

// New creates a store for the given file path. The advisory lock lives next
// to the data file so that a reader never locks the file being renamed over.
func New(path string, log *logger.Logger) *Store {
	return &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: DefaultLockTimeout,
		logger:      log,
	}
}

// Path returns the data file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted document into v. A missing file leaves v at its
// zero value and returns nil. An unparseable file is treated as state
// corruption: it self-heals to the zero value with a logged warning rather
// than failing the caller.
func (s *Store) Load(ctx context.Context, v any) error {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.loadLocked(v)
}

// Save atomically replaces the persisted document with v: marshal to a
// staging file, fsync, then rename. A crash mid-write never leaves a
// half-written file behind.
func (s *Store) Save(ctx context.Context, v any) error {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	return s.saveLocked(v)
}

// Update runs a read-modify-write cycle as one critical section: load the
// document into v, apply fn, persist the result. Concurrent invocations
// (a configure command racing the daemon's own persistence) serialize on
// the file lock.
func (s *Store) Update(ctx context.Context, v any, fn func() error) error {
	unlock, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.loadLocked(v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.saveLocked(v)
}

func (s *Store) loadLocked(v any) error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("corrupted state file, starting fresh",
			logger.Field{Key: "file", Value: s.path},
			logger.Field{Key: "error", Value: err})
		return nil
	}

	return nil
}

func (s *Store) saveLocked(v any) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create staging file: %w", err)
	}

	if _, err := file.Write(append(data, '\n')); err != nil {
		file.Close()
		return fmt.Errorf("failed to write staging file: %w", err)
	}

	// Ensure all data is on disk before the rename makes it visible.
	if err := file.Sync(); err != nil {
		file.Close()
		return fmt.Errorf("failed to sync staging file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close staging file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}

	s.logger.Debug("state saved",
		logger.Field{Key: "file", Value: s.path})

	return nil
}

// acquireLock takes the advisory lock with a bounded wait and returns the
// release function.
func (s *Store) acquireLock(ctx context.Context) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", s.path, err)
	}
	if !locked {
		return nil, fmt.Errorf("timed out waiting for lock on %s", s.path)
	}

	return func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Error("failed to release file lock", err,
				logger.Field{Key: "file", Value: s.path})
		}
	}, nil
}
