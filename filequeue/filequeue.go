// Package filequeue persists an Engine's mutation queue to disk between
// process runs, so a client that is killed mid-backlog resumes with the
// same pending mutations on restart. It implements engine.QueuePersister
// using a flock-guarded, fail-open locking pattern and atomic
// rewrite-via-temp-file.
package filequeue

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/edgesync/edgesync/engine"
)

const (
	// QueueFileName is the default queue file name within Store.dir.
	QueueFileName = "queue.yaml"

	// DefaultDirName is the subdirectory within the cache dir.
	DefaultDirName = "edgesync"
)

// LockTimeout is the maximum time to wait for the file lock before
// proceeding without it. Fail-open: a client should never hang because
// another process (or a crashed one) is holding the lock.
const LockTimeout = 100 * time.Millisecond

// Store persists a []engine.QueuedMutation under dir, guarded by an
// flock-based lock so two client processes sharing a cache directory
// never interleave a write.
type Store struct {
	dir string
}

// New creates a Store rooted at dir. An empty dir resolves to the
// platform cache directory (XDG_CACHE_HOME, else os.UserCacheDir, else
// ~/.cache, else os.TempDir).
func New(dir string) *Store {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Store{dir: dir}
}

func defaultStateDir() string {
	if cacheDir := os.Getenv("XDG_CACHE_HOME"); cacheDir != "" {
		return filepath.Join(cacheDir, DefaultDirName)
	}
	if cacheDir, err := os.UserCacheDir(); err == nil && cacheDir != "" {
		return filepath.Join(cacheDir, DefaultDirName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".cache", DefaultDirName)
	}
	return filepath.Join(os.TempDir(), DefaultDirName)
}

// Dir returns the directory the Store writes under.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path() string     { return filepath.Join(s.dir, QueueFileName) }
func (s *Store) lockPath() string { return filepath.Join(s.dir, ".lock") }

type fileLock struct {
	flock *flock.Flock
}

// acquireLock returns nil, nil (fail-open) when the lock cannot be taken
// within LockTimeout, rather than blocking a caller indefinitely.
func (s *Store) acquireLock() (*fileLock, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}

	fl := flock.New(s.lockPath())
	done := make(chan struct{})
	var locked bool
	var lockErr error
	go func() {
		locked, lockErr = fl.TryLock()
		close(done)
	}()

	select {
	case <-done:
		if lockErr != nil {
			return nil, lockErr
		}
		if !locked {
			return nil, nil
		}
		return &fileLock{flock: fl}, nil
	case <-time.After(LockTimeout):
		return nil, nil
	}
}

func (fl *fileLock) release() error {
	if fl == nil || fl.flock == nil {
		return nil
	}
	return fl.flock.Unlock()
}

// Load implements engine.QueuePersister. A missing file yields an empty
// queue, not an error.
func (s *Store) Load() ([]engine.QueuedMutation, error) {
	lock, err := s.acquireLock()
	if err != nil {
		return nil, err
	}
	if lock != nil {
		defer func() { _ = lock.release() }()
	}
	return s.loadUnsafe()
}

func (s *Store) loadUnsafe() ([]engine.QueuedMutation, error) {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var queued []engine.QueuedMutation
	if err := yaml.Unmarshal(data, &queued); err != nil {
		// Corrupted file: behave as if empty rather than blocking startup.
		return nil, nil
	}
	return queued, nil
}

// Save implements engine.QueuePersister, rewriting the file atomically.
func (s *Store) Save(queued []engine.QueuedMutation) error {
	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.release() }()
	}

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(queued)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.%d.tmp", s.path(), os.Getpid(), time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}
	if runtime.GOOS == "windows" {
		_ = os.Remove(s.path())
	}
	if err := os.Rename(tmpPath, s.path()); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Clear removes the queue file, discarding any persisted backlog.
func (s *Store) Clear() error {
	lock, err := s.acquireLock()
	if err != nil {
		return err
	}
	if lock != nil {
		defer func() { _ = lock.release() }()
	}
	err = os.Remove(s.path())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
