package config

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/edgesync/edgesync/query"
)

// Watcher reloads timeout and sort order from a config file as it
// changes, without requiring a process restart. Identity fields
// (base_url, credential_storage, profiles) are intentionally not
// touched by a watched reload — changing where credentials go or which
// host is trusted takes a restart.
type Watcher struct {
	mu      sync.RWMutex
	timeout time.Duration
	sort    query.SortSpec

	path    string
	watcher *fsnotify.Watcher
	log     *slog.Logger
	done    chan struct{}
}

// Watch starts watching path for changes, seeding Timeout/Sort from cfg.
// Call Close to stop watching.
func Watch(path string, cfg *Config, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		timeout: cfg.Timeout,
		sort:    cfg.Sort,
		path:    path,
		watcher: fw,
		log:     logger,
		done:    make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path) //nolint:gosec // path is the watcher's own configured file
	if err != nil {
		w.log.Warn("config reload failed", "path", w.path, "error", err)
		return
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		w.log.Warn("config reload skipped malformed file", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	if fc.Timeout != "" {
		if d, err := time.ParseDuration(fc.Timeout); err == nil {
			w.timeout = d
		}
	}
	if len(fc.Sort) > 0 {
		w.sort = fc.Sort
	}
	w.mu.Unlock()
	w.log.Info("config reloaded", "path", w.path)
}

// Timeout returns the most recently observed timeout value.
func (w *Watcher) Timeout() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.timeout
}

// Sort returns the most recently observed sort spec.
func (w *Watcher) Sort() query.SortSpec {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.sort
}

// Close stops watching the config file.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
