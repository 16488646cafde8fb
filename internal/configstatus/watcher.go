package configstatus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/npratt/pipedeck/internal/events"
)

const (
	// DefaultDebounce lets a burst of writes settle into one reload.
	DefaultDebounce = 100 * time.Millisecond

	// warningInterval rate-limits warnings emitted to the router.
	warningInterval = 5 * time.Second
)

// Watcher keeps a Cache in sync with a status file on disk. See
// ParseStatusFile for the format.
type Watcher struct {
	path     string
	cache    *Cache
	router   *events.Router // may be nil
	logger   *slog.Logger
	debounce time.Duration

	mu          sync.Mutex
	cancel      context.CancelFunc
	done        chan struct{}
	lastWarning time.Time
}

func NewWatcher(path string, cache *Cache, router *events.Router, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		cache:    cache,
		router:   router,
		logger:   logger.With("component", "configstatus", "path", path),
		debounce: DefaultDebounce,
	}
}

// SetDebounce overrides the reload delay. Call it before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	if d > 0 {
		w.debounce = d
	}
}

func (w *Watcher) Path() string { return w.path }

// Start loads the file once and then reloads it on every change until
// ctx ends or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return errors.New("watcher already running")
	}

	ctx, w.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	w.done = done
	go func() {
		defer func() {
			w.mu.Lock()
			w.done, w.cancel = nil, nil
			w.mu.Unlock()
			close(done)
		}()
		w.watch(ctx)
	}()
	return nil
}

// Stop ends the watch loop and waits for it. Stopping an idle watcher is a
// no-op.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}

func (w *Watcher) watch(ctx context.Context) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.warn("create file watcher", err)
		return
	}
	defer func() { _ = fsw.Close() }()

	// The directory is watched, not the file: atomic replacement by rename
	// would drop a watch on the file itself.
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.warn("create status directory", err)
	}
	if err := fsw.Add(dir); err != nil {
		w.warn("watch status directory", err)
		return
	}
	w.logger.Info("watching status file")

	w.reloadAndWarn("initial load")

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(w.debounce)
			}

		case <-timer.C:
			w.reloadAndWarn("reload")

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.warn("file watcher", err)
		}
	}
}

// reloadAndWarn reloads the file. A missing file is not an error: the
// backend may not have written it yet.
func (w *Watcher) reloadAndWarn(op string) {
	if err := w.Reload(); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.warn(op, err)
	}
}

// Reload reads the file into the cache and emits config.changed for each
// campaign whose statuses differ from before.
func (w *Watcher) Reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	all, err := ParseStatusFile(data, w.logger)
	if err != nil {
		return err
	}

	changed := w.cache.Replace(all)
	if len(changed) == 0 {
		return nil
	}
	w.logger.Debug("status file reloaded", "campaigns", len(all), "changed", len(changed))

	if w.router == nil {
		return nil
	}
	now := time.Now()
	for _, id := range changed {
		w.router.Emit(&events.ConfigChangedEvent{
			BaseEvent:  events.BaseEvent{EventType: events.EventConfigChanged, Time: now, Src: events.SourceFeed},
			CampaignID: id,
		})
	}
	return nil
}

func (w *Watcher) warn(op string, err error) {
	w.mu.Lock()
	now := time.Now()
	if now.Sub(w.lastWarning) < warningInterval {
		w.mu.Unlock()
		w.logger.Debug("status watcher warning suppressed", "op", op, "error", err)
		return
	}
	w.lastWarning = now
	w.mu.Unlock()

	w.logger.Warn("status watcher", "op", op, "error", err)
	if w.router != nil {
		w.router.Emit(&events.ErrorEvent{
			BaseEvent: events.BaseEvent{EventType: events.EventError, Time: now, Src: events.SourceInternal},
			Message:   fmt.Sprintf("status file %s: %v", op, err),
			Severity:  events.SeverityWarning,
		})
	}
}
