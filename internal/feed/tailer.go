// Package feed follows the push channel: a JSONL file of phase transition
// events appended by the campaign backend.
package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/npratt/pipedeck/internal/events"
)

const (
	// DefaultDebounce is the time to wait for rapid appends to settle.
	DefaultDebounce = 50 * time.Millisecond

	// maxLineSize caps a single buffered line (1MB).
	maxLineSize = 1 << 20

	warningInterval = 5 * time.Second
)

// Stats counts what the tailer has forwarded.
type Stats struct {
	Lines     uint64 `json:"lines"`
	Forwarded uint64 `json:"forwarded"`
	Skipped   uint64 `json:"skipped"`
	Malformed uint64 `json:"malformed"`
	Rejected  uint64 `json:"rejected"`
}

// PhaseApplier applies one phase transition and blocks until it has been
// applied or refused.
type PhaseApplier interface {
	ApplyPhaseEvent(ctx context.Context, ev *events.PhaseEvent) error
}

// Tailer reads newly appended lines from a JSONL file. Each phase event is
// handed to the applier, in file order and without loss, and then emitted
// to the router for display consumers. Lines that fail to parse become
// error.parse events.
type Tailer struct {
	path      string
	router    *events.Router
	applier   PhaseApplier
	logger    *slog.Logger
	debounce  time.Duration
	fromStart bool

	readMu  sync.Mutex
	offset  int64
	partial []byte

	running     atomic.Bool
	done        chan struct{}
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.Mutex
	lastWarning time.Time

	lines     atomic.Uint64
	forwarded atomic.Uint64
	skipped   atomic.Uint64
	malformed atomic.Uint64
	rejected  atomic.Uint64
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithFromStart replays lines already present when the tailer starts.
func WithFromStart(on bool) Option {
	return func(t *Tailer) { t.fromStart = on }
}

// WithApplier sets where phase events are applied. Reading waits while
// the applier is busy, so a burst is never dropped.
func WithApplier(a PhaseApplier) Option {
	return func(t *Tailer) { t.applier = a }
}

// WithDebounce overrides the read debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.debounce = d
		}
	}
}

// New creates a Tailer for path that emits into router.
func New(path string, router *events.Router, logger *slog.Logger, opts ...Option) *Tailer {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tailer{
		path:     path,
		router:   router,
		logger:   logger.With("component", "feed"),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Path returns the followed file.
func (t *Tailer) Path() string {
	return t.path
}

// Running returns whether the tailer is active.
func (t *Tailer) Running() bool {
	return t.running.Load()
}

// Stats returns line counters.
func (t *Tailer) Stats() Stats {
	return Stats{
		Lines:     t.lines.Load(),
		Forwarded: t.forwarded.Load(),
		Skipped:   t.skipped.Load(),
		Malformed: t.malformed.Load(),
		Rejected:  t.rejected.Load(),
	}
}

// runContext is the context of the current run, or Background before
// Start.
func (t *Tailer) runContext() context.Context {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// Start positions the tailer and begins following the file.
func (t *Tailer) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running.Load() {
		return fmt.Errorf("tailer already running")
	}

	if !t.fromStart {
		if info, err := os.Stat(t.path); err == nil {
			t.readMu.Lock()
			t.offset = info.Size()
			t.readMu.Unlock()
		}
	}

	t.ctx, t.cancel = context.WithCancel(ctx)
	t.done = make(chan struct{})
	t.running.Store(true)

	go t.runLoop()
	return nil
}

// Stop terminates the tailer and waits for it to exit.
func (t *Tailer) Stop() error {
	t.mu.Lock()
	if !t.running.Load() {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	t.cancel()
	<-t.done
	return nil
}

func (t *Tailer) runLoop() {
	defer func() {
		t.running.Store(false)
		close(t.done)
	}()

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		t.emitWarning(fmt.Sprintf("failed to create file watcher: %v", err))
		return
	}
	defer func() { _ = fsWatcher.Close() }()

	dir := filepath.Dir(t.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.emitWarning(fmt.Sprintf("failed to create directory %s: %v", dir, err))
	}
	if err := fsWatcher.Add(dir); err != nil {
		t.emitWarning(fmt.Sprintf("failed to watch directory %s: %v", dir, err))
		return
	}

	t.logger.Info("following push events", "path", t.path, "from_start", t.fromStart)

	if _, err := t.ReadNew(); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.emitWarning(fmt.Sprintf("initial read failed: %v", err))
	}

	var debounceTimer *time.Timer
	var debounceMu sync.Mutex

	triggerRead := func() {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(t.debounce, func() {
			if t.ctx.Err() != nil {
				return
			}
			if _, err := t.ReadNew(); err != nil && !errors.Is(err, os.ErrNotExist) {
				t.emitWarning(fmt.Sprintf("read failed: %v", err))
			}
		})
		debounceMu.Unlock()
	}

	target := filepath.Base(t.path)

	for {
		select {
		case <-t.ctx.Done():
			debounceMu.Lock()
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceMu.Unlock()
			return

		case event, ok := <-fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				t.rewind()
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				triggerRead()
			}

		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return
			}
			t.emitWarning(fmt.Sprintf("file watcher error: %v", err))
		}
	}
}

// rewind restarts from the top of a replaced file.
func (t *Tailer) rewind() {
	t.readMu.Lock()
	t.offset = 0
	t.partial = nil
	t.readMu.Unlock()
}

// ReadNew processes complete lines appended since the last read and
// returns how many events were forwarded. A trailing line without a
// newline is held until it is completed.
func (t *Tailer) ReadNew() (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	f, err := os.Open(t.path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if info.Size() < t.offset {
		t.logger.Info("push events file truncated, rewinding", "path", t.path)
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return 0, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return 0, err
	}
	data, err := io.ReadAll(io.LimitReader(f, info.Size()-t.offset))
	if err != nil {
		return 0, err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	t.partial = nil

	forwarded := 0
	for {
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		if t.handleLine(buf[:idx]) {
			forwarded++
		}
		buf = buf[idx+1:]
	}

	if len(buf) > 0 {
		if len(buf) > maxLineSize {
			t.logger.Warn("dropping oversized partial line", "bytes", len(buf))
			t.malformed.Add(1)
		} else {
			t.partial = append([]byte(nil), buf...)
		}
	}
	return forwarded, nil
}

func (t *Tailer) handleLine(line []byte) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return false
	}
	t.lines.Add(1)

	ev, err := events.ParseEvent(line)
	if err != nil {
		t.malformed.Add(1)
		t.logger.Warn("malformed push event", "error", err)
		t.emit(&events.ParseErrorEvent{
			BaseEvent: events.NewEvent(events.EventParseError, events.SourcePush),
			Line:      events.Truncate(string(line), 500),
			Error:     err.Error(),
		})
		return false
	}
	if ev == nil || !events.IsPhaseTransition(ev.Type()) {
		t.skipped.Add(1)
		return false
	}

	if t.applier != nil {
		pe, ok := ev.(*events.PhaseEvent)
		if !ok {
			t.skipped.Add(1)
			return false
		}
		if err := t.applier.ApplyPhaseEvent(t.runContext(), pe); err != nil {
			t.rejected.Add(1)
			t.logger.Warn("phase event rejected",
				"campaign_id", pe.CampaignID,
				"phase", pe.Phase,
				"event_type", pe.Type(),
				"error", err,
			)
			t.emit(&events.ErrorEvent{
				BaseEvent:  events.NewInternalEvent(events.EventError),
				Message:    fmt.Sprintf("phase event rejected: %v", err),
				Severity:   events.SeverityWarning,
				CampaignID: pe.CampaignID,
			})
			return false
		}
	}

	t.forwarded.Add(1)
	t.emit(ev)
	return true
}

func (t *Tailer) emit(ev events.Event) {
	if t.router != nil {
		t.router.Emit(ev)
	}
}

func (t *Tailer) emitWarning(msg string) {
	t.mu.Lock()
	now := time.Now()
	if now.Sub(t.lastWarning) < warningInterval {
		t.mu.Unlock()
		return
	}
	t.lastWarning = now
	t.mu.Unlock()

	t.logger.Warn(msg)
	t.emit(&events.ErrorEvent{
		BaseEvent: events.NewInternalEvent(events.EventError),
		Message:   msg,
		Severity:  events.SeverityWarning,
	})
}
