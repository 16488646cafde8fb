package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Sink consumes events from the router.
type Sink interface {
	Start(ctx context.Context, events <-chan Event) error
	Stop() error
}

// JournalRotation controls size-based rotation of the event journal.
// Zero values take lumberjack's defaults.
type JournalRotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// LogSink appends every event it receives to a JSON lines journal. The
// journal is what `pipedeck journal` reads back.
type LogSink struct {
	path     string
	rotation JournalRotation

	mu      sync.Mutex
	out     io.WriteCloser
	done    chan struct{}
	written atomic.Uint64
}

func NewLogSink(path string, rotation JournalRotation) *LogSink {
	return &LogSink{path: path, rotation: rotation}
}

// Start opens the journal and consumes events until ctx ends or events is
// closed. Events already buffered when ctx ends are still written.
func (s *LogSink) Start(ctx context.Context, events <-chan Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("journal already started")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create journal directory: %w", err)
	}

	s.out = &lumberjack.Logger{
		Filename:   s.path,
		MaxSize:    s.rotation.MaxSizeMB,
		MaxBackups: s.rotation.MaxBackups,
		MaxAge:     s.rotation.MaxAgeDays,
		Compress:   s.rotation.Compress,
	}
	s.done = make(chan struct{})
	go s.consume(ctx, events, json.NewEncoder(s.out), s.done)
	return nil
}

func (s *LogSink) consume(ctx context.Context, events <-chan Event, enc *json.Encoder, done chan struct{}) {
	defer close(done)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.append(enc, ev)
		case <-ctx.Done():
			for {
				select {
				case ev, ok := <-events:
					if !ok {
						return
					}
					s.append(enc, ev)
				default:
					return
				}
			}
		}
	}
}

func (s *LogSink) append(enc *json.Encoder, ev Event) {
	if err := enc.Encode(ev); err != nil {
		slog.Warn("journal write failed", "path", s.path, "event_type", ev.Type(), "error", err)
		return
	}
	s.written.Add(1)
}

// Stop waits for the consumer to finish and closes the journal. It is a
// no-op before Start.
func (s *LogSink) Stop() error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	err := s.out.Close()
	s.out = nil
	return err
}

func (s *LogSink) Path() string { return s.path }

// Written counts events successfully appended.
func (s *LogSink) Written() uint64 { return s.written.Load() }
