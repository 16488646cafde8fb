package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/npratt/pipedeck/internal/events"
)

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func journalLine(t *testing.T, ev events.Event) string {
	t.Helper()
	data, err := json.Marshal(ev)
	require.NoError(t, err)
	return string(data) + "\n"
}

func TestPrintJournalTail(t *testing.T) {
	ts := time.Date(2026, 3, 1, 8, 0, 0, 0, time.Local)
	path := filepath.Join(t.TempDir(), "journal.jsonl")

	var content strings.Builder
	for i, phase := range []string{"discovery", "dns_validation", "certificate"} {
		content.WriteString(journalLine(t, events.NewPhaseEvent(events.EventPhaseStarted, "c1", phase, ts.Add(time.Duration(i)*time.Minute))))
	}
	content.WriteString("\nnot json\n")
	require.NoError(t, os.WriteFile(path, []byte(content.String()), 0644))

	var out bytes.Buffer
	require.NoError(t, printJournalTail(&out, path, 2))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[08:02:00] c1: certificate started", lines[0])
	assert.Equal(t, "not json", lines[1])
}

func TestPrintJournalTail_Empty(t *testing.T) {
	dir := t.TempDir()

	var out bytes.Buffer
	require.NoError(t, printJournalTail(&out, filepath.Join(dir, "missing.jsonl"), 5))
	assert.Equal(t, "No events yet\n", out.String())

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	out.Reset()
	require.NoError(t, printJournalTail(&out, empty, 5))
	assert.Equal(t, "No events yet\n", out.String())
}

func TestFollowJournal(t *testing.T) {
	ts := time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local)
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	old := journalLine(t, events.NewPhaseEvent(events.EventPhaseStarted, "c1", "discovery", ts))
	require.NoError(t, os.WriteFile(path, []byte(old), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- followJournal(ctx, out, path, 10*time.Millisecond) }()

	// Let the follower reach the end of the existing content.
	time.Sleep(50 * time.Millisecond)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	line := journalLine(t, events.NewPhaseEvent(events.EventPhaseCompleted, "c1", "discovery", ts.Add(time.Minute)))
	// Split the write to exercise partial-line handling.
	_, err = f.WriteString(line[:10])
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	_, err = f.WriteString(line[10:])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[09:16:00] c1: discovery completed")
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.NotContains(t, out.String(), "discovery started")
}
