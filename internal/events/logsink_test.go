package events

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readJournal(t *testing.T, path string) []Event {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var out []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		ev, err := ParseEvent(sc.Bytes())
		require.NoError(t, err, "line %q", sc.Text())
		out = append(out, ev)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestLogSink_WritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "journal.jsonl")
	sink := NewLogSink(path, JournalRotation{MaxSizeMB: 1})
	assert.Equal(t, path, sink.Path())

	ch := make(chan Event, 4)
	require.NoError(t, sink.Start(context.Background(), ch))
	assert.Error(t, sink.Start(context.Background(), ch), "double start")

	ts := time.Now()
	ch <- NewPhaseEvent(EventPhaseStarted, "c1", "discovery", ts)
	ch <- NewPhaseEvent(EventPhaseCompleted, "c1", "discovery", ts.Add(time.Second))
	close(ch)
	require.NoError(t, sink.Stop())

	got := readJournal(t, path)
	require.Len(t, got, 2)
	assert.Equal(t, EventPhaseStarted, got[0].Type())
	assert.Equal(t, EventPhaseCompleted, got[1].Type())
	assert.Equal(t, "c1", GetCampaignID(got[1]))
	assert.EqualValues(t, 2, sink.Written())
}

func TestLogSink_DrainsBufferedOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	sink := NewLogSink(path, JournalRotation{})

	ch := make(chan Event, 8)
	for i := 0; i < 5; i++ {
		ch <- NewPhaseEvent(EventPhaseStarted, "c1", "discovery", time.Now())
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, sink.Start(ctx, ch))
	require.NoError(t, sink.Stop())

	assert.Len(t, readJournal(t, path), 5)
}

func TestLogSink_StopWithoutStart(t *testing.T) {
	sink := NewLogSink(filepath.Join(t.TempDir(), "j.jsonl"), JournalRotation{})
	assert.NoError(t, sink.Stop())
}
