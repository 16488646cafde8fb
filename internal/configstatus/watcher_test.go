package configstatus

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeStatusFile(t *testing.T, path, content string) {
	t.Helper()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		t.Fatalf("write status file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename status file: %v", err)
	}
}

func waitForConfigChanged(t *testing.T, ch <-chan events.Event, campaignID string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if cc, ok := ev.(*events.ConfigChangedEvent); ok && cc.CampaignID == campaignID {
				return
			}
		case <-deadline:
			t.Fatalf("timeout waiting for config.changed for %s", campaignID)
		}
	}
}

func TestParseStatusFile(t *testing.T) {
	data := []byte(`{
		"c1": {"domain_generation": "completed", "dns_validation": "configured", "proxy_check": "configured"},
		"c2": {}
	}`)

	all, err := ParseStatusFile(data, discardLogger())
	if err != nil {
		t.Fatalf("ParseStatusFile: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d campaigns, want 2", len(all))
	}
	c1 := all["c1"]
	if c1[pipeline.PhaseDiscovery] != "completed" {
		t.Errorf("discovery = %q, want completed", c1[pipeline.PhaseDiscovery])
	}
	if c1[pipeline.PhaseValidation] != "configured" {
		t.Errorf("validation = %q, want configured", c1[pipeline.PhaseValidation])
	}
	if len(c1) != 2 {
		t.Errorf("unknown phase should be skipped, got %v", c1)
	}

	if _, err := ParseStatusFile([]byte(`[1,2]`), discardLogger()); err == nil {
		t.Error("expected error for non-object status file")
	}
}

func TestWatcher_StartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := NewWatcher(path, NewCache(), events.NewRouter(10), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !w.Running() {
		t.Error("expected Running() to be true after Start")
	}
	if err := w.Start(ctx); err == nil {
		t.Error("second Start should fail")
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if w.Running() {
		t.Error("expected Running() to be false after Stop")
	}
	if err := w.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestWatcher_InitialLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	writeStatusFile(t, path, `{"c1": {"discovery": "configured"}}`)

	router := events.NewRouter(10)
	defer router.Close()
	ch := router.SubscribeTypes(10, events.EventConfigChanged)

	cache := NewCache()
	w := NewWatcher(path, cache, router, discardLogger())
	w.SetDebounce(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer func() { _ = w.Stop() }()

	waitForConfigChanged(t, ch, "c1")
	if got := cache.Statuses("c1").Status(pipeline.PhaseDiscovery); got != StatusConfigured {
		t.Fatalf("after initial load discovery = %q, want configured", got)
	}

	writeStatusFile(t, path, `{"c1": {"discovery": "completed"}}`)

	waitForConfigChanged(t, ch, "c1")
	if got := cache.Statuses("c1").Status(pipeline.PhaseDiscovery); got != StatusCompleted {
		t.Errorf("after reload discovery = %q, want completed", got)
	}
}

func TestWatcher_ReloadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")
	w := NewWatcher(path, NewCache(), nil, discardLogger())

	if err := w.Reload(); !os.IsNotExist(err) {
		t.Errorf("Reload() err = %v, want not-exist", err)
	}
}
