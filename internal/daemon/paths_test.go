package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/npratt/pipedeck/internal/config"
)

func TestResolvePaths(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name  string
		paths config.PathsConfig
		want  config.PathsConfig
	}{
		{
			name: "relative",
			paths: config.PathsConfig{
				Log:     ".pipedeck/pipedeck.log",
				Journal: ".pipedeck/events.jsonl",
				Socket:  ".pipedeck/pipedeck.sock",
				PID:     ".pipedeck/pipedeck.pid",
			},
			want: config.PathsConfig{
				Log:     filepath.Join(tmp, ".pipedeck/pipedeck.log"),
				Journal: filepath.Join(tmp, ".pipedeck/events.jsonl"),
				Socket:  filepath.Join(tmp, ".pipedeck/pipedeck.sock"),
				PID:     filepath.Join(tmp, ".pipedeck/pipedeck.pid"),
			},
		},
		{
			name: "absolute kept",
			paths: config.PathsConfig{
				Log:    "/abs/pipedeck.log",
				Socket: "/abs/pipedeck.sock",
				PID:    "/abs/pipedeck.pid",
			},
			want: config.PathsConfig{
				Log:    "/abs/pipedeck.log",
				Socket: "/abs/pipedeck.sock",
				PID:    "/abs/pipedeck.pid",
			},
		},
		{
			name: "mixed with journal disabled",
			paths: config.PathsConfig{
				Log:    "/abs/pipedeck.log",
				Socket: "rel/pipedeck.sock",
				PID:    "rel/pipedeck.pid",
			},
			want: config.PathsConfig{
				Log:    "/abs/pipedeck.log",
				Socket: filepath.Join(tmp, "rel/pipedeck.sock"),
				PID:    filepath.Join(tmp, "rel/pipedeck.pid"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePaths(tt.paths, tmp)
			if err != nil {
				t.Fatalf("ResolvePaths() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ResolvePaths() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	for _, marker := range []string{".git", ".pipedeck"} {
		t.Run(marker, func(t *testing.T) {
			tmp := t.TempDir()
			if err := os.Mkdir(filepath.Join(tmp, marker), 0755); err != nil {
				t.Fatalf("create %s: %v", marker, err)
			}
			sub := filepath.Join(tmp, "a", "b")
			if err := os.MkdirAll(sub, 0755); err != nil {
				t.Fatalf("create subdir: %v", err)
			}

			if root := FindProjectRoot(sub); root != tmp {
				t.Errorf("FindProjectRoot(sub) = %q, want %q", root, tmp)
			}
			if root := FindProjectRoot(tmp); root != tmp {
				t.Errorf("FindProjectRoot(root) = %q, want %q", root, tmp)
			}
		})
	}
}

func TestFindProjectRoot_NoMarker(t *testing.T) {
	tmp := t.TempDir()
	sub := filepath.Join(tmp, "x")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// Without a marker anywhere up to / the start dir is returned. A
	// marker above the temp dir would break this, so only check that the
	// result is an ancestor-or-self.
	root := FindProjectRoot(sub)
	if !strings.HasPrefix(sub, root) {
		t.Errorf("FindProjectRoot(%q) = %q, not an ancestor", sub, root)
	}
}

func TestWriteReadDaemonInfo(t *testing.T) {
	tmp := t.TempDir()
	infoPath := filepath.Join(tmp, "nested", "daemon.json")

	info := &DaemonInfo{
		SocketPath:  "/p/pipedeck.sock",
		PIDPath:     "/p/pipedeck.pid",
		LogPath:     "/p/pipedeck.log",
		JournalPath: "/p/events.jsonl",
		StartTime:   time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC),
		PID:         12345,
	}
	if err := WriteDaemonInfo(infoPath, info); err != nil {
		t.Fatalf("WriteDaemonInfo() error: %v", err)
	}

	got, err := ReadDaemonInfo(infoPath)
	if err != nil {
		t.Fatalf("ReadDaemonInfo() error: %v", err)
	}
	if !got.StartTime.Equal(info.StartTime) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, info.StartTime)
	}
	got.StartTime = info.StartTime
	if *got != *info {
		t.Errorf("ReadDaemonInfo() = %+v, want %+v", got, info)
	}

	if err := RemoveDaemonInfo(infoPath); err != nil {
		t.Fatalf("RemoveDaemonInfo() error: %v", err)
	}
	if _, err := os.Stat(infoPath); !os.IsNotExist(err) {
		t.Error("daemon.json should be removed")
	}
	if err := RemoveDaemonInfo(infoPath); err != nil {
		t.Errorf("RemoveDaemonInfo() on missing file: %v", err)
	}
}

func TestReadDaemonInfo_Errors(t *testing.T) {
	if _, err := ReadDaemonInfo("/nonexistent/daemon.json"); err == nil {
		t.Error("expected error for nonexistent file")
	}

	bad := filepath.Join(t.TempDir(), "daemon.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadDaemonInfo(bad); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestFindDaemonInfo(t *testing.T) {
	tmp := t.TempDir()
	sub := filepath.Join(tmp, "src")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.Mkdir(filepath.Join(tmp, ".git"), 0755); err != nil {
		t.Fatalf("mkdir .git: %v", err)
	}

	if _, err := FindDaemonInfo(sub); err == nil {
		t.Error("expected error before daemon.json exists")
	}

	want := &DaemonInfo{SocketPath: filepath.Join(tmp, ".pipedeck", "pipedeck.sock"), PID: 42}
	if err := WriteDaemonInfo(DaemonInfoPath(tmp), want); err != nil {
		t.Fatalf("WriteDaemonInfo() error: %v", err)
	}

	got, err := FindDaemonInfo(sub)
	if err != nil {
		t.Fatalf("FindDaemonInfo() error: %v", err)
	}
	if got.SocketPath != want.SocketPath || got.PID != want.PID {
		t.Errorf("FindDaemonInfo() = %+v, want %+v", got, want)
	}
}

func TestDaemonInfoPath(t *testing.T) {
	if got := DaemonInfoPath("/project"); got != "/project/.pipedeck/daemon.json" {
		t.Errorf("DaemonInfoPath() = %q", got)
	}
}
