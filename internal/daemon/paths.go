package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/npratt/pipedeck/internal/config"
)

// DaemonInfo is the discovery record a serve process leaves in
// .pipedeck/daemon.json so clients started anywhere in the project can
// reach it.
type DaemonInfo struct {
	SocketPath  string    `json:"socket_path"`
	PIDPath     string    `json:"pid_path"`
	LogPath     string    `json:"log_path"`
	JournalPath string    `json:"journal_path,omitempty"`
	StartTime   time.Time `json:"start_time"`
	PID         int       `json:"pid"`
}

const daemonInfoFile = "daemon.json"

// A directory holding any of these is a project root.
var projectMarkers = []string{".git", config.ProjectConfigDir}

// ResolvePaths anchors every relative path at basePath, or at the working
// directory when basePath is empty. An empty journal stays empty.
func ResolvePaths(paths config.PathsConfig, basePath string) (config.PathsConfig, error) {
	if basePath == "" {
		wd, err := os.Getwd()
		if err != nil {
			return paths, fmt.Errorf("get working directory: %w", err)
		}
		basePath = wd
	}

	for _, p := range []*string{&paths.Log, &paths.Journal, &paths.Socket, &paths.PID} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(basePath, *p)
		}
	}
	return paths, nil
}

func isProjectRoot(dir string) bool {
	for _, marker := range projectMarkers {
		if fi, err := os.Stat(filepath.Join(dir, marker)); err == nil && fi.IsDir() {
			return true
		}
	}
	return false
}

// ancestors returns dir and each parent up to the filesystem root.
func ancestors(dir string) []string {
	var out []string
	for {
		out = append(out, dir)
		parent := filepath.Dir(dir)
		if parent == dir {
			return out
		}
		dir = parent
	}
}

// FindProjectRoot returns the nearest ancestor of startDir (inclusive)
// holding .git or .pipedeck. Without a marker the absolute startDir is
// returned. An empty startDir means the working directory.
func FindProjectRoot(startDir string) string {
	if startDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "."
		}
		startDir = wd
	}
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return startDir
	}

	for _, dir := range ancestors(abs) {
		if isProjectRoot(dir) {
			return dir
		}
	}
	return abs
}

// FindDaemonInfo reads daemon.json from the project root of startDir.
func FindDaemonInfo(startDir string) (*DaemonInfo, error) {
	path := DaemonInfoPath(FindProjectRoot(startDir))
	info, err := ReadDaemonInfo(path)
	if err != nil {
		return nil, fmt.Errorf("daemon info not found (checked %s)", path)
	}
	return info, nil
}

// WriteDaemonInfo replaces the discovery record at path. Readers never see
// a partial file.
func WriteDaemonInfo(path string, info *DaemonInfo) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal daemon info: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write daemon info: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write daemon info: %w", err)
	}
	return nil
}

// ReadDaemonInfo decodes the discovery record at path.
func ReadDaemonInfo(path string) (*DaemonInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read daemon info: %w", err)
	}

	info := new(DaemonInfo)
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("decode daemon info %s: %w", path, err)
	}
	return info, nil
}

// RemoveDaemonInfo deletes the discovery record. A missing file is fine.
func RemoveDaemonInfo(path string) error {
	err := os.Remove(path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove daemon info: %w", err)
}

// DaemonInfoPath returns <projectRoot>/.pipedeck/daemon.json.
func DaemonInfoPath(projectRoot string) string {
	return filepath.Join(projectRoot, config.ProjectConfigDir, daemonInfoFile)
}
