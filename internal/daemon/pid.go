package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("daemon already running")

// InstanceLock is the flock held on the PID file for the life of a serve
// process. One project runs at most one dispatcher.
type InstanceLock struct {
	path string
	file *os.File
}

// AcquireLock locks path and records the current PID in it. It fails with
// ErrAlreadyRunning when another process holds the lock.
func AcquireLock(path string) (*InstanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create pid directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open pid file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) {
			owner := ReadPID(path)
			return nil, fmt.Errorf("%w: pid %d holds %s", ErrAlreadyRunning, owner, path)
		}
		return nil, fmt.Errorf("lock pid file: %w", err)
	}

	l := &InstanceLock{path: path, file: f}
	if err := l.record(os.Getpid()); err != nil {
		l.release()
		return nil, err
	}
	return l, nil
}

func (l *InstanceLock) record(pid int) error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate pid file: %w", err)
	}
	if _, err := l.file.WriteAt([]byte(strconv.Itoa(pid)+"\n"), 0); err != nil {
		return fmt.Errorf("write pid: %w", err)
	}
	return l.file.Sync()
}

// Path returns the locked file's path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release unlocks and deletes the PID file. It is safe to call twice.
func (l *InstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	l.release()
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove pid file: %w", err)
	}
	return nil
}

func (l *InstanceLock) release() {
	_ = syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	_ = l.file.Close()
	l.file = nil
}

// ReadPID returns the PID recorded at path, or 0 when the file is missing
// or malformed.
func ReadPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid < 0 {
		return 0
	}
	return pid
}

// processAlive sends signal 0 to pid.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// CleanupStale removes a PID file and socket left behind by a dispatcher
// that exited without releasing them. It reports whether anything was
// removed; nothing is touched while the recorded process is alive.
func CleanupStale(pidPath, socketPath string) bool {
	if processAlive(ReadPID(pidPath)) {
		return false
	}
	removed := false
	for _, p := range []string{pidPath, socketPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err == nil {
			removed = true
		}
	}
	return removed
}
