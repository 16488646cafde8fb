// Package daemon exposes the dispatcher over a Unix socket JSON-RPC API.
package daemon

import (
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/npratt/pipedeck/internal/config"
	"github.com/npratt/pipedeck/internal/controller"
	"github.com/npratt/pipedeck/internal/events"
	"github.com/npratt/pipedeck/internal/feed"
)

// Daemon serves RPC requests against a running controller.
type Daemon struct {
	config     *config.Config
	controller *controller.Controller
	feed       *feed.Tailer
	router     *events.Router
	sockPath   string
	startTime  time.Time
	logger     *slog.Logger

	listener net.Listener
	closing  chan struct{} // closed by Stop
	conns    sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once

	running bool
	mu      sync.RWMutex
}

// New creates a new Daemon for the given controller.
func New(cfg *config.Config, ctrl *controller.Controller, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		config:     cfg,
		controller: ctrl,
		sockPath:   cfg.Paths.Socket,
		logger:     logger.With("component", "daemon"),
		stopCh:     make(chan struct{}),
	}
}

// SetFeed attaches the push feed so status can report its counters.
func (d *Daemon) SetFeed(t *feed.Tailer) {
	d.mu.Lock()
	d.feed = t
	d.mu.Unlock()
}

// SetRouter attaches the event router so status can report delivery
// counters.
func (d *Daemon) SetRouter(r *events.Router) {
	d.mu.Lock()
	d.router = r
	d.mu.Unlock()
}

// Running returns whether the daemon is currently running.
func (d *Daemon) Running() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.running
}

// Controller returns the underlying controller.
func (d *Daemon) Controller() *controller.Controller {
	return d.controller
}

// StartTime returns when the daemon was started.
func (d *Daemon) StartTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startTime
}

// SocketPath returns the Unix socket path.
func (d *Daemon) SocketPath() string {
	return d.sockPath
}

// StopRequested is closed when a client asks the daemon to stop.
func (d *Daemon) StopRequested() <-chan struct{} {
	return d.stopCh
}

func (d *Daemon) requestStop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}
