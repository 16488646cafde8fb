package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

const (
	maxMessageSize    = 1 << 20
	readTimeout       = 30 * time.Second
	socketPermissions = 0600
)

// Start listens on the Unix socket and serves requests until ctx is
// cancelled or a client calls stop. In-flight requests finish before it
// returns.
func (d *Daemon) Start(ctx context.Context) error {
	if d.Running() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.sockPath), 0755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	// A socket left by a crashed process would make Listen fail.
	_ = os.Remove(d.sockPath)

	listener, err := net.Listen("unix", d.sockPath)
	if err != nil {
		return fmt.Errorf("listen on socket: %w", err)
	}
	if err := os.Chmod(d.sockPath, socketPermissions); err != nil {
		_ = listener.Close()
		return fmt.Errorf("set socket permissions: %w", err)
	}

	closing := make(chan struct{})
	d.mu.Lock()
	d.listener = listener
	d.closing = closing
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	d.logger.Info("control socket listening", "socket", d.sockPath)

	serveCtx, cancel := context.WithCancel(ctx)
	acceptDone := make(chan struct{})
	go func() {
		defer close(acceptDone)
		d.acceptLoop(serveCtx, listener, closing)
	}()

	select {
	case <-ctx.Done():
	case <-d.stopCh:
		d.logger.Info("stop requested by client")
	}

	err = d.Stop()
	<-acceptDone
	d.conns.Wait()
	cancel()
	return err
}

// Stop closes the listener and removes the socket. Connections still
// waiting for a request are dropped; Start returns once in-flight requests
// complete.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running {
		return nil
	}
	d.running = false
	if d.closing != nil {
		close(d.closing)
		d.closing = nil
	}

	var err error
	if d.listener != nil {
		if cerr := d.listener.Close(); cerr != nil {
			err = fmt.Errorf("close listener: %w", cerr)
		}
		d.listener = nil
	}
	_ = os.Remove(d.sockPath)

	d.logger.Info("control socket closed")
	return err
}

func (d *Daemon) acceptLoop(ctx context.Context, listener net.Listener, closing <-chan struct{}) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || !d.Running() || errors.Is(err, net.ErrClosed) {
				return
			}
			d.logger.Warn("accept failed", "error", err)
			continue
		}

		d.conns.Add(1)
		go func() {
			defer d.conns.Done()
			d.handleConnection(ctx, conn, closing)
		}()
	}
}

// handleConnection serves exactly one request per connection.
func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn, closing <-chan struct{}) {
	defer func() { _ = conn.Close() }()

	if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		d.logger.Warn("set read deadline", "error", err)
		return
	}

	var req Request
	if err := d.readRequest(conn, closing, &req); err != nil {
		_ = json.NewEncoder(conn).Encode(Response{Error: fmt.Sprintf("decode error: %v", err)})
		return
	}
	enc := json.NewEncoder(conn)

	start := time.Now()
	resp := d.safeHandle(ctx, &req)
	resp.ID = req.ID
	d.logger.Debug("request handled",
		"method", req.Method,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", resp.Error,
	)

	if err := enc.Encode(resp); err != nil {
		d.logger.Debug("write response failed", "method", req.Method, "error", err)
	}
}

// readRequest decodes one request, giving up early when the server starts
// closing.
func (d *Daemon) readRequest(conn net.Conn, closing <-chan struct{}, req *Request) error {
	read := make(chan struct{})
	defer close(read)
	go func() {
		select {
		case <-closing:
			_ = conn.SetReadDeadline(time.Now())
		case <-read:
		}
	}()
	return json.NewDecoder(io.LimitReader(conn, maxMessageSize)).Decode(req)
}

// safeHandle turns a handler panic into an error response.
func (d *Daemon) safeHandle(ctx context.Context, req *Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panic", "method", req.Method, "panic", r)
			resp = Response{Error: fmt.Sprintf("internal error handling %s", req.Method)}
		}
	}()
	return d.handleRequest(ctx, req)
}
