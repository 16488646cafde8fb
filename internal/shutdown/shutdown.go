// Package shutdown runs a long-lived component until it exits or the
// process is asked to stop.
package shutdown

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// DefaultTimeout bounds how long shutdown may take after a signal.
const DefaultTimeout = 10 * time.Second

// Signals are the signals that trigger a graceful shutdown.
var Signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// RunWithGracefulShutdown runs runner with a context that ends on the
// first of Signals or when ctx ends. After a stop is requested, onStop
// (if non-nil) runs and runner gets up to timeout to return; a runner
// that overstays is abandoned. context.Canceled from runner is not an
// error.
func RunWithGracefulShutdown(
	ctx context.Context,
	logger *slog.Logger,
	timeout time.Duration,
	runner func(ctx context.Context) error,
	onStop func(ctx context.Context) error,
) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, stopSignals := signal.NotifyContext(ctx, Signals...)
	defer stopSignals()

	result := make(chan error, 1)
	go func() { result <- runner(runCtx) }()

	select {
	case err := <-result:
		return ignoreCanceled(err)
	case <-runCtx.Done():
	}

	// Restore default handling so a second signal kills the process.
	stopSignals()
	if ctx.Err() == nil {
		logger.Info("shutdown signal received, stopping", "timeout", timeout)
	}

	deadline, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if onStop != nil {
		if err := onStop(deadline); err != nil {
			logger.Error("shutdown hook failed", "error", err)
		}
	}

	select {
	case err := <-result:
		if err = ignoreCanceled(err); err != nil {
			return err
		}
	case <-deadline.Done():
		logger.Warn("runner did not stop in time", "timeout", timeout)
	}
	logger.Info("shutdown complete")
	return nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
