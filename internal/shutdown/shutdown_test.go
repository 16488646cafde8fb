package shutdown

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"
)

func useSignal(t *testing.T, sig os.Signal) {
	t.Helper()
	old := Signals
	Signals = []os.Signal{sig}
	t.Cleanup(func() { Signals = old })
}

func TestRunnerReturns(t *testing.T) {
	want := errors.New("boom")
	err := RunWithGracefulShutdown(context.Background(), nil, time.Second,
		func(ctx context.Context) error { return want },
		nil,
	)
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunWithGracefulShutdown(ctx, nil, time.Second,
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		nil,
	)
	if err != nil {
		t.Errorf("err = %v, want nil", err)
	}
}

func TestSignalTriggersShutdown(t *testing.T) {
	useSignal(t, syscall.SIGUSR1)

	started := make(chan struct{})
	shutdownCalled := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunWithGracefulShutdown(context.Background(), nil, time.Second,
			func(ctx context.Context) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			},
			func(ctx context.Context) error {
				close(shutdownCalled)
				return nil
			},
		)
	}()

	<-started
	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("err = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	select {
	case <-shutdownCalled:
	default:
		t.Error("shutdown func was not called")
	}
}

func TestShutdownTimeout(t *testing.T) {
	useSignal(t, syscall.SIGUSR2)

	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- RunWithGracefulShutdown(context.Background(), nil, 50*time.Millisecond,
			func(ctx context.Context) error {
				close(started)
				<-release
				return nil
			},
			nil,
		)
	}()

	<-started
	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR2); err != nil {
		t.Fatalf("kill: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("err = %v, want nil after timeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout was not honoured")
	}
}
