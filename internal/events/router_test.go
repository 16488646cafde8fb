package events

import (
	"sync"
	"testing"
	"time"
)

func phaseEvent(t EventType, phase string) *PhaseEvent {
	return NewPhaseEvent(t, "camp-1", phase, time.Now())
}

func TestNewRouter(t *testing.T) {
	t.Run("default buffer size", func(t *testing.T) {
		r := NewRouter(0)
		if r.bufferSize != DefaultBufferSize {
			t.Errorf("expected buffer size %d, got %d", DefaultBufferSize, r.bufferSize)
		}
	})

	t.Run("negative buffer size uses default", func(t *testing.T) {
		r := NewRouter(-10)
		if r.bufferSize != DefaultBufferSize {
			t.Errorf("expected buffer size %d, got %d", DefaultBufferSize, r.bufferSize)
		}
	})
}

func TestRouterEmitSubscribe(t *testing.T) {
	t.Run("single subscriber receives event", func(t *testing.T) {
		r := NewRouter(10)
		defer r.Close()

		ch := r.Subscribe()
		r.Emit(phaseEvent(EventPhaseStarted, "discovery"))

		select {
		case received := <-ch:
			pe, ok := received.(*PhaseEvent)
			if !ok {
				t.Fatalf("expected *PhaseEvent, got %T", received)
			}
			if pe.Phase != "discovery" {
				t.Errorf("Phase = %q, want discovery", pe.Phase)
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for event")
		}
	})

	t.Run("multiple subscribers each receive all events", func(t *testing.T) {
		r := NewRouter(10)
		defer r.Close()

		ch1 := r.Subscribe()
		ch2 := r.Subscribe()

		r.Emit(phaseEvent(EventPhaseStarted, "discovery"))
		r.Emit(phaseEvent(EventPhaseCompleted, "discovery"))

		for _, ch := range []<-chan Event{ch1, ch2} {
			for i := 0; i < 2; i++ {
				select {
				case <-ch:
				case <-time.After(time.Second):
					t.Errorf("timeout waiting for event %d", i)
				}
			}
		}
	})
}

func TestRouterSubscribeTypes(t *testing.T) {
	r := NewRouter(10)
	defer r.Close()

	ch := r.SubscribeTypes(10, EventPhaseFailed)

	r.Emit(phaseEvent(EventPhaseStarted, "validation"))
	r.Emit(phaseEvent(EventPhaseFailed, "validation"))

	select {
	case ev := <-ch:
		if ev.Type() != EventPhaseFailed {
			t.Errorf("got %s, want %s", ev.Type(), EventPhaseFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for filtered event")
	}

	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event %s", ev.Type())
	default:
	}
}

func TestRouterDropsWhenFull(t *testing.T) {
	r := NewRouter(10)
	defer r.Close()

	ch := r.SubscribeBuffered(1)
	r.Emit(phaseEvent(EventPhaseStarted, "discovery"))
	r.Emit(phaseEvent(EventPhaseCompleted, "discovery"))

	if got := len(ch); got != 1 {
		t.Errorf("buffered = %d, want 1", got)
	}
}

func TestRouterUnsubscribe(t *testing.T) {
	r := NewRouter(10)
	defer r.Close()

	ch1 := r.Subscribe()
	ch2 := r.Subscribe()
	r.Unsubscribe(ch1)

	r.Emit(phaseEvent(EventPhaseStarted, "discovery"))

	if _, ok := <-ch1; ok {
		t.Error("ch1 should be closed after Unsubscribe")
	}
	select {
	case <-ch2:
	case <-time.After(time.Second):
		t.Error("ch2 should still receive events")
	}

	// Unsubscribing twice is harmless.
	r.Unsubscribe(ch1)
}

func TestRouterClose(t *testing.T) {
	r := NewRouter(10)
	ch := r.Subscribe()

	r.Close()
	r.Close()

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}

	r.Emit(phaseEvent(EventPhaseStarted, "discovery"))

	late := r.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

func TestRouterConcurrentEmit(t *testing.T) {
	r := NewRouter(10)
	defer r.Close()

	ch := r.SubscribeBuffered(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				r.Emit(phaseEvent(EventPhaseStarted, "discovery"))
			}
		}()
	}
	wg.Wait()

	if got := len(ch); got != 500 {
		t.Errorf("received %d events, want 500", got)
	}
}

func TestRouterStats(t *testing.T) {
	r := NewRouter(10)

	full := r.SubscribeBuffered(1)
	failures := r.SubscribeTypes(5, EventPhaseFailed)

	r.Emit(phaseEvent(EventPhaseStarted, "discovery"))
	r.Emit(phaseEvent(EventPhaseCompleted, "discovery"))
	r.Emit(phaseEvent(EventPhaseFailed, "validation"))

	st := r.Stats()
	if st.Emitted != 3 {
		t.Errorf("Emitted = %d, want 3", st.Emitted)
	}
	// The one-slot subscriber keeps the first event and loses the rest.
	if st.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", st.Dropped)
	}
	if st.Subscribers != 2 {
		t.Errorf("Subscribers = %d, want 2", st.Subscribers)
	}
	if got := len(failures); got != 1 {
		t.Errorf("filtered subscriber holds %d events, want 1", got)
	}

	r.Unsubscribe(full)
	if got := r.Stats().Subscribers; got != 1 {
		t.Errorf("Subscribers after Unsubscribe = %d, want 1", got)
	}

	r.Close()
	r.Emit(phaseEvent(EventPhaseStarted, "discovery"))
	if got := r.Stats().Emitted; got != 3 {
		t.Errorf("Emitted after Close = %d, want 3", got)
	}
}
