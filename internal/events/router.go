package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default channel buffer size for subscribers.
const DefaultBufferSize = 100

// ControllerBufferSize is the buffer of the dispatcher's refresh
// subscription. Phase transitions do not use the router to reach the
// dispatcher, so a full buffer only costs a redundant refresh.
const ControllerBufferSize = 1000

// dropLogEvery limits drop warnings to the first and then every Nth drop
// per subscriber.
const dropLogEvery = 100

type subscription struct {
	ch      chan Event
	accepts func(EventType) bool // nil accepts everything
	dropped uint64               // updated atomically
}

// RouterStats counts deliveries across all subscribers.
type RouterStats struct {
	Emitted     uint64 `json:"emitted"`
	Dropped     uint64 `json:"dropped"`
	Subscribers int    `json:"subscribers"`
}

// Router fans events out from producers (push feed, status watcher,
// dispatcher) to consumers (dispatcher, journal, watch view). Delivery
// never blocks the producer; a full subscriber loses the event.
type Router struct {
	mu         sync.RWMutex
	subs       map[<-chan Event]*subscription
	bufferSize int
	closed     bool

	emitted atomic.Uint64
	dropped atomic.Uint64
}

// NewRouter creates a router whose Subscribe channels hold bufferSize
// events. Non-positive sizes use DefaultBufferSize.
func NewRouter(bufferSize int) *Router {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Router{
		subs:       make(map[<-chan Event]*subscription),
		bufferSize: bufferSize,
	}
}

// Emit delivers event to every interested subscriber. It is safe for
// concurrent use and a no-op after Close.
func (r *Router) Emit(event Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}
	r.emitted.Add(1)

	t := event.Type()
	for _, sub := range r.subs {
		if sub.accepts != nil && !sub.accepts(t) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			r.dropped.Add(1)
			if n := atomic.AddUint64(&sub.dropped, 1); n == 1 || n%dropLogEvery == 0 {
				slog.Warn("event dropped: subscriber channel full",
					"event_type", t,
					"source", event.Source(),
					"campaign_id", GetCampaignID(event),
					"subscriber_drops", n,
				)
			}
		}
	}
}

// Subscribe returns a channel receiving every event. It is closed by
// Unsubscribe or Close.
func (r *Router) Subscribe() <-chan Event {
	return r.add(r.bufferSize, nil)
}

// SubscribeBuffered is Subscribe with an explicit buffer size.
func (r *Router) SubscribeBuffered(size int) <-chan Event {
	return r.add(size, nil)
}

// SubscribeTypes returns a channel receiving only the listed types.
func (r *Router) SubscribeTypes(size int, types ...EventType) <-chan Event {
	want := make(map[EventType]struct{}, len(types))
	for _, t := range types {
		want[t] = struct{}{}
	}
	return r.add(size, func(t EventType) bool {
		_, ok := want[t]
		return ok
	})
}

func (r *Router) add(size int, accepts func(EventType) bool) <-chan Event {
	if size <= 0 {
		size = r.bufferSize
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		ch := make(chan Event)
		close(ch)
		return ch
	}

	ch := make(chan Event, size)
	r.subs[ch] = &subscription{ch: ch, accepts: accepts}
	return ch
}

// Unsubscribe closes ch and stops delivery to it. Unknown or already
// removed channels are ignored.
func (r *Router) Unsubscribe(ch <-chan Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sub, ok := r.subs[ch]; ok {
		delete(r.subs, ch)
		close(sub.ch)
	}
}

// Close closes every subscriber channel. Later Emits are dropped silently
// and later subscriptions receive an already closed channel.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	for ch, sub := range r.subs {
		close(sub.ch)
		delete(r.subs, ch)
	}
}

// Stats returns delivery counters.
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	n := len(r.subs)
	r.mu.RUnlock()
	return RouterStats{
		Emitted:     r.emitted.Load(),
		Dropped:     r.dropped.Load(),
		Subscribers: n,
	}
}
