package luxanalytics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/observability"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

// Observer receives a best-effort, non-blocking stream of queue and
// delivery transitions. Methods are called from whichever goroutine
// performed the transition; implementations must not block and must not
// assume exactly-once delivery across process restarts.
type Observer interface {
	EventQueued(event model.Event)
	EventsSent(events []model.QueuedEvent)
	EventsFailed(events []model.QueuedEvent, errorKind string)
	EventsDropped(count int, reason agenterrors.OverflowStrategy)
	EventsExpired(events []model.QueuedEvent)
}

// Reasons an events_dropped notification names beyond the queue overflow
// strategies in agenterrors.OverflowStrategy.
const (
	DropReasonMaxRetries agenterrors.OverflowStrategy = "max-retries"

	// DropReasonTTL corresponds to the "ttl" events_dropped reason recognized
	// cross-language. This implementation reports TTL expiry exclusively
	// through Observer.EventsExpired, which carries the expired events
	// themselves, so DropReasonTTL is never passed to EventsDropped here. It
	// stays defined for callers that switch on OverflowStrategy values
	// received from other client SDKs in the same pipeline.
	DropReasonTTL agenterrors.OverflowStrategy = "ttl"
)

const observerBufferSize = 64

type notification func(Observer)

// observerHub fans a notification out to every registered Observer over a
// bounded, per-observer buffered channel. A slow or stuck observer's
// buffer fills and further notifications to it are dropped rather than
// blocking the pipeline's critical section, per the broadcast design in
// the concurrency model.
type observerHub struct {
	mu      sync.Mutex
	next    int
	workers map[int]chan notification

	dropped prometheus.Counter
}

func newObserverHub(metrics *observability.Metrics) *observerHub {
	h := &observerHub{workers: make(map[int]chan notification)}
	if metrics != nil {
		h.dropped = metrics.ObserverNotificationsDropped
	}
	return h
}

// Register adds obs to the fan-out set and returns an unregister function.
func (h *observerHub) Register(obs Observer) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	ch := make(chan notification, observerBufferSize)
	h.workers[id] = ch

	go func() {
		for fn := range ch {
			fn(obs)
		}
	}()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if c, ok := h.workers[id]; ok {
			delete(h.workers, id)
			close(c)
		}
	}
}

// broadcast delivers fn to every registered observer, dropping it for any
// observer whose buffer is currently full.
func (h *observerHub) broadcast(fn notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.workers {
		select {
		case ch <- fn:
		default:
			if h.dropped != nil {
				h.dropped.Inc()
			}
		}
	}
}

func (h *observerHub) eventQueued(event model.Event) {
	h.broadcast(func(o Observer) { o.EventQueued(event) })
}

func (h *observerHub) eventsSent(events []model.QueuedEvent) {
	if len(events) == 0 {
		return
	}
	h.broadcast(func(o Observer) { o.EventsSent(events) })
}

func (h *observerHub) eventsFailed(events []model.QueuedEvent, errorKind string) {
	if len(events) == 0 {
		return
	}
	h.broadcast(func(o Observer) { o.EventsFailed(events, errorKind) })
}

func (h *observerHub) eventsDropped(count int, reason agenterrors.OverflowStrategy) {
	if count == 0 {
		return
	}
	h.broadcast(func(o Observer) { o.EventsDropped(count, reason) })
}

func (h *observerHub) eventsExpired(events []model.QueuedEvent) {
	if len(events) == 0 {
		return
	}
	h.broadcast(func(o Observer) { o.EventsExpired(events) })
}
