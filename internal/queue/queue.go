// Package queue implements the durable, ordered, bounded event queue: the
// single-writer FIFO that sits between Pipeline.track and Transport.send,
// enforcing overflow and TTL discipline and tracking retry eligibility.
package queue

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/luxardolabs/luxanalytics-go/internal/clock"
	"github.com/luxardolabs/luxanalytics-go/internal/codec"
	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/keystore"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

// EnqueueResult reports what happened to the queue as a result of an
// Enqueue call, so the caller (Pipeline) can emit the right notifications.
// DroppedCount mirrors the events_dropped(count, reason) notification shape:
// the spec reports a count, not the dropped events themselves.
type EnqueueResult struct {
	DroppedCount int
	DropStrategy agenterrors.OverflowStrategy
}

// CommitResult reports the outcome of CommitOutcome.
type CommitResult struct {
	Sent              []model.QueuedEvent
	Retried           []model.QueuedEvent
	DroppedMaxRetries []model.QueuedEvent
}

// EventQueue is a single-writer, durable FIFO of QueuedEvents. All exported
// methods are safe for concurrent use; mutation is serialized by mu.
type EventQueue struct {
	mu sync.Mutex

	events []model.QueuedEvent

	maxQueueHard     int
	overflowStrategy agenterrors.OverflowStrategy

	clock     clock.Clock
	blobStore BlobStore
	keyStore  keystore.KeyStore

	diagnostics *agenterrors.Collector

	encryptionDegraded bool
}

// Option configures an EventQueue at construction.
type Option func(*EventQueue)

// WithDiagnostics routes swallowed persistence/crypto errors to c.
func WithDiagnostics(c *agenterrors.Collector) Option {
	return func(q *EventQueue) { q.diagnostics = c }
}

// New constructs an EventQueue backed by blobStore and keyStore, loading any
// previously persisted events.
func New(ctx context.Context, maxQueueHard int, overflowStrategy agenterrors.OverflowStrategy, c clock.Clock, blobStore BlobStore, keyStore keystore.KeyStore, opts ...Option) (*EventQueue, error) {
	if c == nil {
		c = clock.RealClock{}
	}
	q := &EventQueue{
		maxQueueHard:     maxQueueHard,
		overflowStrategy: overflowStrategy,
		clock:            c,
		blobStore:        blobStore,
		keyStore:         keyStore,
	}
	for _, opt := range opts {
		opt(q)
	}

	if err := q.load(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *EventQueue) report(code agenterrors.Code, component, message string) {
	if q.diagnostics == nil {
		return
	}
	q.diagnostics.Report(agenterrors.Diagnostic{
		Code:      code,
		Message:   message,
		Component: component,
		Timestamp: q.clock.Now(),
	})
}

func (q *EventQueue) load(ctx context.Context) error {
	data, err := q.blobStore.Load()
	if err != nil {
		return agenterrors.ErrPersistenceFailed
	}
	if len(data) == 0 {
		return nil
	}

	key, keyErr := q.keyStore.GetOrCreate(ctx)
	if keyErr != nil {
		q.encryptionDegraded = true
		var legacy []model.QueuedEvent
		if err := json.Unmarshal(data, &legacy); err == nil {
			q.events = legacy
			return nil
		}
		q.report(agenterrors.CodeKeyStoreUnavailable, "queue", "key store unavailable on load")
		return nil
	}

	events, legacy, err := codec.Decode(data, key)
	if err != nil {
		q.report(agenterrors.CodeDecryptionFailed, "queue", "failed to decode persisted queue")
		return nil
	}
	q.events = events
	if legacy {
		q.persistLocked(ctx)
	}
	return nil
}

// persistLocked encodes and writes the current queue contents. Callers must
// hold mu. On KeyStore unavailability it degrades to plaintext persistence
// and records a diagnostic rather than losing data.
func (q *EventQueue) persistLocked(ctx context.Context) {
	key, err := q.keyStore.GetOrCreate(ctx)
	if err != nil {
		q.encryptionDegraded = true
		q.report(agenterrors.CodeKeyStoreUnavailable, "queue", "persisting queue unencrypted")
		data, marshalErr := json.Marshal(q.events)
		if marshalErr != nil {
			q.report(agenterrors.CodePersistenceFailed, "queue", "failed to marshal queue for plaintext fallback")
			return
		}
		if err := q.blobStore.Save(data); err != nil {
			q.report(agenterrors.CodePersistenceFailed, "queue", "failed to persist plaintext queue")
		}
		return
	}

	q.encryptionDegraded = false
	blob, err := codec.Encode(q.events, key)
	if err != nil {
		q.report(agenterrors.CodeEncryptionFailed, "queue", "failed to encrypt queue")
		return
	}
	if err := q.blobStore.Save(blob); err != nil {
		q.report(agenterrors.CodePersistenceFailed, "queue", "failed to persist encrypted queue")
	}
}

// Enqueue appends event, applying the overflow policy first if the queue is
// at max_queue_hard.
func (q *EventQueue) Enqueue(ctx context.Context, event model.Event) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result EnqueueResult

	if len(q.events) >= q.maxQueueHard {
		switch q.overflowStrategy {
		case agenterrors.DropNewest:
			result.DroppedCount = 1
			result.DropStrategy = agenterrors.DropNewest
			return result

		case agenterrors.DropAll:
			result.DroppedCount = len(q.events)
			result.DropStrategy = agenterrors.DropAll
			q.events = nil

		default: // DropOldest, and the fallback for an unrecognized strategy.
			n := int(math.Ceil(float64(len(q.events)) * 0.2))
			if n < 1 {
				n = 1
			}
			result.DroppedCount = n
			result.DropStrategy = agenterrors.DropOldest
			q.events = q.events[n:]
		}
	}

	q.events = append(q.events, model.NewQueuedEvent(event, q.clock.Now()))
	q.persistLocked(ctx)
	return result
}

// SweepExpired removes events older than ttl, returning the removed events.
func (q *EventQueue) SweepExpired(ctx context.Context, ttl time.Duration) []model.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	live := q.events[:0:0]
	var expired []model.QueuedEvent
	for _, qe := range q.events {
		if now.Sub(qe.QueuedAt) > ttl {
			expired = append(expired, qe)
			continue
		}
		live = append(live, qe)
	}

	if len(expired) == 0 {
		return nil
	}

	q.events = live
	q.persistLocked(ctx)
	return expired
}

// TakeBatch returns up to limit head events currently eligible for a delivery
// attempt. Eligible events remain in the queue until CommitOutcome.
func (q *EventQueue) TakeBatch(limit int, maxRetries uint32) []model.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var batch []model.QueuedEvent
	for _, qe := range q.events {
		if len(batch) >= limit {
			break
		}
		if qe.RetryCount >= maxRetries {
			continue
		}
		if retryEligible(qe.Event.ID, qe.RetryCount, qe.LastAttemptAt, now) {
			batch = append(batch, qe)
		}
	}
	return batch
}

// CommitOutcome applies the result of a delivery attempt for batchIDs.
func (q *EventQueue) CommitOutcome(ctx context.Context, batchIDs []string, success bool, maxRetries uint32) CommitResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make(map[string]struct{}, len(batchIDs))
	for _, id := range batchIDs {
		ids[id] = struct{}{}
	}

	var result CommitResult
	now := q.clock.Now()
	remaining := q.events[:0:0]

	for _, qe := range q.events {
		if _, inBatch := ids[qe.Event.ID]; !inBatch {
			remaining = append(remaining, qe)
			continue
		}

		if success {
			result.Sent = append(result.Sent, qe)
			continue
		}

		qe.RetryCount++
		attempted := now
		qe.LastAttemptAt = &attempted

		if qe.RetryCount >= maxRetries {
			result.DroppedMaxRetries = append(result.DroppedMaxRetries, qe)
			continue
		}

		result.Retried = append(result.Retried, qe)
		remaining = append(remaining, qe)
	}

	q.events = remaining
	q.persistLocked(ctx)
	return result
}

// Stats returns a point-in-time snapshot of the queue. ttl is used only to
// report how many currently-held events have already aged past it but have
// not yet been removed by a SweepExpired call.
func (q *EventQueue) Stats(maxRetries uint32, ttl time.Duration) model.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	stats := model.QueueStats{Total: len(q.events)}

	var oldest time.Time
	for _, qe := range q.events {
		if qe.RetryCount < maxRetries && retryEligible(qe.Event.ID, qe.RetryCount, qe.LastAttemptAt, now) {
			stats.Retriable++
		}
		if now.Sub(qe.QueuedAt) > ttl {
			stats.Expired++
		}
		if oldest.IsZero() || qe.QueuedAt.Before(oldest) {
			oldest = qe.QueuedAt
		}
		raw, err := json.Marshal(qe)
		if err == nil {
			stats.TotalSizeBytes += int64(len(raw))
		}
	}
	if !oldest.IsZero() {
		stats.OldestAgeSecond = now.Sub(oldest).Seconds()
	}
	return stats
}

// Clear purges the queue and persists the empty state, returning whatever
// was cleared so the caller can notify observers.
func (q *EventQueue) Clear(ctx context.Context) []model.QueuedEvent {
	q.mu.Lock()
	defer q.mu.Unlock()

	cleared := q.events
	q.events = nil
	q.persistLocked(ctx)
	return cleared
}

// Len returns the current queue length.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// EncryptionDegraded reports whether the queue is currently persisting in
// plaintext because the KeyStore was unavailable on the last persist.
func (q *EventQueue) EncryptionDegraded() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.encryptionDegraded
}
