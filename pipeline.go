package luxanalytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luxardolabs/luxanalytics-go/internal/breaker"
	"github.com/luxardolabs/luxanalytics-go/internal/clock"
	"github.com/luxardolabs/luxanalytics-go/internal/config"
	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/keystore"
	"github.com/luxardolabs/luxanalytics-go/internal/observability"
	"github.com/luxardolabs/luxanalytics-go/internal/queue"
	"github.com/luxardolabs/luxanalytics-go/internal/redact"
	"github.com/luxardolabs/luxanalytics-go/internal/transport"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

// State is the Pipeline's own lifecycle state, independent of the
// CircuitBreaker or queue state.
type State string

// Recognized Pipeline states.
const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateShutdown      State = "shutdown"
)

// Pipeline owns Configuration, the EventQueue, a per-endpoint
// CircuitBreaker, and an observer fan-out, and exposes the track/flush
// surface described by the external interfaces. A zero-value Pipeline is
// not usable; construct one with New.
type Pipeline struct {
	// identity guards state, userID, sessionID, and enabled: the fields a
	// concurrent caller may read or mutate outside of track/flush.
	identity  sync.Mutex
	state     State
	userID    string
	sessionID string
	enabled   bool

	cfg         config.Config
	queue       *queue.EventQueue
	breakers    *breaker.GlobalCircuitBreaker
	client      *transport.Client
	network     NetworkStatus
	context     ContextSource
	diagnostics *agenterrors.Collector
	metrics     *observability.Metrics
	clk         clock.Clock
	observers   *observerHub

	// pending* hold Option-supplied overrides until Initialize builds the
	// components that depend on them.
	pendingBlobStore queue.BlobStore
	pendingKeyStore  keystore.KeyStore
	pendingObservers []Observer

	// flushing serializes flush so two concurrent callers never double-send.
	flushing sync.Mutex

	autoFlushCancel context.CancelFunc
	autoFlushDone   chan struct{}
}

// Option configures a Pipeline at construction, before Initialize runs.
type Option func(*Pipeline)

// WithNetworkStatus overrides the default AlwaysOnline collaborator.
func WithNetworkStatus(n NetworkStatus) Option {
	return func(p *Pipeline) { p.network = n }
}

// WithContextSource overrides the default NoopContextSource collaborator.
func WithContextSource(c ContextSource) Option {
	return func(p *Pipeline) { p.context = c }
}

// WithBlobStore overrides the default in-memory queue blob store with a
// durable one, such as queue.FileBlobStore.
func WithBlobStore(b queue.BlobStore) Option {
	return func(p *Pipeline) { p.pendingBlobStore = b }
}

// WithKeyStore overrides the default in-memory AES key store, such as with
// keystore.FileKeyStore.
func WithKeyStore(k keystore.KeyStore) Option {
	return func(p *Pipeline) { p.pendingKeyStore = k }
}

// WithClock overrides the default wall clock, for deterministic tests.
func WithClock(c clock.Clock) Option {
	return func(p *Pipeline) { p.clk = c }
}

// WithObserver registers obs before Initialize starts the auto-flush timer,
// so it never misses an early notification.
func WithObserver(obs Observer) Option {
	return func(p *Pipeline) { p.pendingObservers = append(p.pendingObservers, obs) }
}

// New returns an uninitialized Pipeline. Call Initialize before use.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		state:   StateUninitialized,
		enabled: true,
		network: AlwaysOnline{},
		context: NoopContextSource{},
		clk:     clock.RealClock{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize validates cfg, builds the queue/transport/breaker substrate,
// and starts the auto-flush timer. A Pipeline may be initialized exactly
// once; a second call returns ErrAlreadyInitialized.
func (p *Pipeline) Initialize(ctx context.Context, cfg config.Config) error {
	p.identity.Lock()
	if p.state != StateUninitialized {
		p.identity.Unlock()
		return agenterrors.ErrAlreadyInitialized
	}
	p.identity.Unlock()

	if err := cfg.Validate(); err != nil {
		return err
	}

	p.cfg = cfg
	p.metrics = observability.NewMetrics()
	p.diagnostics = agenterrors.NewCollector(p.clk)
	p.observers = newObserverHub(p.metrics)
	for _, obs := range p.pendingObservers {
		p.observers.Register(obs)
	}

	blobStore := p.pendingBlobStore
	if blobStore == nil {
		blobStore = queue.NewMemoryBlobStore()
	}
	keyStore := p.pendingKeyStore
	if keyStore == nil {
		keyStore = keystore.NewMemoryKeyStore()
	}

	q, err := queue.New(ctx, cfg.MaxQueueHard, cfg.OverflowStrategy, p.clk, blobStore, keyStore, queue.WithDiagnostics(p.diagnostics))
	if err != nil {
		return err
	}
	p.queue = q

	p.breakers = breaker.NewGlobal(breaker.Params{Clock: p.clk})
	p.client = transport.NewClient(cfg, p.metrics)

	p.identity.Lock()
	p.state = StateInitialized
	p.identity.Unlock()

	p.startAutoFlush()
	return nil
}

func (p *Pipeline) startAutoFlush() {
	ctx, cancel := context.WithCancel(context.Background())
	p.autoFlushCancel = cancel
	p.autoFlushDone = make(chan struct{})

	go func() {
		defer close(p.autoFlushDone)
		ticker := time.NewTicker(p.cfg.AutoFlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Flush(ctx)
			}
		}
	}()
}

// Track merges ContextSource.Context() with metadata (metadata wins on key
// conflict), sanitizes the result, enqueues an Event stamped with the
// current user/session identity, and notifies EventQueued. If the queue
// crosses max_queue_soft it triggers an immediate background flush.
func (p *Pipeline) Track(ctx context.Context, name string, metadata map[string]string) error {
	p.identity.Lock()
	state := p.state
	enabled := p.enabled
	userID := p.userID
	sessionID := p.sessionID
	p.identity.Unlock()

	if state != StateInitialized {
		return agenterrors.ErrNotInitialized
	}
	if !enabled {
		return agenterrors.ErrAnalyticsDisabled
	}

	merged := make(map[string]string, len(metadata))
	for k, v := range p.context.Context() {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	sanitized := redact.SanitizeMap(merged)

	event := model.NewEvent(redact.Sanitize(name), userID, sessionID, sanitized)

	result := p.queue.Enqueue(ctx, event)
	if p.metrics != nil {
		p.metrics.EventsQueued.Inc()
	}
	if result.DroppedCount > 0 {
		p.reportOverflow(result)
		if p.metrics != nil {
			p.metrics.EventsDropped.WithLabelValues(string(result.DropStrategy)).Add(float64(result.DroppedCount))
		}
		p.observers.eventsDropped(result.DroppedCount, result.DropStrategy)
	}
	p.observers.eventQueued(event)
	p.updateGaugeMetrics()

	if p.queue.Len() >= p.cfg.MaxQueueSoft {
		go p.Flush(context.Background())
	}
	return nil
}

// updateGaugeMetrics refreshes the point-in-time gauges from the queue and
// the endpoint's CircuitBreaker. Called after every mutation so /metrics
// never lags more than one track/flush behind reality.
func (p *Pipeline) updateGaugeMetrics() {
	if p.metrics == nil {
		return
	}
	stats := p.queue.Stats(p.cfg.MaxRetryAttempts, p.cfg.EventTTL)
	p.metrics.QueueDepth.Set(float64(stats.Total))
	p.metrics.QueueRetriable.Set(float64(stats.Retriable))
	p.metrics.QueueExpired.Set(float64(stats.Expired))
	p.metrics.QueueBytes.Set(float64(stats.TotalSizeBytes))

	if p.queue.EncryptionDegraded() {
		p.metrics.EncryptionFallen.Set(1)
	} else {
		p.metrics.EncryptionFallen.Set(0)
	}

	if p.breakers != nil {
		state := p.breakers.For(p.cfg.EndpointURL).State()
		p.metrics.BreakerState.WithLabelValues(p.cfg.EndpointURL).Set(observability.BreakerStateValue(string(state)))
	}
}

func (p *Pipeline) reportOverflow(result queue.EnqueueResult) {
	p.diagnostics.Report(agenterrors.Diagnostic{
		Code:      agenterrors.CodeQueueOverflow,
		Message:   fmt.Sprintf("dropped %d events via %s", result.DroppedCount, result.DropStrategy),
		Component: "pipeline",
		Timestamp: p.clk.Now(),
	})
}

// Flush sweeps expired events, then delivers batches until the queue is
// drained or a batch fails, stopping on first failure to avoid amplifying
// load on a failing endpoint. It never returns an error to the caller;
// outcomes are reported via metrics and observers. Concurrent Flush calls
// never double-send: a second caller fast-returns while one is in flight.
func (p *Pipeline) Flush(ctx context.Context) {
	p.identity.Lock()
	state := p.state
	enabled := p.enabled
	p.identity.Unlock()

	if state != StateInitialized || !enabled {
		return
	}

	if !p.flushing.TryLock() {
		return
	}
	defer p.flushing.Unlock()

	start := p.clk.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.FlushDuration.Observe(p.clk.Now().Sub(start).Seconds())
		}
		p.updateGaugeMetrics()
	}()

	if expired := p.queue.SweepExpired(ctx, p.cfg.EventTTL); len(expired) > 0 {
		if p.metrics != nil {
			p.metrics.EventsExpired.Add(float64(len(expired)))
		}
		p.observers.eventsExpired(expired)
	}

	if !p.network.IsOnline() {
		return
	}

	cb := p.breakers.For(p.cfg.EndpointURL)

	for {
		if !cb.Allow() {
			return
		}

		batch := p.queue.TakeBatch(p.cfg.BatchSize, p.cfg.MaxRetryAttempts)
		if len(batch) == 0 {
			return
		}

		events := make([]model.Event, len(batch))
		ids := make([]string, len(batch))
		for i, qe := range batch {
			events[i] = qe.Event
			ids[i] = qe.Event.ID
		}

		err := p.client.Send(ctx, p.cfg.EndpointURL, events, p.cfg)
		success := err == nil

		if success {
			cb.RecordSuccess()
		} else {
			cb.RecordFailure()
		}

		result := p.queue.CommitOutcome(ctx, ids, success, p.cfg.MaxRetryAttempts)

		if len(result.Sent) > 0 {
			if p.metrics != nil {
				p.metrics.EventsSent.Add(float64(len(result.Sent)))
			}
			p.observers.eventsSent(result.Sent)
		}
		if len(result.Retried) > 0 {
			if p.metrics != nil {
				p.metrics.EventsFailed.Add(float64(len(result.Retried)))
			}
			p.observers.eventsFailed(result.Retried, errorKind(err))
		}
		if len(result.DroppedMaxRetries) > 0 {
			if p.metrics != nil {
				p.metrics.EventsDropped.WithLabelValues(string(DropReasonMaxRetries)).Add(float64(len(result.DroppedMaxRetries)))
			}
			p.observers.eventsDropped(len(result.DroppedMaxRetries), DropReasonMaxRetries)
		}

		if !success {
			return
		}
	}
}

func errorKind(err error) string {
	if err == nil {
		return ""
	}
	switch err.(type) {
	case *agenterrors.NetworkError:
		return "network"
	case *agenterrors.ServerError:
		return "server"
	default:
		return "unknown"
	}
}

// SetUser sets the user_id stamped onto subsequently tracked events.
func (p *Pipeline) SetUser(id string) {
	p.identity.Lock()
	defer p.identity.Unlock()
	p.userID = id
}

// SetSession sets the session_id stamped onto subsequently tracked events.
func (p *Pipeline) SetSession(id string) {
	p.identity.Lock()
	defer p.identity.Unlock()
	p.sessionID = id
}

// SetEnabled toggles analytics collection. While disabled, Track rejects
// with ErrAnalyticsDisabled and Flush is a no-op.
func (p *Pipeline) SetEnabled(enabled bool) {
	p.identity.Lock()
	defer p.identity.Unlock()
	p.enabled = enabled
}

// Stats returns a point-in-time snapshot of the EventQueue.
func (p *Pipeline) Stats() model.QueueStats {
	return p.queue.Stats(p.cfg.MaxRetryAttempts, p.cfg.EventTTL)
}

// Clear purges the queue without delivering it.
func (p *Pipeline) Clear(ctx context.Context) {
	p.queue.Clear(ctx)
}

// IsReady reports whether the Pipeline is initialized, satisfying
// health.ReadinessChecker.
func (p *Pipeline) IsReady() bool {
	p.identity.Lock()
	defer p.identity.Unlock()
	return p.state == StateInitialized
}

// Metrics returns the Pipeline's private Prometheus registry, for mounting
// under a health.Server or an embedding application's own /metrics handler.
func (p *Pipeline) Metrics() *observability.Metrics {
	return p.metrics
}

// Active satisfies health.DiagnosticsProvider.
func (p *Pipeline) Active() []agenterrors.Diagnostic {
	if p.diagnostics == nil {
		return nil
	}
	return p.diagnostics.Active()
}

// RegisterObserver adds obs to the notification fan-out after Initialize,
// returning an unregister function.
func (p *Pipeline) RegisterObserver(obs Observer) func() {
	return p.observers.Register(obs)
}

// OnMemoryPressure triggers an immediate flush in response to an external
// memory-pressure notification, without unloading the in-memory queue.
func (p *Pipeline) OnMemoryPressure() {
	go p.Flush(context.Background())
}

// Shutdown stops the auto-flush timer, performs one final flush attempt,
// and transitions the Pipeline to StateShutdown. Track on a shut down
// Pipeline returns ErrNotInitialized, and Flush is a no-op.
func (p *Pipeline) Shutdown(ctx context.Context) {
	p.identity.Lock()
	if p.state != StateInitialized {
		p.identity.Unlock()
		return
	}
	p.identity.Unlock()

	if p.autoFlushCancel != nil {
		p.autoFlushCancel()
		<-p.autoFlushDone
	}
	p.Flush(ctx)

	p.identity.Lock()
	p.state = StateShutdown
	p.identity.Unlock()
}
