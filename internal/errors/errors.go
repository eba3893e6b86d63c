// Package errors defines the pipeline's typed error taxonomy (spec §7) and
// a Collector that deduplicates and TTL-expires swallowed failures so
// they remain visible to the host application without ever propagating out
// of track() or flush().
package errors

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxardolabs/luxanalytics-go/internal/clock"
)

// Lifecycle and gating errors. These are the only errors track() ever
// returns directly; Initialize also returns a *ConfigError for an invalid
// Configuration and ErrPersistenceFailed when the persisted queue cannot be
// read. Everything else is swallowed and reported via the Collector and
// observers.
var (
	ErrAlreadyInitialized = errors.New("luxanalytics: pipeline already initialized")
	ErrNotInitialized     = errors.New("luxanalytics: pipeline not initialized")
	ErrAnalyticsDisabled  = errors.New("luxanalytics: analytics disabled")
)

// Cryptographic substrate errors.
var (
	ErrKeyStoreUnavailable = errors.New("luxanalytics: key store unavailable")
	ErrEncryptionFailed    = errors.New("luxanalytics: encryption failed")
	ErrDecryptionFailed    = errors.New("luxanalytics: decryption failed")
)

// ErrPersistenceFailed is returned when a queue blob write or read fails.
var ErrPersistenceFailed = errors.New("luxanalytics: persistence failed")

// ErrCircuitOpen names the rejection of a delivery attempt by an open
// circuit breaker. Flush does not return it: when the breaker rejects, Flush
// stops without sending.
var ErrCircuitOpen = errors.New("luxanalytics: circuit open")

// ConfigError reports an invalid Configuration, including a parsed DSN.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("luxanalytics: invalid configuration: %s", e.Reason)
}

// NewConfigError builds a ConfigError with the given reason.
func NewConfigError(reason string) *ConfigError {
	return &ConfigError{Reason: reason}
}

// NetworkError wraps a transport-level failure observed before any HTTP
// status was read (connection refused, timeout, TLS failure, ...).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("luxanalytics: network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError wraps err as a NetworkError.
func NewNetworkError(err error) *NetworkError {
	return &NetworkError{Err: err}
}

// ServerError reports an HTTP response outside the [200, 300) success range.
type ServerError struct {
	Status      int
	BodyPreview string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("luxanalytics: server responded %d: %s", e.Status, e.BodyPreview)
}

// NewServerError builds a ServerError.
func NewServerError(status int, bodyPreview string) *ServerError {
	return &ServerError{Status: status, BodyPreview: bodyPreview}
}

// OverflowStrategy names the queue overflow policy that triggered a drop,
// reused by QueueOverflow and by observer notifications.
type OverflowStrategy string

// Recognized overflow strategies.
const (
	DropOldest OverflowStrategy = "drop-oldest"
	DropNewest OverflowStrategy = "drop-newest"
	DropAll    OverflowStrategy = "drop-all"
)

// QueueOverflow is a reporting-only error: it is never returned to a
// caller, only passed to observers and the ErrorCollector.
type QueueOverflow struct {
	Strategy OverflowStrategy
	Count    int
}

func (e *QueueOverflow) Error() string {
	return fmt.Sprintf("luxanalytics: queue overflow (%s, dropped %d)", e.Strategy, e.Count)
}

// Code identifies the kind of a swallowed pipeline error for diagnostics,
// independent of its Go error type.
type Code string

// Diagnostic codes recorded by the ErrorCollector.
const (
	CodeKeyStoreUnavailable Code = "KEY_STORE_UNAVAILABLE"
	CodeEncryptionFailed    Code = "ENCRYPTION_FAILED"
	CodeDecryptionFailed    Code = "DECRYPTION_FAILED"
	CodePersistenceFailed   Code = "PERSISTENCE_FAILED"
	CodeNetwork             Code = "NETWORK"
	CodeServer              Code = "SERVER"
	CodeCircuitOpen         Code = "CIRCUIT_OPEN"
	CodeQueueOverflow       Code = "QUEUE_OVERFLOW"
)

// defaultTTL is the auto-expiry duration for errors not re-reported.
const defaultTTL = 5 * time.Minute

// Diagnostic is a typed pipeline error with the component that raised it and
// when it was last reported.
type Diagnostic struct {
	Code      Code
	Message   string
	Component string
	Timestamp time.Time
	Err       error
}

// entry wraps a Diagnostic with its last-reported time for expiry tracking.
type entry struct {
	diag       Diagnostic
	lastReport time.Time
}

// Collector is a thread-safe store for active, swallowed pipeline errors.
// Entries are keyed by Code+Component and auto-expire after 5 minutes if
// not re-reported, mirroring the host agent's ErrorCollector.
type Collector struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

// NewCollector creates a Collector using the given clock.
func NewCollector(c clock.Clock) *Collector {
	if c == nil {
		c = clock.RealClock{}
	}
	return &Collector{
		clock:   c,
		entries: make(map[string]entry),
	}
}

func key(code Code, component string) string {
	return string(code) + "|" + component
}

// Report stores or refreshes a diagnostic. The dedup key is Code+Component.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(d.Code, d.Component)
	c.entries[k] = entry{
		diag:       d,
		lastReport: c.clock.Now(),
	}
}

// Active returns all diagnostics reported within the TTL window, pruning
// expired entries as a side effect.
func (c *Collector) Active() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	result := make([]Diagnostic, 0, len(c.entries))
	for k, e := range c.entries {
		if now.Sub(e.lastReport) > defaultTTL {
			delete(c.entries, k)
			continue
		}
		result = append(result, e.diag)
	}
	return result
}

// Clear removes all tracked diagnostics.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
