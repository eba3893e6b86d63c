// Package model holds the wire and persistence data types shared across the
// pipeline: the Event a host application records, the QueuedEvent wrapper
// the EventQueue persists, and the aggregate QueueStats snapshot.
package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// MaxEventNameLength is the recommended upper bound on Event.Name, per the
// data model's "bounded (<=128 chars recommended)" guidance.
const MaxEventNameLength = 128

// Event is an immutable analytics record produced by the host application.
// ID is generated at construction and is the event's identity for
// deduplication and retry accounting.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Timestamp time.Time         `json:"timestamp"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewEvent constructs an Event with a freshly generated ID and the current
// UTC timestamp. metadata is copied so later caller-side mutation of the map
// does not affect the stored event.
func NewEvent(name, userID, sessionID string, metadata map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now().UTC(),
		UserID:    userID,
		SessionID: sessionID,
		Metadata:  cloneMetadata(metadata),
	}
}

// Validate reports whether e has a usable Name: non-empty and no longer
// than MaxEventNameLength.
func (e Event) Validate() error {
	if e.Name == "" {
		return errors.New("model: event name must not be empty")
	}
	if len(e.Name) > MaxEventNameLength {
		return errors.New("model: event name exceeds MaxEventNameLength")
	}
	return nil
}

func cloneMetadata(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// QueuedEvent wraps an Event with delivery metadata tracked by the
// EventQueue. QueuedEvents are created exactly once per Event and mutated
// only by the EventQueue's retry accounting.
type QueuedEvent struct {
	Event         Event      `json:"event"`
	QueuedAt      time.Time  `json:"queued_at"`
	RetryCount    uint32     `json:"retry_count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// NewQueuedEvent wraps an Event for insertion into the EventQueue.
func NewQueuedEvent(event Event, now time.Time) QueuedEvent {
	return QueuedEvent{
		Event:    event,
		QueuedAt: now,
	}
}

// BatchPayload is the wire shape for a multi-event delivery request, per
// spec §6.1: a batch of two or more events is wrapped under "events" rather
// than sent as a bare array.
type BatchPayload struct {
	Events []Event `json:"events"`
}

// QueueStats is a point-in-time snapshot of an EventQueue.
type QueueStats struct {
	Total           int     `json:"total"`
	Retriable       int     `json:"retriable"`
	Expired         int     `json:"expired"`
	OldestAgeSecond float64 `json:"oldest_age_seconds"`
	TotalSizeBytes  int64   `json:"total_size_bytes"`
}
