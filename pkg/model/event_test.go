package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEvent_GeneratesIdentity(t *testing.T) {
	e1 := NewEvent("purchase", "user-1", "session-1", map[string]string{"sku": "abc"})
	e2 := NewEvent("purchase", "user-1", "session-1", map[string]string{"sku": "abc"})

	require.NotEmpty(t, e1.ID)
	require.NotEqual(t, e1.ID, e2.ID, "each event must get a unique identity")
	require.WithinDuration(t, time.Now().UTC(), e1.Timestamp, time.Second)
}

func TestNewEvent_ClonesMetadata(t *testing.T) {
	meta := map[string]string{"k": "v"}
	e := NewEvent("name", "", "", meta)
	meta["k"] = "mutated"

	require.Equal(t, "v", e.Metadata["k"], "event metadata must not alias the caller's map")
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
	}{
		{"valid", Event{Name: "click"}, false},
		{"empty name", Event{Name: ""}, true},
		{"name too long", Event{Name: string(make([]byte, MaxEventNameLength+1))}, true},
		{"name at limit", Event{Name: string(make([]byte, MaxEventNameLength))}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEvent_WireJSON_UsesSnakeCase(t *testing.T) {
	e := Event{
		ID:        "evt-1",
		Name:      "signup",
		Timestamp: time.Date(2025, 7, 13, 12, 0, 0, 0, time.UTC),
		UserID:    "u-1",
		SessionID: "s-1",
		Metadata:  map[string]string{"k": "v"},
	}
	data, err := json.Marshal(e)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "user_id")
	require.Contains(t, raw, "session_id")
	require.Equal(t, "2025-07-13T12:00:00Z", raw["timestamp"])
}

func TestBatchPayload_WireShape(t *testing.T) {
	payload := BatchPayload{Events: []Event{
		{ID: "a", Name: "a"},
		{ID: "b", Name: "b"},
	}}
	data, err := json.Marshal(payload)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	events, ok := raw["events"].([]any)
	require.True(t, ok)
	require.Len(t, events, 2)
}
