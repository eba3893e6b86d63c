package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func sampleEvents() []model.QueuedEvent {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := model.NewEvent("app_open", "user_1", "session_1", map[string]string{"v": "1"})
	return []model.QueuedEvent{model.NewQueuedEvent(e, now)}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	key := testKey()
	events := sampleEvents()

	blob, err := Encode(events, key)
	require.NoError(t, err)

	decoded, legacy, err := Decode(blob, key)
	require.NoError(t, err)
	require.False(t, legacy)
	require.Equal(t, events, decoded)
}

func TestDecode_RejectsMutatedCiphertext(t *testing.T) {
	key := testKey()
	blob, err := Encode(sampleEvents(), key)
	require.NoError(t, err)

	mutated := append([]byte(nil), blob...)
	mutated[len(mutated)-1] ^= 0xFF

	_, _, err = Decode(mutated, key)
	require.Error(t, err)
}

func TestDecode_RejectsWrongKey(t *testing.T) {
	key := testKey()
	blob, err := Encode(sampleEvents(), key)
	require.NoError(t, err)

	var wrongKey [32]byte
	wrongKey[0] = 0xFF

	_, _, err = Decode(blob, wrongKey)
	require.Error(t, err)
}

func TestDecode_FallsBackToLegacyPlaintextJSON(t *testing.T) {
	key := testKey()
	events := sampleEvents()

	plain, err := json.Marshal(events)
	require.NoError(t, err)

	decoded, legacy, err := Decode(plain, key)
	require.NoError(t, err)
	require.True(t, legacy)
	require.Equal(t, events, decoded)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not json and too short"), testKey())
	require.Error(t, err)
}

func TestEncode_EmptyEventSlice(t *testing.T) {
	key := testKey()
	blob, err := Encode(nil, key)
	require.NoError(t, err)

	decoded, legacy, err := Decode(blob, key)
	require.NoError(t, err)
	require.False(t, legacy)
	require.Empty(t, decoded)
}
