package queue

import (
	"fmt"
	"hash/fnv"
	"math"
	"time"
)

const maxBackoffSeconds = 300

// jitterFraction is the deterministic jitter window: +/-25%.
const jitterFraction = 0.25

// retryDelay computes the per-event backoff for retryCount attempts already
// made: delay = min(2^retryCount, 300) seconds, jittered by a deterministic
// +/-25% derived from the event's identity so the same event/attempt pair
// always yields the same delay within a process.
func retryDelay(eventID string, retryCount uint32) time.Duration {
	raw := math.Pow(2, float64(retryCount))
	if raw > maxBackoffSeconds {
		raw = maxBackoffSeconds
	}

	u := deterministicUnit(eventID, retryCount)
	x := (u * 2.0) - 1.0 // map [0,1) -> [-1,1)
	factor := 1.0 + x*jitterFraction

	jittered := raw * factor
	if jittered < 0 {
		jittered = 0
	}

	return time.Duration(jittered * float64(time.Second))
}

// deterministicUnit maps (eventID, retryCount) to a value in [0, 1).
func deterministicUnit(eventID string, retryCount uint32) float64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(eventID))
	_, _ = h.Write([]byte(":"))
	_, _ = h.Write([]byte(fmt.Sprintf("%d", retryCount)))
	sum := h.Sum64()
	return float64(sum%1_000_000) / 1_000_000.0
}

// retryEligible reports whether a QueuedEvent with the given retryCount and
// lastAttemptAt is eligible for inclusion in the next batch as of now.
func retryEligible(eventID string, retryCount uint32, lastAttemptAt *time.Time, now time.Time) bool {
	if lastAttemptAt == nil {
		return true
	}
	delay := retryDelay(eventID, retryCount)
	return now.Sub(*lastAttemptAt) >= delay
}
