package queue

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxardolabs/luxanalytics-go/internal/clock"
	agenterrors "github.com/luxardolabs/luxanalytics-go/internal/errors"
	"github.com/luxardolabs/luxanalytics-go/internal/keystore"
	"github.com/luxardolabs/luxanalytics-go/pkg/model"
)

func newTestQueue(t *testing.T, maxHard int, strategy agenterrors.OverflowStrategy, c clock.Clock) *EventQueue {
	t.Helper()
	q, err := New(context.Background(), maxHard, strategy, c, NewMemoryBlobStore(), keystore.NewMemoryKeyStore())
	require.NoError(t, err)
	return q
}

func evt(name string) model.Event {
	return model.NewEvent(name, "", "", nil)
}

func TestEnqueue_AppendsInOrder(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	q.Enqueue(context.Background(), evt("b"))
	q.Enqueue(context.Background(), evt("c"))

	batch := q.TakeBatch(10, 5)
	require.Len(t, batch, 3)
	require.Equal(t, "a", batch[0].Event.Name)
	require.Equal(t, "b", batch[1].Event.Name)
	require.Equal(t, "c", batch[2].Event.Name)
}

func TestEnqueue_AtHardLimitMinusOneSucceeds(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 5, agenterrors.DropOldest, c)

	for i := 0; i < 4; i++ {
		res := q.Enqueue(context.Background(), evt("e"))
		require.Zero(t, res.DroppedCount)
	}
	require.Equal(t, 4, q.Len())
}

func TestEnqueue_DropOldest(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	for i := 0; i < 10; i++ {
		q.Enqueue(context.Background(), evt("e"))
	}
	require.Equal(t, 10, q.Len())

	res := q.Enqueue(context.Background(), evt("e11"))
	require.Equal(t, 2, res.DroppedCount)
	require.Equal(t, agenterrors.DropOldest, res.DropStrategy)
	require.Equal(t, 9, q.Len())
}

func TestEnqueue_DropOldest_AfterEleventh_MatchesWorkedCheckpoint(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	var lastResult EnqueueResult
	for i := 1; i <= 11; i++ {
		lastResult = q.Enqueue(context.Background(), evt(strconv.Itoa(i)))
	}

	require.Equal(t, 2, lastResult.DroppedCount)
	require.Equal(t, agenterrors.DropOldest, lastResult.DropStrategy)

	batch := q.TakeBatch(10, 5)
	require.Equal(t, "3", batch[0].Event.Name)
	require.Equal(t, "11", batch[len(batch)-1].Event.Name)
}

func TestEnqueue_DropOldest_FifteenEvents_NeverExceedsHardLimit(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	for i := 1; i <= 15; i++ {
		q.Enqueue(context.Background(), evt(strconv.Itoa(i)))
		require.LessOrEqual(t, q.Len(), 10)
	}

	batch := q.TakeBatch(10, 5)
	require.Equal(t, "15", batch[len(batch)-1].Event.Name)
}

func TestEnqueue_DropNewest(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 2, agenterrors.DropNewest, c)

	q.Enqueue(context.Background(), evt("a"))
	q.Enqueue(context.Background(), evt("b"))
	res := q.Enqueue(context.Background(), evt("c"))

	require.Equal(t, 1, res.DroppedCount)
	require.Equal(t, agenterrors.DropNewest, res.DropStrategy)
	require.Equal(t, 2, q.Len())
}

func TestEnqueue_DropAll(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 2, agenterrors.DropAll, c)

	q.Enqueue(context.Background(), evt("a"))
	q.Enqueue(context.Background(), evt("b"))
	res := q.Enqueue(context.Background(), evt("c"))

	require.Equal(t, 2, res.DroppedCount)
	require.Equal(t, agenterrors.DropAll, res.DropStrategy)
	require.Equal(t, 1, q.Len())
}

func TestSweepExpired(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("x"))
	c.Advance(2 * time.Second)

	expired := q.SweepExpired(context.Background(), time.Second)
	require.Len(t, expired, 1)
	require.Equal(t, "x", expired[0].Event.Name)
	require.Zero(t, q.Len())
}

func TestSweepExpired_BoundaryJustInsideTTLIsLive(t *testing.T) {
	c := clock.NewFrozen(time.Unix(100, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("x"))
	c.Advance(999 * time.Millisecond)

	expired := q.SweepExpired(context.Background(), time.Second)
	require.Empty(t, expired)
	require.Equal(t, 1, q.Len())
}

func TestTakeBatch_LargerThanQueueReturnsFullQueue(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	q.Enqueue(context.Background(), evt("b"))

	batch := q.TakeBatch(50, 5)
	require.Len(t, batch, 2)
}

func TestTakeBatch_SkipsIneligibleWithoutReordering(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	q.Enqueue(context.Background(), evt("b"))

	first := q.TakeBatch(10, 5)
	ids := []string{first[0].Event.ID}
	q.CommitOutcome(context.Background(), ids, false, 5)

	// "a" now has retry_count=1 and last_attempt_at=now; its backoff delay
	// is ~2s, so immediately after the failed attempt only "b" is eligible.
	batch := q.TakeBatch(10, 5)
	require.Len(t, batch, 1)
	require.Equal(t, "b", batch[0].Event.Name)
}

func TestCommitOutcome_Success_RemovesFromQueue(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	batch := q.TakeBatch(10, 5)

	result := q.CommitOutcome(context.Background(), []string{batch[0].Event.ID}, true, 5)
	require.Len(t, result.Sent, 1)
	require.Zero(t, q.Len())
}

func TestCommitOutcome_Failure_IncrementsRetryCount(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	batch := q.TakeBatch(10, 5)

	result := q.CommitOutcome(context.Background(), []string{batch[0].Event.ID}, false, 5)
	require.Len(t, result.Retried, 1)
	require.Equal(t, uint32(1), result.Retried[0].RetryCount)
	require.Equal(t, 1, q.Len())
}

func TestCommitOutcome_MaxRetriesDropsEvent(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))

	for i := 0; i < 3; i++ {
		batch := q.TakeBatch(10, 3)
		require.Len(t, batch, 1)
		q.CommitOutcome(context.Background(), []string{batch[0].Event.ID}, false, 3)
		c.Advance(10 * time.Minute)
	}

	require.Zero(t, q.Len())
}

func TestRetryCount_NeverExceedsMaxRetryAttempts(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)
	q.Enqueue(context.Background(), evt("a"))

	const maxRetries = 5
	for i := 0; i < maxRetries+2; i++ {
		batch := q.TakeBatch(10, maxRetries)
		if len(batch) == 0 {
			break
		}
		result := q.CommitOutcome(context.Background(), []string{batch[0].Event.ID}, false, maxRetries)
		for _, r := range result.Retried {
			require.Less(t, r.RetryCount, uint32(maxRetries))
		}
		c.Advance(10 * time.Minute)
	}
}

func TestClear_EmptiesQueue(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	q.Enqueue(context.Background(), evt("b"))

	cleared := q.Clear(context.Background())
	require.Len(t, cleared, 2)
	require.Zero(t, q.Len())
}

func TestStats_ReflectsQueueContents(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	q := newTestQueue(t, 10, agenterrors.DropOldest, c)

	q.Enqueue(context.Background(), evt("a"))
	c.Advance(2 * time.Second)

	stats := q.Stats(5, time.Second)
	require.Equal(t, 1, stats.Total)
	require.Equal(t, 1, stats.Expired)
	require.Equal(t, 1, stats.Retriable)
	require.InDelta(t, 2.0, stats.OldestAgeSecond, 0.01)
}

func TestPersistence_RoundTripsAcrossReload(t *testing.T) {
	c := clock.NewFrozen(time.Unix(0, 0))
	blobs := NewMemoryBlobStore()
	ks := keystore.NewMemoryKeyStore()

	q1, err := New(context.Background(), 10, agenterrors.DropOldest, c, blobs, ks)
	require.NoError(t, err)
	q1.Enqueue(context.Background(), evt("a"))

	q2, err := New(context.Background(), 10, agenterrors.DropOldest, c, blobs, ks)
	require.NoError(t, err)
	require.Equal(t, 1, q2.Len())
}
