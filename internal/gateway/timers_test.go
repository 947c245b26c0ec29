package gateway

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerManagerFiresAfterDelay(t *testing.T) {
	m := newTimerManager()
	var fired int32

	m.Schedule(context.Background(), "ABC123", 0, 20*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
}

func TestTimerManagerCancelPreventsFiring(t *testing.T) {
	m := newTimerManager()
	var fired int32

	m.Schedule(context.Background(), "ABC123", 0, 30*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
	})
	m.Cancel("ABC123", 0)

	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
}

func TestScheduleReplacesAndCancelsStaleTimerForSameKey(t *testing.T) {
	m := newTimerManager()
	var staleFired, freshFired int32

	m.Schedule(context.Background(), "ABC123", 0, 30*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&staleFired, 1)
	})
	// Replace before the stale timer can fire; only the fresh one should run.
	m.Schedule(context.Background(), "ABC123", 0, 10*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&freshFired, 1)
	})

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&freshFired) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&staleFired))
}

func TestCancelSessionStopsEveryTimerForCode(t *testing.T) {
	m := newTimerManager()
	var fired int32

	m.Schedule(context.Background(), "ABC123", 0, 30*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
	})
	m.Schedule(context.Background(), "ABC123", 1, 30*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
	})
	m.Schedule(context.Background(), "OTHER1", 0, 30*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt32(&fired, 1)
	})

	m.CancelSession("ABC123")

	time.Sleep(80 * time.Millisecond)
	// Only the unrelated session's timer should have fired.
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}
