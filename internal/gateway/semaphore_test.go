package gateway

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSemaphorePoolBoundsConcurrencyPerSession(t *testing.T) {
	p := newSemaphorePool()
	var inFlight, maxObserved int32

	done := make(chan struct{})
	for i := 0; i < answerSemaphoreSize*3; i++ {
		go func() {
			p.Acquire("ABC123")
			defer func() {
				atomic.AddInt32(&inFlight, -1)
				p.Release("ABC123")
				done <- struct{}{}
			}()
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxObserved)
				if n <= old || atomic.CompareAndSwapInt32(&maxObserved, old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
		}()
	}

	for i := 0; i < answerSemaphoreSize*3; i++ {
		<-done
	}

	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxObserved)), answerSemaphoreSize)
}

func TestSemaphorePoolIsolatesDistinctSessions(t *testing.T) {
	p := newSemaphorePool()
	// Filling one session's pool must not block another session's Acquire.
	for i := 0; i < answerSemaphoreSize; i++ {
		p.Acquire("SESSA1")
	}

	acquired := make(chan struct{})
	go func() {
		p.Acquire("SESSB2")
		acquired <- struct{}{}
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("Acquire for a different session blocked on an unrelated session's full pool")
	}
}
