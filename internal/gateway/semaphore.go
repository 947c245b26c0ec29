package gateway

import "sync"

// answerSemaphoreSize bounds concurrent submit_answer handlers per
// session; excess callers simply queue on the channel rather than being
// rejected.
const answerSemaphoreSize = 10

// semaphorePool lazily creates one buffered-channel semaphore per session
// code, shared by every submit_answer handler for that session.
type semaphorePool struct {
	mu    sync.Mutex
	pools map[string]chan struct{}
}

func newSemaphorePool() *semaphorePool {
	return &semaphorePool{pools: make(map[string]chan struct{})}
}

func (p *semaphorePool) get(code string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	sem, ok := p.pools[code]
	if !ok {
		sem = make(chan struct{}, answerSemaphoreSize)
		p.pools[code] = sem
	}
	return sem
}

// Acquire blocks until a slot is free for code.
func (p *semaphorePool) Acquire(code string) {
	p.get(code) <- struct{}{}
}

// Release frees a slot for code.
func (p *semaphorePool) Release(code string) {
	<-p.get(code)
}
