// Package worker offloads CPU-bound work — signing, verification, batch
// verification — off a state machine's own event-processing goroutine onto
// a shared pool, while still guaranteeing that results reach any one
// submitting owner in the order they were submitted, which the PBFT
// sign-then-broadcast pipeline depends on.
package worker

import (
	"sync"

	"github.com/cuemby/murmesh/pkg/metrics"
)

// Pool is a fixed-size goroutine pool draining a shared job queue, the
// same stopCh/sync.WaitGroup shutdown shape used by this repository's
// other background loops.
type Pool struct {
	jobs   chan func()
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewPool starts n worker goroutines. A queue depth of 256 absorbs bursts
// from many lanes without making Submit block in the common case.
func NewPool(n int) *Pool {
	p := &Pool{
		jobs:   make(chan func(), 256),
		stopCh: make(chan struct{}),
	}
	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.loop()
	}
	return p
}

func (p *Pool) loop() {
	defer p.wg.Done()
	for {
		select {
		case job := <-p.jobs:
			metrics.CryptoQueueDepth.Set(float64(len(p.jobs)))
			job()
		case <-p.stopCh:
			return
		}
	}
}

// Stop signals every worker goroutine to exit and waits for them to drain.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

func (p *Pool) submit(job func()) {
	select {
	case p.jobs <- job:
		metrics.CryptoQueueDepth.Set(float64(len(p.jobs)))
	case <-p.stopCh:
	}
}

// task is one pending unit of work queued on a Lane.
type task struct {
	fn     func() error
	onDone func(error)
}

// Lane gives one owner (a replica or client instance) a private FIFO over
// the shared Pool: jobs submitted through the same Lane complete, and
// their onDone callbacks run, in submission order, even though the Pool
// itself executes different lanes' jobs concurrently.
type Lane struct {
	pool    *Pool
	mu      sync.Mutex
	pending []task
	active  bool
}

// NewLane creates a Lane bound to this Pool.
func (p *Pool) NewLane() *Lane {
	return &Lane{pool: p}
}

// Submit enqueues fn for execution on the shared pool. onDone is called
// with fn's result once this lane reaches fn's turn; onDone runs on a pool
// worker goroutine, so it must only ever call a thread-safe SendEvent, not
// touch owner state directly.
func (l *Lane) Submit(fn func() error, onDone func(error)) {
	l.mu.Lock()
	t := task{fn: fn, onDone: onDone}
	if l.active {
		l.pending = append(l.pending, t)
		l.mu.Unlock()
		return
	}
	l.active = true
	l.mu.Unlock()
	l.run(t)
}

func (l *Lane) run(t task) {
	l.pool.submit(func() {
		err := t.fn()
		t.onDone(err)
		l.advance()
	})
}

func (l *Lane) advance() {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.active = false
		l.mu.Unlock()
		return
	}
	next := l.pending[0]
	l.pending = l.pending[1:]
	l.mu.Unlock()
	l.run(next)
}
