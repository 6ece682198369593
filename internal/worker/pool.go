// Package worker runs the long-lived per-session goroutines of the runtime.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// ErrClosed is returned by Go after Shutdown has been called.
var ErrClosed = errors.New("worker pool closed")

// Task is a unit of work. ctx is cancelled when the pool shuts down.
type Task func(ctx context.Context)

// Pool runs tasks on their own goroutines. With a positive limit at most
// limit tasks run at once and the rest wait in a FIFO backlog.
type Pool struct {
	limit int

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	backlog *queue.Queue
	running int
	closed  bool
	wg      sync.WaitGroup

	submitted int64
	completed int64
	dropped   int64
}

// NewPool creates a pool. A limit of zero or less means unbounded.
func NewPool(limit int) *Pool {
	if limit < 0 {
		limit = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		limit:   limit,
		ctx:     ctx,
		cancel:  cancel,
		backlog: queue.New(),
	}
}

// Go submits task. It never blocks.
func (p *Pool) Go(task Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	atomic.AddInt64(&p.submitted, 1)

	if p.limit > 0 && p.running >= p.limit {
		p.backlog.Add(task)
		return nil
	}
	p.startLocked(task)
	return nil
}

// startLocked launches task. p.mu must be held.
func (p *Pool) startLocked(task Task) {
	p.running++
	p.wg.Add(1)
	go p.run(task)
}

func (p *Pool) run(task Task) {
	for task != nil {
		task(p.ctx)
		atomic.AddInt64(&p.completed, 1)
		task = p.next()
	}
	p.wg.Done()
}

// next hands the finishing goroutine the oldest queued task, or releases its slot.
func (p *Pool) next() Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed && p.backlog.Length() > 0 {
		return p.backlog.Remove().(Task)
	}
	p.running--
	return nil
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backlog.Length()
}

// Stats returns basic pool counters.
func (p *Pool) Stats() map[string]int64 {
	p.mu.Lock()
	running, pending := p.running, p.backlog.Length()
	p.mu.Unlock()
	return map[string]int64{
		"submitted": atomic.LoadInt64(&p.submitted),
		"completed": atomic.LoadInt64(&p.completed),
		"dropped":   atomic.LoadInt64(&p.dropped),
		"running":   int64(running),
		"pending":   int64(pending),
	}
}

// Shutdown stops accepting tasks, discards the backlog, cancels the context
// passed to running tasks and waits for them to return or for ctx to expire.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		for p.backlog.Length() > 0 {
			p.backlog.Remove()
			atomic.AddInt64(&p.dropped, 1)
		}
	}
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
