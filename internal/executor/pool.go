// Package executor runs store operations off the caller's goroutine.
package executor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/chouette/internal/logging"
)

// StoreFunc performs one store and reports the key, or ok == false.
type StoreFunc func() (key string, ok bool)

// PoolConfig holds tunable parameters for the pool.
type PoolConfig struct {
	Workers   int
	QueueSize int
}

// Stats holds pool counters.
type Stats struct {
	Submitted int64
	Stored    int64
	Failed    int64
	Dropped   int64
}

type task struct {
	fn     StoreFunc
	handle *Handle
}

// Pool is a fixed set of workers draining a bounded queue.
// Submit never blocks: when the queue is full the task is dropped.
type Pool struct {
	mu     sync.RWMutex
	closed bool
	tasks  chan task
	group  errgroup.Group
	logger *zap.Logger

	submitted atomic.Int64
	stored    atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	lastDrop  atomic.Int64 // unix timestamp of last drop warning
}

// NewPool starts the workers.
func NewPool(cfg PoolConfig, logger *zap.Logger) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = workers
	}

	p := &Pool{
		tasks:  make(chan task, queueSize),
		logger: logging.OrDefault(logger),
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.work)
	}
	p.logger.Debug("Started store worker pool", zap.Int("workers", workers), zap.Int("queue", queueSize))
	return p
}

func (p *Pool) work() error {
	for t := range p.tasks {
		key, ok := p.run(t.fn)
		if ok {
			p.stored.Add(1)
		} else {
			p.failed.Add(1)
		}
		t.handle.resolve(key, ok)
	}
	return nil
}

// run isolates the worker from a panicking store.
func (p *Pool) run(fn StoreFunc) (key string, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("Store operation panicked", zap.String("panic", fmt.Sprint(r)))
			key, ok = "", false
		}
	}()
	return fn()
}

// Submit queues fn and returns immediately.
func (p *Pool) Submit(fn StoreFunc) *Handle {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed || fn == nil {
		return Resolved("", false)
	}

	p.submitted.Add(1)
	h := newHandle()
	select {
	case p.tasks <- task{fn: fn, handle: h}:
	default:
		p.logDrop()
		h.resolve("", false)
	}
	return h
}

// logDrop emits a throttled warning (at most once per 10 seconds).
func (p *Pool) logDrop() {
	count := p.dropped.Add(1)
	now := time.Now().Unix()
	last := p.lastDrop.Load()
	if now-last >= 10 && p.lastDrop.CompareAndSwap(last, now) {
		p.logger.Warn("Store queue is full, dropping records", zap.Int64("dropped_total", count))
	}
}

// Close stops accepting work, lets queued stores finish and waits for the
// workers. It is safe to call more than once.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	_ = p.group.Wait()
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Stored:    p.stored.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}
