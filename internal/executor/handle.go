package executor

import (
	"context"
	"sync"
)

// Handle is the pending result of one submission: the stored key, or
// absent when nothing was stored. Waiting is optional.
type Handle struct {
	done chan struct{}
	once sync.Once
	key  string
	ok   bool
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Resolved returns a handle that is already complete.
func Resolved(key string, ok bool) *Handle {
	h := newHandle()
	h.resolve(key, ok)
	return h
}

func (h *Handle) resolve(key string, ok bool) {
	h.once.Do(func() {
		h.key, h.ok = key, ok
		close(h.done)
	})
}

// Done is closed once the result is known.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the submission completes.
func (h *Handle) Wait() (key string, ok bool) {
	<-h.done
	return h.key, h.ok
}

// WaitContext is Wait bounded by ctx. Giving up does not cancel the store;
// it only stops waiting for it.
func (h *Handle) WaitContext(ctx context.Context) (key string, ok bool, err error) {
	select {
	case <-h.done:
		return h.key, h.ok, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}
