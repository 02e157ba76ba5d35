package cursor

import (
	"context"
	"sync"
)

// Watch is a single-value-cell broadcast primitive: subscribers only
// ever see the latest published value, coalescing any updates they
// missed while busy. This is the "condition variable around a shared
// value" option for fan-out where only the newest value matters, the
// right choice for cursor motion (high-rate, idempotent) as opposed to
// a queued broadcast channel (package broadcast), which is for board
// diffs where every message must be observed.
type Watch[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	value   T
	version uint64
	closed  bool
}

// NewWatch returns a Watch seeded with an initial value.
func NewWatch[T any](initial T) *Watch[T] {
	w := &Watch[T]{value: initial}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Get returns the current value without consuming any receiver's
// pending-change state.
func (w *Watch[T]) Get() T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.value
}

// Set publishes a new value to every subscriber.
func (w *Watch[T]) Set(value T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = value
	w.version++
	w.cond.Broadcast()
}

// Close marks the watch closed; blocked and future WatchReceiver.Recv
// calls for receivers that have seen the latest version return
// ErrClosed.
func (w *Watch[T]) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.cond.Broadcast()
}

// NewReceiver returns a receiver whose first Recv call returns the
// watch's current value immediately.
func (w *Watch[T]) NewReceiver() *WatchReceiver[T] {
	return &WatchReceiver[T]{w: w, seenVersion: noVersionSeen}
}

const noVersionSeen = ^uint64(0)

// WatchReceiver observes the latest value published to a Watch.
type WatchReceiver[T any] struct {
	w           *Watch[T]
	seenVersion uint64
}

// Recv blocks until the watched value changes since the last call (or,
// on the first call, returns immediately with the current value).
func (r *WatchReceiver[T]) Recv(ctx context.Context) (T, error) {
	w := r.w

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			w.cond.Broadcast()
			w.mu.Unlock()
		case <-stop:
		}
	}()

	w.mu.Lock()
	defer w.mu.Unlock()
	for {
		var zero T
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		if r.seenVersion != w.version || r.seenVersion == noVersionSeen {
			r.seenVersion = w.version
			return w.value, nil
		}
		if w.closed {
			return zero, ErrClosed
		}
		w.cond.Wait()
	}
}
