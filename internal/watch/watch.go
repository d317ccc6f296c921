// Package watch holds a latest-value cell that any number of observers can
// follow.
//
// Delivery Semantics:
//   - a new observer receives the current value immediately
//   - every Set is offered to every observer; a slow observer skips
//     intermediate values but always ends up holding the newest one
//   - Set never blocks on observers
//   - an observer's channel is closed when its context ends or the cell is closed
package watch

import (
	"context"
	"sync"
)

// Value is a conflated observable value. The zero value is not usable; call New.
type Value[T any] struct {
	mu     sync.Mutex
	cur    T
	subs   map[chan T]struct{}
	closed bool
	done   chan struct{}
}

// New creates a cell holding initial.
func New[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[chan T]struct{}),
		done: make(chan struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set replaces the current value and offers it to every observer.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.cur = val
	for ch := range v.subs {
		offer(ch, val)
	}
}

// offer replaces whatever is pending in ch with val. Only Set sends, under the
// lock, so the buffer slot is free after the drain.
func offer[T any](ch chan T, val T) {
	select {
	case <-ch:
	default:
	}
	ch <- val
}

// Subscribe returns a channel that yields the current value and then each
// later one. The channel is closed when ctx ends or Close is called.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	ch <- v.cur
	if v.closed {
		v.mu.Unlock()
		close(ch)
		return ch
	}
	v.subs[ch] = struct{}{}
	v.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-v.done:
		}
		v.mu.Lock()
		defer v.mu.Unlock()
		if _, ok := v.subs[ch]; ok {
			delete(v.subs, ch)
			close(ch)
		}
	}()
	return ch
}

// Observers returns how many subscriptions are live.
func (v *Value[T]) Observers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

// Close ends every subscription. Later Sets are ignored; later Subscribes get
// the final value on an already-closed channel.
func (v *Value[T]) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	close(v.done)
	for ch := range v.subs {
		delete(v.subs, ch)
		close(ch)
	}
}
