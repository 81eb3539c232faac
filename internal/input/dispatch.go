package input

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the number of outstanding events a dispatch channel
// holds before the hook callback starts dropping.
const DefaultCapacity = 10

// Channel is a bounded FIFO between a hook callback and its consumer
// worker. Sends never block.
type Channel[T any] struct {
	ch        chan T
	closeOnce sync.Once
}

// NewChannel creates a channel holding up to capacity events. A
// non-positive capacity falls back to DefaultCapacity.
func NewChannel[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// TrySend makes exactly one attempt to enqueue v and reports whether it
// was accepted. A full channel drops v.
func (c *Channel[T]) TrySend(v T) bool {
	select {
	case c.ch <- v:
		return true
	default:
		return false
	}
}

// Receive returns the consumer side. It is closed by Close.
func (c *Channel[T]) Receive() <-chan T {
	return c.ch
}

// Len reports the number of queued events.
func (c *Channel[T]) Len() int { return len(c.ch) }

// Cap reports the channel capacity.
func (c *Channel[T]) Cap() int { return cap(c.ch) }

// Close ends the consumer's receive loop once queued events are drained.
// No TrySend may run concurrently with or after Close.
func (c *Channel[T]) Close() {
	c.closeOnce.Do(func() { close(c.ch) })
}

// Slot holds the sending half of a channel. It is written once before any
// hook is armed and read lock-free from the hook callback afterwards.
type Slot[T any] struct {
	p atomic.Pointer[Channel[T]]
}

// Set stores c. A second Set fails with ErrChannelInitialized.
func (s *Slot[T]) Set(c *Channel[T]) error {
	if c == nil {
		return ErrChannelNotInitialized
	}
	if !s.p.CompareAndSwap(nil, c) {
		return ErrChannelInitialized
	}
	return nil
}

// Load returns the stored channel, or nil before Set.
func (s *Slot[T]) Load() *Channel[T] {
	return s.p.Load()
}

// Senders is the state shared between the hook callbacks and the rest of
// the process: one sending half per event class.
type Senders struct {
	Keyboard Slot[KeyboardEvent]
	Mouse    Slot[MouseEvent]
}

// Ready reports whether both slots have been initialized.
func (s *Senders) Ready() bool {
	return s.Keyboard.Load() != nil && s.Mouse.Load() != nil
}
