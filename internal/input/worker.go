package input

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
)

// Forwarder is the downstream collaborator a worker hands accepted events
// to. Forward runs on the worker goroutine; a slow Forward backs up the
// dispatch channel and makes the hook callback drop events.
type Forwarder[T any] interface {
	Forward(ev T) error
}

// ForwarderFunc adapts a function to Forwarder.
type ForwarderFunc[T any] func(ev T) error

// Forward calls f.
func (f ForwarderFunc[T]) Forward(ev T) error { return f(ev) }

// Discard accepts and drops every event.
type Discard[T any] struct{}

func (Discard[T]) Forward(T) error { return nil }

// Chain forwards to each forwarder in order. The first error stops the
// chain for that event.
func Chain[T any](fwds ...Forwarder[T]) Forwarder[T] {
	return ForwarderFunc[T](func(ev T) error {
		for _, f := range fwds {
			if err := f.Forward(ev); err != nil {
				return err
			}
		}
		return nil
	})
}

// Filter decides whether a worker forwards an event. Filters are only
// used from the worker goroutine and need no locking.
type Filter[T any] interface {
	Accept(ev T) bool
}

// StaleWindow bounds how far behind the last accepted time an event may
// lie and still count as a late redelivery, in milliseconds.
const StaleWindow uint32 = 60 * 1000

// StaleFilter drops keyboard events whose timestamp lies behind the last
// accepted one. Timestamps are 32-bit millisecond ticks and are compared
// modulo 2^32, so the filter survives the tick counter wrapping. An event
// more than StaleWindow behind is taken as a jump of the clock and
// re-baselines the filter.
type StaleFilter struct {
	last    uint32
	seen    bool
	rebased uint64
}

func (f *StaleFilter) Accept(ev KeyboardEvent) bool {
	return f.AcceptTime(ev.Time)
}

// AcceptTime reports whether t is not behind the last accepted time and,
// if so, records it.
func (f *StaleFilter) AcceptTime(t uint32) bool {
	if f.seen {
		if lag := f.last - t; tickBefore(t, f.last) {
			if lag <= StaleWindow {
				return false
			}
			f.rebased++
		}
	}
	f.last = t
	f.seen = true
	return true
}

// Last returns the last accepted time and whether any event was accepted.
func (f *StaleFilter) Last() (uint32, bool) {
	return f.last, f.seen
}

// Rebased returns how many times the filter re-baselined on a clock jump.
func (f *StaleFilter) Rebased() uint64 {
	return f.rebased
}

func tickBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// WorkerStats counts what a worker did with the events it received.
type WorkerStats struct {
	Received  uint64
	Forwarded uint64
	Stale     uint64
	Failed    uint64
}

// Worker drains one dispatch channel on its own goroutine until the
// channel is closed.
type Worker[T any] struct {
	name   string
	rx     <-chan T
	filter Filter[T]
	fwd    Forwarder[T]
	logger *slog.Logger
	done   chan struct{}

	received  atomic.Uint64
	forwarded atomic.Uint64
	stale     atomic.Uint64
	failed    atomic.Uint64
}

// NewWorker creates a worker. A nil filter accepts everything and a nil
// forwarder discards.
func NewWorker[T any](name string, rx <-chan T, filter Filter[T], fwd Forwarder[T], logger *slog.Logger) *Worker[T] {
	if fwd == nil {
		fwd = Discard[T]{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker[T]{
		name:   name,
		rx:     rx,
		filter: filter,
		fwd:    fwd,
		logger: logger.With("worker", name),
		done:   make(chan struct{}),
	}
}

// Run blocks until the channel is closed and drained.
func (w *Worker[T]) Run() {
	defer close(w.done)
	for ev := range w.rx {
		w.received.Add(1)
		if w.filter != nil && !w.filter.Accept(ev) {
			w.stale.Add(1)
			w.logger.Debug("Dropping stale event", "event", ev)
			continue
		}
		if err := w.forward(ev); err != nil {
			w.failed.Add(1)
			w.logger.Warn("Forward failed", "event", ev, "error", err)
			continue
		}
		w.forwarded.Add(1)
	}
	w.logger.Debug("Channel closed, worker exiting")
}

func (w *Worker[T]) forward(ev T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Forwarder panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("forwarder panic: %v", r)
		}
	}()
	return w.fwd.Forward(ev)
}

// Done is closed when Run returns.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// Stats returns a snapshot of the worker counters.
func (w *Worker[T]) Stats() WorkerStats {
	return WorkerStats{
		Received:  w.received.Load(),
		Forwarded: w.forwarded.Load(),
		Stale:     w.stale.Load(),
		Failed:    w.failed.Load(),
	}
}
