// Package buffer accumulates change records for one entity and coalesces
// bursts of them into a single flush using a trailing-edge debounce.
//
// Every Enqueue restarts the debounce timer, so an entity that keeps changing
// faster than the interval postpones its flush indefinitely. The interval is
// the only knob.
package buffer

import (
	"sync"
	"time"

	"pushwatch/internal/change"
)

// DefaultInterval is the debounce interval used when none is configured.
const DefaultInterval = 5 * time.Second

// FlushFunc receives the drained records, oldest first.
type FlushFunc func(records []change.Record)

// Buffer is a FIFO of pending records plus its own debounce timer.
// It is safe for concurrent use.
type Buffer struct {
	interval time.Duration
	onFlush  FlushFunc

	// flushMu serializes flush callbacks so one entity never has two batches
	// rendered concurrently.
	flushMu sync.Mutex

	mu        sync.Mutex
	pending   []change.Record
	timer     *time.Timer
	scheduled bool
	gen       uint64
}

func New(interval time.Duration, onFlush FlushFunc) *Buffer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Buffer{interval: interval, onFlush: onFlush}
}

// Enqueue appends r and (re)starts the debounce timer.
// It reports whether an already scheduled flush was postponed.
func (b *Buffer) Enqueue(r change.Record) (postponed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, r)
	postponed = b.scheduled
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.scheduled = true
	b.timer = time.AfterFunc(b.interval, func() { b.fire(gen) })
	return postponed
}

// fire runs on the timer goroutine. A timer superseded by a later Enqueue
// may still fire if Stop lost the race; the generation check drops it.
func (b *Buffer) fire(gen uint64) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	records := b.drainLocked()
	b.mu.Unlock()

	b.deliver(records)
}

// Flush drains pending records immediately, cancelling any scheduled timer.
// It returns the number of records flushed.
func (b *Buffer) Flush() int {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	records := b.drainLocked()
	b.mu.Unlock()

	b.deliver(records)
	return len(records)
}

func (b *Buffer) drainLocked() []change.Record {
	b.scheduled = false
	b.timer = nil
	records := b.pending
	b.pending = nil
	return records
}

func (b *Buffer) deliver(records []change.Record) {
	if len(records) == 0 || b.onFlush == nil {
		return
	}
	b.onFlush(records)
}

// Pending returns the number of queued records.
func (b *Buffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Scheduled reports whether a debounce timer is pending.
func (b *Buffer) Scheduled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.scheduled
}

// Interval returns the debounce interval.
func (b *Buffer) Interval() time.Duration { return b.interval }
