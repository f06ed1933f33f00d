// Package mailbox implements a bounded KEEP_LAST queue between a transport
// goroutine and a single consumer.
package mailbox

import (
	"sync"
	"sync/atomic"
)

// Mailbox holds up to depth items. Publishing into a full mailbox overwrites
// the oldest unconsumed item, so the consumer always sees the newest frames.
//
// Thread-safety:
//   - Publish and Close may be called from any goroutine
//   - Receive MUST be called from a single consumer goroutine
//   - Drops and Len are safe from anywhere
type Mailbox[T any] struct {
	mu   sync.Mutex // Protects items, head, size, closed
	cond *sync.Cond // Signals the consumer

	items []T
	head  int // Index of the oldest item
	size  int // Number of unconsumed items

	closed bool
	drops  atomic.Uint64 // Items overwritten before they were consumed
}

// New returns a mailbox with the given depth. Depth below 1 is treated as 1.
func New[T any](depth int) *Mailbox[T] {
	if depth < 1 {
		depth = 1
	}
	m := &Mailbox[T]{items: make([]T, depth)}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Publish enqueues item without blocking.
//
// Returns true when an unconsumed item was overwritten to make room. Publish
// after Close is a no-op and returns false.
func (m *Mailbox[T]) Publish(item T) (dropped bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	depth := len(m.items)
	if m.size == depth {
		// Full: overwrite the oldest slot and advance head
		m.items[m.head] = item
		m.head = (m.head + 1) % depth
		m.drops.Add(1)
		dropped = true
	} else {
		m.items[(m.head+m.size)%depth] = item
		m.size++
	}

	m.cond.Signal()
	return dropped
}

// Receive blocks until an item is available and returns it in arrival order.
//
// After Close, Receive keeps returning the remaining items and then returns
// the zero value and false.
func (m *Mailbox[T]) Receive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for m.size == 0 && !m.closed {
		m.cond.Wait()
	}

	var zero T
	if m.size == 0 {
		return zero, false
	}

	item := m.items[m.head]
	m.items[m.head] = zero // Release reference for GC
	m.head = (m.head + 1) % len(m.items)
	m.size--
	return item, true
}

// Close stops accepting items and wakes a blocked Receive. Idempotent.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}

// Drops returns the number of items overwritten before consumption.
func (m *Mailbox[T]) Drops() uint64 {
	return m.drops.Load()
}

// Len returns the number of unconsumed items.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Depth returns the capacity.
func (m *Mailbox[T]) Depth() int {
	return len(m.items)
}
