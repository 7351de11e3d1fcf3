// Package queue provides the unbounded FIFO mailboxes that carry values
// between the goroutines of each process. Values move by copy; the
// receiving goroutine becomes their only owner.
package queue

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO queue. Send never blocks. Receive blocks
// until a value is available; TryReceive never blocks.
type Mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

// NewMailbox creates an empty mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	return &Mailbox[T]{notify: make(chan struct{}, 1)}
}

// Send appends v to the tail of the mailbox.
func (m *Mailbox[T]) Send(v T) {
	m.mu.Lock()
	m.items = append(m.items, v)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// TryReceive pops the head of the mailbox if one is present.
func (m *Mailbox[T]) TryReceive() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if len(m.items) == 0 {
		return zero, false
	}
	v := m.items[0]
	m.items[0] = zero
	m.items = m.items[1:]
	if len(m.items) == 0 {
		m.items = nil
	}
	return v, true
}

// Receive blocks until a value is available or ctx is done.
func (m *Mailbox[T]) Receive(ctx context.Context) (T, error) {
	for {
		if v, ok := m.TryReceive(); ok {
			return v, nil
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-m.notify:
		}
	}
}

// Len returns the number of queued values.
func (m *Mailbox[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
