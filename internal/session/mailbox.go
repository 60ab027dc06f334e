package session

import "sync"

// mailbox is a single-consumer channel that keeps only the latest value.
// Producers never block; a consumer that falls behind sees the newest state.
type mailbox[T any] struct {
	mu sync.Mutex
	ch chan T
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ch: make(chan T, 1)}
}

func (m *mailbox[T]) put(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	select {
	case <-m.ch:
	default:
	}
	m.ch <- v
}

func (m *mailbox[T]) recv() <-chan T { return m.ch }
