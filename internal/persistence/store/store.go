// Package store defines the concoction record store and an in-memory backend.
package store

import (
	"context"
	"fmt"
	"sync"

	"somnarium.ai/internal/concoction"
)

// Store persists concoctions. Records are immutable once Put returns; there
// is no update or delete. Put is the authoritative uniqueness guard: it must
// reject an existing code atomically with concoction.ErrDuplicateCode.
type Store interface {
	Put(ctx context.Context, c concoction.Concoction) error
	Exists(ctx context.Context, code string) (bool, error)
	Get(ctx context.Context, code string) (concoction.Concoction, error)
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]concoction.Concoction, error)
	Close() error
}

type Memory struct {
	mu    sync.RWMutex
	byKey map[string]concoction.Concoction
	order []string // insertion order, oldest first
}

func NewMemory() *Memory {
	return &Memory{byKey: map[string]concoction.Concoction{}}
}

func (m *Memory) Put(ctx context.Context, c concoction.Concoction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byKey[c.Code]; ok {
		return fmt.Errorf("%w: %s", concoction.ErrDuplicateCode, c.Code)
	}
	m.byKey[c.Code] = c.Clone()
	m.order = append(m.order, c.Code)
	return nil
}

func (m *Memory) Exists(ctx context.Context, code string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byKey[code]
	return ok, nil
}

func (m *Memory) Get(ctx context.Context, code string) (concoction.Concoction, error) {
	if err := ctx.Err(); err != nil {
		return concoction.Concoction{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byKey[code]
	if !ok {
		return concoction.Concoction{}, fmt.Errorf("%w: %s", concoction.ErrNotFound, code)
	}
	return c.Clone(), nil
}

// List orders by CreatedAt descending; ties keep the later insert first.
func (m *Memory) List(ctx context.Context, limit int) ([]concoction.Concoction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]concoction.Concoction, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		out = append(out, m.byKey[m.order[i]].Clone())
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

func (m *Memory) Close() error { return nil }
