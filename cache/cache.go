// Package cache keeps projected balances between writes.
//
// The ledger stays authoritative. Every write invalidates the touched
// products, and any cache failure falls back to recomputing.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/warp/stockbook/inventory"
)

// BalanceCache stores current (not as-of) balances by product.
type BalanceCache interface {
	Get(ctx context.Context, id inventory.ProductID) (*inventory.Balance, bool, error)
	Set(ctx context.Context, id inventory.ProductID, b inventory.Balance, ttl time.Duration) error
	Invalidate(ctx context.Context, ids ...inventory.ProductID) error
}

// Noop never hits.
type Noop struct{}

func (Noop) Get(_ context.Context, _ inventory.ProductID) (*inventory.Balance, bool, error) {
	return nil, false, nil
}

func (Noop) Set(_ context.Context, _ inventory.ProductID, _ inventory.Balance, _ time.Duration) error {
	return nil
}

func (Noop) Invalidate(_ context.Context, _ ...inventory.ProductID) error {
	return nil
}

// Memory is a process-local cache.
type Memory struct {
	mu    sync.Mutex
	items map[inventory.ProductID]memoryItem
	now   func() time.Time
}

type memoryItem struct {
	balance inventory.Balance
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{items: make(map[inventory.ProductID]memoryItem), now: time.Now}
}

func (m *Memory) Get(_ context.Context, id inventory.ProductID) (*inventory.Balance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, false, nil
	}
	if !item.expires.IsZero() && m.now().After(item.expires) {
		delete(m.items, id)
		return nil, false, nil
	}
	b := item.balance
	return &b, true, nil
}

// Set stores b. A non-positive ttl keeps it until invalidated.
func (m *Memory) Set(_ context.Context, id inventory.ProductID, b inventory.Balance, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := memoryItem{balance: b}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	m.items[id] = item
	return nil
}

func (m *Memory) Invalidate(_ context.Context, ids ...inventory.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.items, id)
	}
	return nil
}

// Len returns the number of cached balances, expired ones included.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
