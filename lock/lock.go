/*
Package lock serializes check-then-write sections per product.

PURPOSE:
  Recording a sale reads the balance, checks it, then writes. Two sales of
  the same product must not interleave those steps. A Locker hands out one
  exclusive Lock per key; different keys never block each other.

IMPLEMENTATIONS:
  Local: in-process keyed lock. Enough for a single server instance
  Redis: bsm/redislock. Shared by every instance that talks to the same Redis

USAGE:
  l, err := locker.Obtain(ctx, lock.ProductKey(id))
  if err != nil {
      return err
  }
  defer l.Release(ctx)

SEE ALSO:
  - redis.go: Distributed implementation
  - tracker/tracker.go: Acquires locks in sorted order for batches
*/
package lock

import (
	"context"
	"sync"
)

// Lock is a held lock.
type Lock interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive locks by key.
type Locker interface {
	// Obtain blocks until the key is free or ctx ends.
	Obtain(ctx context.Context, key string) (Lock, error)
}

// ProductKey is the lock key guarding one product's balance.
func ProductKey(id string) string {
	return "stock:product:" + id
}

// =============================================================================
// LOCAL - In-process keyed lock
// =============================================================================

// Local is a Locker for a single process. Slots are reference counted and
// removed when nobody holds or waits for them.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

func (l *Local) Obtain(ctx context.Context, key string) (Lock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &localLock{parent: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.drop(key, s)
		return nil, ctx.Err()
	}
}

func (l *Local) drop(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type localLock struct {
	parent *Local
	key    string
	slot   *slot
	once   sync.Once
}

func (ll *localLock) Release(_ context.Context) error {
	ll.once.Do(func() {
		<-ll.slot.ch
		ll.parent.drop(ll.key, ll.slot)
	})
	return nil
}
