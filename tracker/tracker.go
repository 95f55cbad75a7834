/*
tracker.go - Command and query layer over the inventory ledger

PURPOSE:
  The Tracker is the only writer of products, ledger entries and sales.
  It owns every rule that keeps the ledger and the derived balance honest:
  stock sufficiency, sale/entry pairing, cascades, batch atomicity.

WRITE PATH (every command):
  1. Validate input. Failures write nothing
  2. Lock the touched products (sorted order, see lockProducts)
  3. Inside one store transaction: read, project balance, check, write
  4. Invalidate cached balances, still holding the locks
  5. Log the outcome

WHY LOCK AND TRANSACT:
  The transaction makes the entry + sale dual write atomic. The lock
  serializes the read-check-write window per product, which a plain
  transaction does not do on every backend.

SEE ALSO:
  - products.go, stock.go, sales.go, batch.go: Commands
  - queries.go: Read side
  - consistency.go: Ledger/sale audit
*/
package tracker

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/stockbook/cache"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/lock"
)

// DefaultLocations is used when no locations are configured.
var DefaultLocations = []inventory.Location{"Main Store", "Warehouse", "Kiosk"}

// DefaultCacheTTL bounds how long a cached balance may live without a write.
const DefaultCacheTTL = time.Minute

// Tracker records stock movements and sales and answers balance queries.
type Tracker struct {
	store     inventory.TxStore
	locker    lock.Locker
	cache     cache.BalanceCache
	cacheTTL  time.Duration
	locations []inventory.Location
	log       logrus.FieldLogger
	now       func() time.Time
	newID     func() string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLocker replaces the in-process product lock, e.g. with lock.Redis.
func WithLocker(l lock.Locker) Option {
	return func(t *Tracker) { t.locker = l }
}

// WithCache enables balance caching.
func WithCache(c cache.BalanceCache, ttl time.Duration) Option {
	return func(t *Tracker) {
		t.cache = c
		t.cacheTTL = ttl
	}
}

// WithLocations sets the valid locations.
func WithLocations(locs ...inventory.Location) Option {
	return func(t *Tracker) {
		if len(locs) > 0 {
			t.locations = append([]inventory.Location(nil), locs...)
		}
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithClock overrides the time source. Tests use it for stable ordering.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker over store.
func New(store inventory.TxStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:     store,
		locker:    lock.NewLocal(),
		cache:     cache.Noop{},
		cacheTTL:  DefaultCacheTTL,
		locations: DefaultLocations,
		log:       logrus.StandardLogger(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Locations returns the configured locations in configuration order.
func (t *Tracker) Locations() []inventory.Location {
	return append([]inventory.Location(nil), t.locations...)
}

// Reset wipes all data when the store supports it.
func (t *Tracker) Reset(ctx context.Context) error {
	r, ok := t.store.(inventory.Resetter)
	if !ok {
		return inventory.ErrStoreRequired
	}
	if err := r.Reset(ctx); err != nil {
		return err
	}
	t.log.WithField("op", "reset").Warn("all inventory data deleted")
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timestamp returns the current time at the precision every backend keeps.
func (t *Tracker) timestamp() time.Time {
	return t.now().UTC().Truncate(time.Microsecond)
}

func (t *Tracker) today() inventory.Date {
	return inventory.DateOf(t.now())
}

func (t *Tracker) dateOrToday(d inventory.Date) inventory.Date {
	if d.IsZero() {
		return t.today()
	}
	return d
}

func (t *Tracker) checkLocation(field string, loc inventory.Location) error {
	for _, l := range t.locations {
		if l == loc {
			return nil
		}
	}
	return inventory.NewValidationError(field, "unknown location %q", loc)
}

// lockProducts obtains the locks of ids in sorted order, so two batches
// touching overlapping products cannot deadlock. The returned func releases
// them in reverse order.
func (t *Tracker) lockProducts(ctx context.Context, ids ...inventory.ProductID) (func(), error) {
	keys := uniqueIDs(ids)

	held := make([]lock.Lock, 0, len(keys))
	release := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i].Release(rctx); err != nil {
				t.log.WithError(err).Warn("failed to release product lock")
			}
		}
	}

	for _, id := range keys {
		l, err := t.locker.Obtain(ctx, lock.ProductKey(string(id)))
		if err != nil {
			release()
			return nil, err
		}
		held = append(held, l)
	}
	return release, nil
}

func uniqueIDs(ids []inventory.ProductID) []inventory.ProductID {
	seen := make(map[inventory.ProductID]bool, len(ids))
	out := make([]inventory.ProductID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// invalidate drops cached balances. Callers hold the product locks.
func (t *Tracker) invalidate(ctx context.Context, ids ...inventory.ProductID) {
	if err := t.cache.Invalidate(ctx, ids...); err != nil {
		t.log.WithError(err).WithField("product_ids", ids).Warn("failed to invalidate balance cache")
	}
}

func (t *Tracker) cacheEnabled() bool {
	_, noop := t.cache.(cache.Noop)
	return !noop
}

// project loads p's entries through s and projects its balance.
func project(ctx context.Context, s inventory.Store, p inventory.Product, asOf *inventory.Date) (inventory.Balance, error) {
	entries, err := s.ListEntries(ctx, inventory.EntryFilter{ProductID: p.ID})
	if err != nil {
		return inventory.Balance{}, err
	}
	return inventory.ComputeBalance(p, entries, asOf), nil
}

// balanceOf returns p's balance, going through the cache for current balances.
// A miss is filled under the product lock so it cannot race a write's
// invalidation.
func (t *Tracker) balanceOf(ctx context.Context, p inventory.Product, asOf *inventory.Date) (inventory.Balance, error) {
	if asOf != nil || !t.cacheEnabled() {
		return project(ctx, t.store, p, asOf)
	}

	if b, ok := t.cachedBalance(ctx, p.ID); ok {
		return b, nil
	}

	release, err := t.lockProducts(ctx, p.ID)
	if err != nil {
		return inventory.Balance{}, err
	}
	defer release()

	b, err := project(ctx, t.store, p, nil)
	if err != nil {
		return inventory.Balance{}, err
	}
	t.storeBalance(ctx, p.ID, b)
	return b, nil
}

func (t *Tracker) cachedBalance(ctx context.Context, id inventory.ProductID) (inventory.Balance, bool) {
	b, ok, err := t.cache.Get(ctx, id)
	if err != nil {
		t.log.WithError(err).WithField("product_id", id).Warn("balance cache read failed")
		return inventory.Balance{}, false
	}
	if !ok || b == nil {
		return inventory.Balance{}, false
	}
	return *b, true
}

func (t *Tracker) storeBalance(ctx context.Context, id inventory.ProductID, b inventory.Balance) {
	if err := t.cache.Set(ctx, id, b, t.cacheTTL); err != nil {
		t.log.WithError(err).WithField("product_id", id).Warn("balance cache write failed")
	}
}

// insufficient builds the shortage error for p.
func insufficient(p inventory.Product, available, requested decimal.Decimal) error {
	return &inventory.InsufficientStockError{
		ProductID:   p.ID,
		ProductName: p.Name,
		Available:   available,
		Requested:   requested,
	}
}
