// Package store provides an in-memory inventory.TxStore.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/stockbook/inventory"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	st state
}

type state struct {
	products map[inventory.ProductID]inventory.Product
	entries  map[inventory.EntryID]inventory.Entry
	sales    map[inventory.SaleID]inventory.Sale
}

func newState() state {
	return state{
		products: make(map[inventory.ProductID]inventory.Product),
		entries:  make(map[inventory.EntryID]inventory.Entry),
		sales:    make(map[inventory.SaleID]inventory.Sale),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// --- Products ---------------------------------------------------------------

func (m *Memory) CreateProduct(_ context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createProduct(p)
}

func (m *Memory) GetProduct(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getProduct(id)
}

func (m *Memory) GetProductForUpdate(ctx context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return m.GetProduct(ctx, id)
}

func (m *Memory) UpdateProduct(_ context.Context, p inventory.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateProduct(p)
}

func (m *Memory) DeleteProduct(_ context.Context, id inventory.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteProduct(id)
}

func (m *Memory) ListProducts(_ context.Context, f inventory.ProductFilter) ([]inventory.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listProducts(f), nil
}

// --- Entries ----------------------------------------------------------------

func (m *Memory) AppendEntry(_ context.Context, e inventory.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendEntry(e)
}

func (m *Memory) GetEntry(_ context.Context, id inventory.EntryID) (*inventory.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getEntry(id)
}

func (m *Memory) UpdateEntry(_ context.Context, e inventory.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateEntry(e)
}

func (m *Memory) DeleteEntry(_ context.Context, id inventory.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteEntry(id)
}

func (m *Memory) DeleteEntriesByProduct(_ context.Context, id inventory.ProductID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteEntriesByProduct(id), nil
}

func (m *Memory) ListEntries(_ context.Context, f inventory.EntryFilter) ([]inventory.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listEntries(f), nil
}

// --- Sales ------------------------------------------------------------------

func (m *Memory) CreateSale(_ context.Context, s inventory.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.createSale(s)
}

func (m *Memory) GetSale(_ context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSale(id)
}

func (m *Memory) GetSaleByEntry(_ context.Context, id inventory.EntryID) (*inventory.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getSaleByEntry(id), nil
}

func (m *Memory) UpdateSale(_ context.Context, s inventory.Sale) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.updateSale(s)
}

func (m *Memory) DeleteSale(_ context.Context, id inventory.SaleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteSale(id)
}

func (m *Memory) DeleteSalesByProduct(_ context.Context, id inventory.ProductID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.deleteSalesByProduct(id), nil
}

func (m *Memory) ListSales(_ context.Context, f inventory.SaleFilter) ([]inventory.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listSales(f), nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st = newState()
	return nil
}

// =============================================================================
// STATE - Unlocked operations shared by Memory and the transactional view
// =============================================================================

func (s *state) createProduct(p inventory.Product) error {
	if _, ok := s.products[p.ID]; ok {
		return inventory.ErrDuplicate
	}
	s.products[p.ID] = p
	return nil
}

func (s *state) getProduct(id inventory.ProductID) (*inventory.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, inventory.ProductNotFound(id)
	}
	return &p, nil
}

func (s *state) updateProduct(p inventory.Product) error {
	if _, ok := s.products[p.ID]; !ok {
		return inventory.ProductNotFound(p.ID)
	}
	s.products[p.ID] = p
	return nil
}

func (s *state) deleteProduct(id inventory.ProductID) error {
	if _, ok := s.products[id]; !ok {
		return inventory.ProductNotFound(id)
	}
	delete(s.products, id)
	return nil
}

func (s *state) listProducts(f inventory.ProductFilter) []inventory.Product {
	var ids map[inventory.ProductID]bool
	if len(f.IDs) > 0 {
		ids = make(map[inventory.ProductID]bool, len(f.IDs))
		for _, id := range f.IDs {
			ids[id] = true
		}
	}

	result := []inventory.Product{}
	for _, p := range s.products {
		if f.Location != "" && p.Location != f.Location {
			continue
		}
		if f.Search != "" && !containsFold(p.Name, f.Search) {
			continue
		}
		if ids != nil && !ids[p.ID] {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := strings.ToLower(result[i].Name), strings.ToLower(result[j].Name)
		if a != b {
			return a < b
		}
		return result[i].ID < result[j].ID
	})
	return result
}

func (s *state) appendEntry(e inventory.Entry) error {
	if _, ok := s.entries[e.ID]; ok {
		return inventory.ErrDuplicate
	}
	if _, ok := s.products[e.ProductID]; !ok {
		return inventory.ProductNotFound(e.ProductID)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *state) getEntry(id inventory.EntryID) (*inventory.Entry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, inventory.EntryNotFound(id)
	}
	return &e, nil
}

func (s *state) updateEntry(e inventory.Entry) error {
	if _, ok := s.entries[e.ID]; !ok {
		return inventory.EntryNotFound(e.ID)
	}
	s.entries[e.ID] = e
	return nil
}

func (s *state) deleteEntry(id inventory.EntryID) error {
	if _, ok := s.entries[id]; !ok {
		return inventory.EntryNotFound(id)
	}
	delete(s.entries, id)
	return nil
}

func (s *state) deleteEntriesByProduct(id inventory.ProductID) int {
	n := 0
	for eid, e := range s.entries {
		if e.ProductID == id {
			delete(s.entries, eid)
			n++
		}
	}
	return n
}

func (s *state) listEntries(f inventory.EntryFilter) []inventory.Entry {
	result := []inventory.Entry{}
	for _, e := range s.entries {
		if f.ProductID != "" && e.ProductID != f.ProductID {
			continue
		}
		if f.Location != "" && s.products[e.ProductID].Location != f.Location {
			continue
		}
		if f.Date != nil && !e.Date.Equal(*f.Date) {
			continue
		}
		if f.Type != "" && e.Type != f.Type {
			continue
		}
		if f.Search != "" && !containsFold(e.Description, f.Search) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return result
}

func (s *state) createSale(sale inventory.Sale) error {
	if _, ok := s.sales[sale.ID]; ok {
		return inventory.ErrDuplicate
	}
	if _, ok := s.products[sale.ProductID]; !ok {
		return inventory.ProductNotFound(sale.ProductID)
	}
	s.sales[sale.ID] = sale
	return nil
}

func (s *state) getSale(id inventory.SaleID) (*inventory.Sale, error) {
	sale, ok := s.sales[id]
	if !ok {
		return nil, inventory.SaleNotFound(id)
	}
	return &sale, nil
}

func (s *state) getSaleByEntry(id inventory.EntryID) *inventory.Sale {
	for _, sale := range s.sales {
		if sale.TransactionID == id {
			found := sale
			return &found
		}
	}
	return nil
}

func (s *state) updateSale(sale inventory.Sale) error {
	if _, ok := s.sales[sale.ID]; !ok {
		return inventory.SaleNotFound(sale.ID)
	}
	s.sales[sale.ID] = sale
	return nil
}

func (s *state) deleteSale(id inventory.SaleID) error {
	if _, ok := s.sales[id]; !ok {
		return inventory.SaleNotFound(id)
	}
	delete(s.sales, id)
	return nil
}

func (s *state) deleteSalesByProduct(id inventory.ProductID) int {
	n := 0
	for sid, sale := range s.sales {
		if sale.ProductID == id {
			delete(s.sales, sid)
			n++
		}
	}
	return n
}

func (s *state) listSales(f inventory.SaleFilter) []inventory.Sale {
	result := []inventory.Sale{}
	for _, sale := range s.sales {
		if f.ProductID != "" && sale.ProductID != f.ProductID {
			continue
		}
		if f.Date != nil && !sale.Date.Equal(*f.Date) {
			continue
		}
		if f.Location != "" && sale.Location != f.Location {
			continue
		}
		if f.Search != "" && !containsFold(sale.ProductName, f.Search) &&
			!containsFold(sale.Description, f.Search) && !containsFold(sale.Receiver, f.Search) {
			continue
		}
		result = append(result, sale)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return result
}

func (s *state) clone() state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.sales {
		c.sales[k] = v
	}
	return c
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store lock is held for the whole callback, so fn must only use the
// Store it is given.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(inventory.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()

	if err := fn(&txMemoryView{st: &tm.st}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

type txMemoryView struct {
	st *state
}

func (tv *txMemoryView) CreateProduct(_ context.Context, p inventory.Product) error {
	return tv.st.createProduct(p)
}

func (tv *txMemoryView) GetProduct(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return tv.st.getProduct(id)
}

func (tv *txMemoryView) GetProductForUpdate(_ context.Context, id inventory.ProductID) (*inventory.Product, error) {
	return tv.st.getProduct(id)
}

func (tv *txMemoryView) UpdateProduct(_ context.Context, p inventory.Product) error {
	return tv.st.updateProduct(p)
}

func (tv *txMemoryView) DeleteProduct(_ context.Context, id inventory.ProductID) error {
	return tv.st.deleteProduct(id)
}

func (tv *txMemoryView) ListProducts(_ context.Context, f inventory.ProductFilter) ([]inventory.Product, error) {
	return tv.st.listProducts(f), nil
}

func (tv *txMemoryView) AppendEntry(_ context.Context, e inventory.Entry) error {
	return tv.st.appendEntry(e)
}

func (tv *txMemoryView) GetEntry(_ context.Context, id inventory.EntryID) (*inventory.Entry, error) {
	return tv.st.getEntry(id)
}

func (tv *txMemoryView) UpdateEntry(_ context.Context, e inventory.Entry) error {
	return tv.st.updateEntry(e)
}

func (tv *txMemoryView) DeleteEntry(_ context.Context, id inventory.EntryID) error {
	return tv.st.deleteEntry(id)
}

func (tv *txMemoryView) DeleteEntriesByProduct(_ context.Context, id inventory.ProductID) (int, error) {
	return tv.st.deleteEntriesByProduct(id), nil
}

func (tv *txMemoryView) ListEntries(_ context.Context, f inventory.EntryFilter) ([]inventory.Entry, error) {
	return tv.st.listEntries(f), nil
}

func (tv *txMemoryView) CreateSale(_ context.Context, s inventory.Sale) error {
	return tv.st.createSale(s)
}

func (tv *txMemoryView) GetSale(_ context.Context, id inventory.SaleID) (*inventory.Sale, error) {
	return tv.st.getSale(id)
}

func (tv *txMemoryView) GetSaleByEntry(_ context.Context, id inventory.EntryID) (*inventory.Sale, error) {
	return tv.st.getSaleByEntry(id), nil
}

func (tv *txMemoryView) UpdateSale(_ context.Context, s inventory.Sale) error {
	return tv.st.updateSale(s)
}

func (tv *txMemoryView) DeleteSale(_ context.Context, id inventory.SaleID) error {
	return tv.st.deleteSale(id)
}

func (tv *txMemoryView) DeleteSalesByProduct(_ context.Context, id inventory.ProductID) (int, error) {
	return tv.st.deleteSalesByProduct(id), nil
}

func (tv *txMemoryView) ListSales(_ context.Context, f inventory.SaleFilter) ([]inventory.Sale, error) {
	return tv.st.listSales(f), nil
}
