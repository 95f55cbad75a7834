/*
types.go - Core types for the inventory ledger

PURPOSE:
  Defines the three persisted records (Product, Entry, Sale) and the value
  types they are built from. These types are storage- and transport-agnostic:
  stores persist them, the tracker package enforces the rules around them.

KEY CONCEPTS:
  Product:  Something stocked at one location, with an immutable baseline
            quantity (InitialBalance)
  Entry:    One ledger line: a positive quantity moving in or out of stock
  Sale:     A commercial sale. Always paired with exactly one "out" Entry
            via TransactionID
  Balance:  Never stored. See balance.go

DESIGN DECISIONS:
  1. Quantities are always positive; direction lives in EntryType
  2. decimal.Decimal for quantity, price and total (no float drift)
  3. Date is a calendar day, shared by Entry and Sale

SEE ALSO:
  - balance.go: Balance projection over entries
  - store.go: Persistence interfaces
  - tracker/: Commands that keep entries and sales consistent
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ProductID string
	EntryID   string
	SaleID    string
)

// Location is a physical site name. The set of valid locations is configured
// by the deployment, not hard-coded here.
type Location string

// =============================================================================
// LEDGER ENTRY TYPES
// =============================================================================

type EntryType string

const (
	EntryIn  EntryType = "in"
	EntryOut EntryType = "out"
)

func (t EntryType) Valid() bool { return t == EntryIn || t == EntryOut }

// OpeningDescription labels the traceability entry written at product creation.
const OpeningDescription = "Initial balance"

// =============================================================================
// RECORDS
// =============================================================================

// Product is a stocked item. InitialBalance is fixed at creation and is never
// changed by ledger activity.
type Product struct {
	ID             ProductID
	Name           string
	Location       Location
	InitialBalance decimal.Decimal
	Price          decimal.Decimal
	DateAdded      Date
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Entry is one stock movement owned by a product.
type Entry struct {
	ID          EntryID
	ProductID   ProductID
	Type        EntryType
	Quantity    decimal.Decimal
	Date        Date
	Description string
	// Opening marks the "Initial balance" record. The baseline already counts
	// this quantity, so projections skip it.
	Opening   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sale is a sale of one product. TransactionID points at the "out" entry
// written with it.
type Sale struct {
	ID            SaleID
	ProductID     ProductID
	ProductName   string
	Date          Date
	Location      Location
	Quantity      decimal.Decimal
	Price         decimal.Decimal
	Total         decimal.Decimal
	Description   string
	Receiver      string
	TransactionID EntryID
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SaleTotal is quantity × price.
func SaleTotal(quantity, price decimal.Decimal) decimal.Decimal {
	return quantity.Mul(price)
}

// =============================================================================
// QUERY RESULTS
// =============================================================================

// ProductBalance is a product together with its projected balance.
type ProductBalance struct {
	Product
	Balance Balance
}

// SaleDate summarizes the valid sales recorded on one day.
type SaleDate struct {
	Date  Date
	Count int
	Total decimal.Decimal
}

// DailySales is every sale of one day at one location.
type DailySales struct {
	Date     Date
	Location Location
	Sales    []Sale
	Quantity decimal.Decimal
	Total    decimal.Decimal
}

// Receipt is a sale and the ledger entry it produced.
type Receipt struct {
	Sale  Sale
	Entry Entry
}
