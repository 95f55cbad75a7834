/*
errors.go - Error taxonomy for the inventory ledger

PURPOSE:
  All error types in one place. Every failure a caller can see maps to one
  machine-checkable ErrorKind, so transports can pick a status code without
  string matching.

ERROR CATEGORIES:
  1. Validation        - Malformed input, unknown location, linked-entry edits
  2. Not found         - Missing product, entry or sale
  3. Insufficient stock - An "out" movement larger than the balance
  4. Conflict          - Lock contention, serialization failure, duplicates
  5. Partial batch     - Not an error: BulkDeleteResult reports per-item outcomes

SEE ALSO:
  - tracker/: Produces these errors
  - api/errors.go: Maps ErrorKind to HTTP status
*/
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when input is malformed. Nothing was written.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned when an outgoing movement exceeds the balance.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrConcurrentModification is returned when a product lock could not be
	// obtained or the database aborted a transaction to keep it serializable.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicate is returned when a record with the same id already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStoreRequired is returned when an operation requires a store capability
	// the configured backend lacks.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes rejected input. Fields maps field names to the
// rule they broke when several fields failed at once.
type ValidationError struct {
	Field   string
	Message string
	Fields  map[string]string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 && e.Message == "" {
		names := make([]string, 0, len(e.Fields))
		for name, rule := range e.Fields {
			names = append(names, name+" ("+rule+")")
		}
		sort.Strings(names)
		return "invalid fields: " + strings.Join(names, ", ")
	}
	if e.Field != "" {
		return e.Field + ": " + e.Message
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the missing record.
type NotFoundError struct {
	Resource string // "product", "entry", "sale"
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

func ProductNotFound(id ProductID) error { return &NotFoundError{Resource: "product", ID: string(id)} }
func EntryNotFound(id EntryID) error     { return &NotFoundError{Resource: "entry", ID: string(id)} }
func SaleNotFound(id SaleID) error       { return &NotFoundError{Resource: "sale", ID: string(id)} }

// InsufficientStockError provides details about a stock shortage.
type InsufficientStockError struct {
	ProductID   ProductID
	ProductName string
	Available   decimal.Decimal
	Requested   decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %s, requested %s",
		e.ProductName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// =============================================================================
// ERROR KINDS
// =============================================================================

type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientStock ErrorKind = "insufficient_stock"
	KindConflict          ErrorKind = "conflict"
	KindInternal          ErrorKind = "internal"
)

// Kind classifies err. Unknown errors are internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrConcurrentModification), errors.Is(err, ErrDuplicate):
		return KindConflict
	default:
		return KindInternal
	}
}

// =============================================================================
// PARTIAL BATCH RESULTS
// =============================================================================

// ItemError is the failure of one item inside a bulk operation.
type ItemError struct {
	ID      string    `json:"id"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// BulkDeleteResult reports a bulk delete where items fail independently.
// Callers must inspect Errors to learn the true outcome.
type BulkDeleteResult struct {
	DeletedCount int         `json:"deletedCount"`
	Errors       []ItemError `json:"errors"`
}

func (r *BulkDeleteResult) fail(id string, err error) {
	r.Errors = append(r.Errors, ItemError{ID: id, Kind: Kind(err), Message: err.Error()})
}

// Record adds the outcome of deleting one item.
func (r *BulkDeleteResult) Record(id string, err error) {
	if err != nil {
		r.fail(id, err)
		return
	}
	r.DeletedCount++
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
