/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types in
  inventory carry no JSON tags; everything leaving the API is mapped here
  so the wire format (camelCase, YYYY-MM-DD dates, decimal strings) is
  decided in one place.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

REQUEST BODIES:
  Most write endpoints decode straight into tracker inputs (they carry
  json and validate tags). The types below cover bodies that differ from
  a tracker input, such as the product id coming from the URL.

SEE ALSO:
  - handlers.go: Uses these types
  - tracker/: Input types decoded from request bodies
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/tracker"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// StockEntryRequest is the body of POST /products/{id}/transactions and
// POST /products/{id}/adjustments.
type StockEntryRequest struct {
	Quantity    decimal.Decimal `json:"quantity"`
	Date        inventory.Date  `json:"date"`
	Description string          `json:"description"`
}

func (r StockEntryRequest) input(id inventory.ProductID) tracker.StockEntryInput {
	return tracker.StockEntryInput{
		ProductID:   id,
		Quantity:    r.Quantity,
		Date:        r.Date,
		Description: r.Description,
	}
}

// LoadScenarioRequest selects a demo dataset.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

type ErrorResponse struct {
	Error   string              `json:"error"`
	Kind    inventory.ErrorKind `json:"kind"`
	Details string              `json:"details,omitempty"`
	Fields  map[string]string   `json:"fields,omitempty"`
}

type LocationsDTO struct {
	Locations []inventory.Location `json:"locations"`
}

// ProductDTO is a product with its projected balance.
type ProductDTO struct {
	ID             inventory.ProductID `json:"id"`
	Name           string              `json:"name"`
	Location       inventory.Location  `json:"location"`
	InitialBalance decimal.Decimal     `json:"initialBalance"`
	Price          decimal.Decimal     `json:"price"`
	DateAdded      inventory.Date      `json:"dateAdded"`
	Balance        decimal.Decimal     `json:"balance"`
	TotalIn        decimal.Decimal     `json:"totalIn"`
	TotalOut       decimal.Decimal     `json:"totalOut"`
	CreatedAt      string              `json:"createdAt"`
	UpdatedAt      string              `json:"updatedAt"`
}

type EntryDTO struct {
	ID          inventory.EntryID   `json:"id"`
	ProductID   inventory.ProductID `json:"productId"`
	Type        inventory.EntryType `json:"type"`
	Quantity    decimal.Decimal     `json:"quantity"`
	Date        inventory.Date      `json:"date"`
	Description string              `json:"description"`
	Opening     bool                `json:"opening,omitempty"`
	CreatedAt   string              `json:"createdAt"`
	UpdatedAt   string              `json:"updatedAt"`
}

type SaleDTO struct {
	ID            inventory.SaleID    `json:"id"`
	ProductID     inventory.ProductID `json:"productId"`
	ProductName   string              `json:"productName"`
	Date          inventory.Date      `json:"date"`
	Location      inventory.Location  `json:"location"`
	Quantity      decimal.Decimal     `json:"quantity"`
	Price         decimal.Decimal     `json:"price"`
	Total         decimal.Decimal     `json:"total"`
	Description   string              `json:"description"`
	Receiver      string              `json:"receiver"`
	TransactionID inventory.EntryID   `json:"transactionId"`
	CreatedAt     string              `json:"createdAt"`
	UpdatedAt     string              `json:"updatedAt"`
}

// ReceiptDTO is a recorded sale and the ledger entry written with it.
type ReceiptDTO struct {
	Sale  SaleDTO  `json:"sale"`
	Entry EntryDTO `json:"entry"`
}

type SaleDateDTO struct {
	Date  inventory.Date  `json:"date"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

// PageDTO wraps one page of a list endpoint.
type PageDTO[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type MismatchDTO struct {
	SaleID  inventory.SaleID  `json:"saleId"`
	EntryID inventory.EntryID `json:"entryId"`
	Reason  string            `json:"reason"`
}

type ConsistencyDTO struct {
	OK               bool          `json:"ok"`
	CheckedAt        string        `json:"checkedAt"`
	DanglingSales    []SaleDTO     `json:"danglingSales"`
	Mismatches       []MismatchDTO `json:"mismatches"`
	NegativeBalances []ProductDTO  `json:"negativeBalances"`
}

// ScenarioDTO describes a demo dataset.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// =============================================================================
// MAPPING
// =============================================================================

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func toProductDTO(pb inventory.ProductBalance) ProductDTO {
	return ProductDTO{
		ID:             pb.ID,
		Name:           pb.Name,
		Location:       pb.Location,
		InitialBalance: pb.InitialBalance,
		Price:          pb.Price,
		DateAdded:      pb.DateAdded,
		Balance:        pb.Balance.Balance,
		TotalIn:        pb.Balance.TotalIn,
		TotalOut:       pb.Balance.TotalOut,
		CreatedAt:      timestamp(pb.CreatedAt),
		UpdatedAt:      timestamp(pb.UpdatedAt),
	}
}

func toProductDTOs(pbs []inventory.ProductBalance) []ProductDTO {
	dtos := make([]ProductDTO, len(pbs))
	for i, pb := range pbs {
		dtos[i] = toProductDTO(pb)
	}
	return dtos
}

func toEntryDTO(e inventory.Entry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		ProductID:   e.ProductID,
		Type:        e.Type,
		Quantity:    e.Quantity,
		Date:        e.Date,
		Description: e.Description,
		Opening:     e.Opening,
		CreatedAt:   timestamp(e.CreatedAt),
		UpdatedAt:   timestamp(e.UpdatedAt),
	}
}

func toEntryDTOs(entries []inventory.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

func toSaleDTO(s inventory.Sale) SaleDTO {
	return SaleDTO{
		ID:            s.ID,
		ProductID:     s.ProductID,
		ProductName:   s.ProductName,
		Date:          s.Date,
		Location:      s.Location,
		Quantity:      s.Quantity,
		Price:         s.Price,
		Total:         s.Total,
		Description:   s.Description,
		Receiver:      s.Receiver,
		TransactionID: s.TransactionID,
		CreatedAt:     timestamp(s.CreatedAt),
		UpdatedAt:     timestamp(s.UpdatedAt),
	}
}

func toSaleDTOs(sales []inventory.Sale) []SaleDTO {
	dtos := make([]SaleDTO, len(sales))
	for i, s := range sales {
		dtos[i] = toSaleDTO(s)
	}
	return dtos
}

func toReceiptDTO(r inventory.Receipt) ReceiptDTO {
	return ReceiptDTO{Sale: toSaleDTO(r.Sale), Entry: toEntryDTO(r.Entry)}
}

func toReceiptDTOs(receipts []inventory.Receipt) []ReceiptDTO {
	dtos := make([]ReceiptDTO, len(receipts))
	for i, r := range receipts {
		dtos[i] = toReceiptDTO(r)
	}
	return dtos
}

func toSaleDateDTOs(dates []inventory.SaleDate) []SaleDateDTO {
	dtos := make([]SaleDateDTO, len(dates))
	for i, d := range dates {
		dtos[i] = SaleDateDTO{Date: d.Date, Count: d.Count, Total: d.Total}
	}
	return dtos
}

func toPageDTO[T, D any](p inventory.Page[T], convert func([]T) []D) PageDTO[D] {
	return PageDTO[D]{
		Items: convert(p.Items),
		Total: p.Total,
		Page:  p.Page,
		Limit: p.Limit,
		Pages: p.Pages,
	}
}

func toConsistencyDTO(r *tracker.ConsistencyReport) ConsistencyDTO {
	mismatches := make([]MismatchDTO, len(r.Mismatches))
	for i, m := range r.Mismatches {
		mismatches[i] = MismatchDTO{SaleID: m.SaleID, EntryID: m.EntryID, Reason: m.Reason}
	}
	return ConsistencyDTO{
		OK:               r.OK(),
		CheckedAt:        timestamp(r.CheckedAt),
		DanglingSales:    toSaleDTOs(r.DanglingSales),
		Mismatches:       mismatches,
		NegativeBalances: toProductDTOs(r.NegativeBalances),
	}
}
