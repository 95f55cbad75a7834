/*
excel.go - Spreadsheet exports

PURPOSE:
  Renders query results as .xlsx workbooks for download: the sales of one
  day and a stock summary. The workbooks are read-only snapshots; nothing
  here touches the ledger.

LAYOUT:
  Row 1 is a bold header. Data rows follow. WriteDailySales appends a bold
  totals row.

SEE ALSO:
  - tracker/queries.go: SalesForDate and ListProductsWithBalance feed these
  - api/handlers.go: Streams the workbook as an attachment
*/
package report

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/warp/stockbook/inventory"
	"github.com/xuri/excelize/v2"
)

// ContentType is the MIME type of the workbooks written here.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	SalesSheet = "Sales"
	StockSheet = "Stock"
)

var (
	salesHeader = []string{"Product", "Quantity", "Price", "Total", "Receiver", "Description"}
	stockHeader = []string{"Product", "Location", "Initial", "In", "Out", "Balance", "Price", "Value"}
)

// =============================================================================
// DAILY SALES
// =============================================================================

// WriteDailySales writes one row per sale plus a totals row.
func WriteDailySales(w io.Writer, day inventory.DailySales) error {
	f, err := newWorkbook(SalesSheet)
	if err != nil {
		return err
	}
	defer f.Close()

	title := fmt.Sprintf("%s %s", day.Location, day.Date)
	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "stockbook"}); err != nil {
		return err
	}

	bold, err := writeHeader(f, SalesSheet, salesHeader)
	if err != nil {
		return err
	}

	row := 2
	for _, s := range day.Sales {
		values := []any{
			s.ProductName,
			number(s.Quantity),
			number(s.Price),
			number(s.Total),
			s.Receiver,
			s.Description,
		}
		if err := writeRow(f, SalesSheet, row, values); err != nil {
			return err
		}
		row++
	}

	totals := []any{"Total", number(day.Quantity), nil, number(day.Total)}
	if err := writeRow(f, SalesSheet, row, totals); err != nil {
		return err
	}
	if err := styleRow(f, SalesSheet, row, len(salesHeader), bold); err != nil {
		return err
	}

	return f.Write(w)
}

// =============================================================================
// STOCK SUMMARY
// =============================================================================

// WriteStockSummary writes one row per product. Value is balance × price.
func WriteStockSummary(w io.Writer, title string, products []inventory.ProductBalance) error {
	f, err := newWorkbook(StockSheet)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "stockbook"}); err != nil {
		return err
	}
	if _, err := writeHeader(f, StockSheet, stockHeader); err != nil {
		return err
	}

	for i, pb := range products {
		values := []any{
			pb.Name,
			string(pb.Location),
			number(pb.InitialBalance),
			number(pb.Balance.TotalIn.Sub(pb.InitialBalance)),
			number(pb.Balance.TotalOut),
			number(pb.Balance.Balance),
			number(pb.Price),
			number(pb.Balance.Balance.Mul(pb.Price)),
		}
		if err := writeRow(f, StockSheet, i+2, values); err != nil {
			return err
		}
	}

	return f.Write(w)
}

// =============================================================================
// HELPERS
// =============================================================================

func newWorkbook(sheet string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// writeHeader writes a bold header row and returns the bold style id.
func writeHeader(f *excelize.File, sheet string, header []string) (int, error) {
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, err
	}
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := writeRow(f, sheet, 1, values); err != nil {
		return 0, err
	}
	if err := styleRow(f, sheet, 1, len(header), bold); err != nil {
		return 0, err
	}
	return bold, f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(cols, row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, first, last, style)
}

// number converts for display. Spreadsheet cells are floats anyway.
func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
