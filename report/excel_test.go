package report_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/stockbook/inventory"
	"github.com/warp/stockbook/report"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func open(t *testing.T, buf *bytes.Buffer) *excelize.File {
	t.Helper()
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestWriteDailySales(t *testing.T) {
	// GIVEN: Two sales on one day
	// WHEN: Writing the daily workbook and reading it back
	// THEN: Header, one row per sale and a totals row are present

	day := inventory.DailySales{
		Date:     inventory.NewDate(2024, time.March, 10),
		Location: "Main Store",
		Sales: []inventory.Sale{
			{ProductName: "Rice", Quantity: dec("3"), Price: dec("2.5"), Total: dec("7.5"), Receiver: "Ana"},
			{ProductName: "Beans", Quantity: dec("1"), Price: dec("4"), Total: dec("4"), Description: "Staff lunch"},
		},
		Quantity: dec("4"),
		Total:    dec("11.5"),
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteDailySales(&buf, day))

	f := open(t, &buf)
	assert.Equal(t, []string{report.SalesSheet}, f.GetSheetList())

	rows, err := f.GetRows(report.SalesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"Product", "Quantity", "Price", "Total", "Receiver", "Description"}, rows[0])
	assert.Equal(t, []string{"Rice", "3", "2.5", "7.5", "Ana"}, rows[1][:5])
	assert.Equal(t, []string{"Beans", "1", "4", "4", "", "Staff lunch"}, rows[2])
	assert.Equal(t, "Total", rows[3][0])
	assert.Equal(t, "4", rows[3][1])
	assert.Equal(t, "11.5", rows[3][3])

	props, err := f.GetDocProps()
	require.NoError(t, err)
	assert.Equal(t, "Main Store 2024-03-10", props.Title)
}

func TestWriteDailySales_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteDailySales(&buf, inventory.DailySales{
		Date:     inventory.NewDate(2024, time.March, 10),
		Location: "Kiosk",
	}))

	rows, err := open(t, &buf).GetRows(report.SalesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Total", rows[1][0])
	assert.Equal(t, "0", rows[1][1])
}

func TestWriteStockSummary(t *testing.T) {
	products := []inventory.ProductBalance{
		{
			Product: inventory.Product{Name: "Rice", Location: "Main Store", InitialBalance: dec("10"), Price: dec("2")},
			Balance: inventory.Balance{TotalIn: dec("15"), TotalOut: dec("3"), Balance: dec("12")},
		},
		{
			Product: inventory.Product{Name: "Crate", Location: "Warehouse", InitialBalance: dec("0"), Price: dec("1.5")},
			Balance: inventory.Balance{TotalIn: dec("0"), TotalOut: dec("0"), Balance: dec("0")},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteStockSummary(&buf, "Stock 2024-03-10", products))

	f := open(t, &buf)
	rows, err := f.GetRows(report.StockSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Product", "Location", "Initial", "In", "Out", "Balance", "Price", "Value"}, rows[0])
	assert.Equal(t, []string{"Rice", "Main Store", "10", "5", "3", "12", "2", "24"}, rows[1])
	assert.Equal(t, []string{"Crate", "Warehouse", "0", "0", "0", "0", "1.5", "0"}, rows[2])
}
