package inventory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/stockbook/inventory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func entry(product inventory.ProductID, typ inventory.EntryType, qty string, day int) inventory.Entry {
	return inventory.Entry{
		ProductID: product,
		Type:      typ,
		Quantity:  dec(qty),
		Date:      inventory.NewDate(2024, time.March, day),
	}
}

func TestComputeBalance(t *testing.T) {
	p := inventory.Product{ID: "p1", InitialBalance: dec("10")}
	entries := []inventory.Entry{
		entry("p1", inventory.EntryIn, "5", 1),
		entry("p1", inventory.EntryOut, "3", 2),
		entry("p1", inventory.EntryIn, "0.5", 3),
		entry("p1", inventory.EntryOut, "1.25", 4),
	}

	b := inventory.ComputeBalance(p, entries, nil)
	assert.True(t, dec("11.25").Equal(b.Balance), "got %s", b.Balance)
	assert.True(t, dec("15.5").Equal(b.TotalIn), "got %s", b.TotalIn)
	assert.True(t, dec("4.25").Equal(b.TotalOut), "got %s", b.TotalOut)
}

func TestComputeBalance_AsOfIncludesThatDay(t *testing.T) {
	p := inventory.Product{ID: "p1", InitialBalance: dec("10")}
	entries := []inventory.Entry{
		entry("p1", inventory.EntryIn, "5", 1),
		entry("p1", inventory.EntryOut, "3", 2),
		entry("p1", inventory.EntryOut, "4", 3),
	}

	asOf := inventory.NewDate(2024, time.March, 2)
	b := inventory.ComputeBalance(p, entries, &asOf)
	assert.True(t, dec("12").Equal(b.Balance), "got %s", b.Balance)
}

func TestComputeBalance_SkipsOpeningEntryAndNeverClamps(t *testing.T) {
	// GIVEN: An opening entry mirroring the initial balance, and an oversell
	// WHEN: Projecting
	// THEN: The opening entry is not added again and the negative balance is kept

	p := inventory.Product{ID: "p1", InitialBalance: dec("2")}
	opening := entry("p1", inventory.EntryIn, "2", 1)
	opening.Opening = true
	entries := []inventory.Entry{opening, entry("p1", inventory.EntryOut, "5", 2)}

	b := inventory.ComputeBalance(p, entries, nil)
	assert.True(t, dec("-3").Equal(b.Balance), "got %s", b.Balance)
	assert.True(t, dec("2").Equal(b.TotalIn), "got %s", b.TotalIn)
}

func TestComputeBalances_GroupsByProduct(t *testing.T) {
	products := []inventory.Product{
		{ID: "a", Name: "A", InitialBalance: dec("1")},
		{ID: "b", Name: "B", InitialBalance: dec("2")},
	}
	entries := []inventory.Entry{
		entry("a", inventory.EntryIn, "4", 1),
		entry("b", inventory.EntryOut, "1", 1),
		entry("ghost", inventory.EntryIn, "100", 1),
	}

	got := inventory.ComputeBalances(products, entries, nil)
	assert.Len(t, got, 2)
	assert.Equal(t, inventory.ProductID("a"), got[0].ID)
	assert.True(t, dec("5").Equal(got[0].Balance.Balance))
	assert.True(t, dec("1").Equal(got[1].Balance.Balance))
}

func TestTotalMatches(t *testing.T) {
	assert.True(t, inventory.TotalMatches(dec("3"), dec("20"), dec("60")))
	assert.True(t, inventory.TotalMatches(dec("3"), dec("0.1"), dec("0.3000000001")))
	assert.False(t, inventory.TotalMatches(dec("3"), dec("20"), dec("60.01")))
	assert.True(t, dec("7.5").Equal(inventory.SaleTotal(dec("3"), dec("2.5"))))
}
