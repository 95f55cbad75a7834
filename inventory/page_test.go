package inventory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/stockbook/inventory"
)

func TestPageRequest_Normalize(t *testing.T) {
	assert.Equal(t, inventory.PageRequest{Page: 1, Limit: 20}, inventory.PageRequest{}.Normalize())
	assert.Equal(t, inventory.PageRequest{Page: 1, Limit: 100}, inventory.PageRequest{Page: -3, Limit: 500}.Normalize())
	assert.Equal(t, inventory.PageRequest{Page: 4, Limit: 5}, inventory.PageRequest{Page: 4, Limit: 5}.Normalize())
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	tests := []struct {
		name  string
		req   inventory.PageRequest
		want  []int
		pages int
	}{
		{"first page", inventory.PageRequest{Page: 1, Limit: 3}, []int{1, 2, 3}, 3},
		{"last partial page", inventory.PageRequest{Page: 3, Limit: 3}, []int{7}, 3},
		{"past the end", inventory.PageRequest{Page: 9, Limit: 3}, []int{}, 3},
		{"page number near int max", inventory.PageRequest{Page: 461168601842738792, Limit: 20}, []int{}, 1},
		{"defaults", inventory.PageRequest{}, items, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := inventory.Paginate(items, tt.req)
			assert.Equal(t, tt.want, page.Items)
			assert.Equal(t, 7, page.Total)
			assert.Equal(t, tt.pages, page.Pages)
		})
	}

	empty := inventory.Paginate([]string(nil), inventory.PageRequest{})
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, 0, empty.Pages)
	assert.NotNil(t, empty.Items)
}
