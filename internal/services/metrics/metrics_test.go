package metrics

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/models"
)

func li(id string, price int64, qty int) models.LineItem {
	return models.LineItem{MenuItemID: id, Name: "item " + id, Price: decimal.NewFromInt(price), Quantity: qty}
}

func TestCompute_ExcludesCancelledAndMalformed(t *testing.T) {
	orders := []models.Order{
		{ID: "1", Status: models.StatusNew, Items: []models.LineItem{li("A", 300, 1)}},
		{ID: "2", Status: models.StatusDone, Items: []models.LineItem{li("B", 500, 1)}},
		{ID: "3", Status: models.StatusCancelled, Items: []models.LineItem{li("C", 1000, 1)}},
		{ID: "4", Status: models.StatusNew, Items: []models.LineItem{li("D", 700, 1)}, ItemsMalformed: true},
	}

	stats := Compute(orders)
	assert.Equal(t, 2, stats.OrderCount)
	assert.True(t, stats.TotalRevenue.Equal(decimal.NewFromInt(800)), stats.TotalRevenue.String())
	assert.True(t, stats.AverageOrderValue.Equal(decimal.NewFromInt(400)))
}

func TestCompute_TopItems(t *testing.T) {
	orders := []models.Order{
		{ID: "1", Status: models.StatusNew, Items: []models.LineItem{li("A", 1, 2), li("B", 1, 3)}},
		{ID: "2", Status: models.StatusNew, Items: []models.LineItem{li("B", 1, 2)}},
	}

	stats := Compute(orders)
	require.Len(t, stats.TopItems, 2)
	assert.Equal(t, TopItem{MenuItemID: "B", Name: "item B", Quantity: 5}, stats.TopItems[0])
	assert.Equal(t, TopItem{MenuItemID: "A", Name: "item A", Quantity: 2}, stats.TopItems[1])
}

func TestCompute_TopItemsLimitAndTies(t *testing.T) {
	var items []models.LineItem
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		items = append(items, li(id, 1, 1))
	}
	items = append(items, li("g", 1, 1))

	stats := Compute([]models.Order{{ID: "1", Status: models.StatusDone, Items: items}})
	require.Len(t, stats.TopItems, TopItemsLimit)
	assert.Equal(t, "g", stats.TopItems[0].MenuItemID)
	assert.Equal(t, []string{"a", "b", "c", "d"}, []string{
		stats.TopItems[1].MenuItemID, stats.TopItems[2].MenuItemID,
		stats.TopItems[3].MenuItemID, stats.TopItems[4].MenuItemID,
	})
}

func TestCompute_AverageRounding(t *testing.T) {
	tests := []struct {
		name   string
		prices []int64
		want   int64
	}{
		{name: "half rounds up", prices: []int64{1, 2}, want: 2},
		{name: "below half rounds down", prices: []int64{1, 1, 2}, want: 1},
		{name: "exact", prices: []int64{300, 500}, want: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var orders []models.Order
			for i, p := range tt.prices {
				orders = append(orders, models.Order{ID: string(rune('a' + i)), Status: models.StatusNew, Items: []models.LineItem{li("x", p, 1)}})
			}
			stats := Compute(orders)
			assert.True(t, stats.AverageOrderValue.Equal(decimal.NewFromInt(tt.want)), stats.AverageOrderValue.String())
		})
	}
}

func TestCompute_Empty(t *testing.T) {
	stats := Compute(nil)
	assert.Equal(t, 0, stats.OrderCount)
	assert.True(t, stats.TotalRevenue.IsZero())
	assert.True(t, stats.AverageOrderValue.IsZero())
	assert.NotNil(t, stats.TopItems)
	assert.Empty(t, stats.TopItems)

	onlyCancelled := Compute([]models.Order{{ID: "1", Status: models.StatusCancelled, Items: []models.LineItem{li("A", 5, 1)}}})
	assert.Equal(t, 0, onlyCancelled.OrderCount)
	assert.True(t, onlyCancelled.AverageOrderValue.IsZero())
}

func TestCompute_FractionalPrices(t *testing.T) {
	orders := []models.Order{
		{ID: "1", Status: models.StatusNew, Items: []models.LineItem{
			{MenuItemID: "t", Name: "Tea", Price: decimal.RequireFromString("2.50"), Quantity: 3},
		}},
	}
	stats := Compute(orders)
	assert.True(t, stats.TotalRevenue.Equal(decimal.RequireFromString("7.5")))
	assert.True(t, stats.AverageOrderValue.Equal(decimal.NewFromInt(8)))
}
