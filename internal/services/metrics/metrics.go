// Package metrics derives dashboard statistics from an order collection.
package metrics

import (
	"sort"

	"github.com/shopspring/decimal"

	"restaurant-orders/internal/models"
)

// TopItemsLimit is how many best sellers Stats reports.
const TopItemsLimit = 5

// TopItem is one best seller, aggregated by menu item id.
type TopItem struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Quantity   int    `json:"qty"`
}

// Stats is always recomputed from the orders; it is never stored.
type Stats struct {
	OrderCount        int             `json:"orderCount"`
	TotalRevenue      decimal.Decimal `json:"totalRevenue"`
	AverageOrderValue decimal.Decimal `json:"averageOrderValue"`
	TopItems          []TopItem       `json:"topItems"`
}

// Compute aggregates over the orders that count: not cancelled and with
// every line item well formed. The average is rounded half away from zero
// to whole currency units and is 0 when nothing counts. Top items are
// ordered by quantity descending; ties keep first-seen order.
func Compute(orders []models.Order) Stats {
	stats := Stats{
		TotalRevenue:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
		TopItems:          make([]TopItem, 0, TopItemsLimit),
	}

	var ranking []*TopItem
	byID := make(map[string]*TopItem)

	for _, o := range orders {
		if !Counts(o) {
			continue
		}
		stats.OrderCount++
		for _, li := range o.Items {
			stats.TotalRevenue = stats.TotalRevenue.Add(li.Subtotal())

			top, ok := byID[li.MenuItemID]
			if !ok {
				top = &TopItem{MenuItemID: li.MenuItemID, Name: li.Name}
				byID[li.MenuItemID] = top
				ranking = append(ranking, top)
			}
			top.Quantity += li.Quantity
		}
	}

	if stats.OrderCount > 0 {
		stats.AverageOrderValue = stats.TotalRevenue.
			Div(decimal.NewFromInt(int64(stats.OrderCount))).
			Round(0)
	}

	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Quantity > ranking[j].Quantity
	})
	for i := 0; i < len(ranking) && i < TopItemsLimit; i++ {
		stats.TopItems = append(stats.TopItems, *ranking[i])
	}

	return stats
}

// Counts reports whether an order contributes to the statistics.
func Counts(o models.Order) bool {
	return o.Status != models.StatusCancelled && !o.ItemsMalformed
}
