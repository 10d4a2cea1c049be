package board

import (
	"github.com/shopspring/decimal"

	"restaurant-orders/internal/models"
)

// ListEntry is one row of the flat list view.
type ListEntry struct {
	models.Order
	Total   decimal.Decimal `json:"total"`
	Actions []models.Status `json:"actions"`
	RowState
}

// Column is one kanban column.
type Column struct {
	Status models.Status `json:"status"`
	Label  string        `json:"label"`
	Orders []ListEntry   `json:"orders"`
}

// ToFlatList keeps the collection order and attaches totals, the actions the
// policy allows and any row state.
func ToFlatList(orders []models.Order, rows map[string]RowState, policy TransitionPolicy) []ListEntry {
	out := make([]ListEntry, 0, len(orders))
	for _, o := range orders {
		out = append(out, ListEntry{
			Order:    o,
			Total:    o.Total(),
			Actions:  policy.Actions(o.Status),
			RowState: rows[o.ID],
		})
	}
	return out
}

// ToKanbanColumns partitions entries by status into the fixed column order,
// keeping their relative order inside each column.
func ToKanbanColumns(entries []ListEntry) []Column {
	columns := make([]Column, len(models.Statuses))
	index := make(map[models.Status]int, len(models.Statuses))
	for i, s := range models.Statuses {
		columns[i] = Column{Status: s, Label: s.Label(), Orders: make([]ListEntry, 0)}
		index[s] = i
	}

	for _, e := range entries {
		if i, ok := index[e.Status]; ok {
			columns[i].Orders = append(columns[i].Orders, e)
		}
	}
	return columns
}
