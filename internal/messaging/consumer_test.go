package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/models"
)

func TestDecodeOrderEvent(t *testing.T) {
	ev := models.OrderEvent{
		EventID:      "e1",
		Type:         models.EventInsert,
		RestaurantID: "r1",
		OccurredAt:   time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC),
		Order: models.Order{
			ID:           "o1",
			RestaurantID: "r1",
			Status:       models.StatusNew,
			Items:        []models.LineItem{{MenuItemID: "m1", Name: "Soup", Price: decimal.NewFromInt(450), Quantity: 2}},
		},
	}
	body, err := json.Marshal(ev)
	require.NoError(t, err)

	got, err := DecodeOrderEvent(body)
	require.NoError(t, err)
	assert.Equal(t, "o1", got.Order.ID)
	assert.Equal(t, models.EventInsert, got.Type)
	assert.True(t, got.Order.Items[0].Price.Equal(decimal.NewFromInt(450)))
}

func TestDecodeOrderEvent_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `nope`},
		{name: "unknown type", body: `{"type":"TRUNCATE","restaurant_id":"r1","order":{"id":"o1"}}`},
		{name: "missing order id", body: `{"type":"INSERT","restaurant_id":"r1","order":{}}`},
		{name: "missing restaurant", body: `{"type":"INSERT","order":{"id":"o1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOrderEvent([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}
