package dashboard

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/feed"
	"restaurant-orders/internal/testutil"
)

func TestManager_ShutdownLeavesNoGoroutines(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := testutil.NewMemoryStore()
	bus := testutil.NewBus()
	m := NewManager(store, bus, bus, logger.Discard(), Options{
		Feed:       feed.Options{ResyncInterval: 5 * time.Millisecond, ReconnectBackoff: 5 * time.Millisecond},
		SessionTTL: time.Hour,
	})

	for _, rid := range []string{"r1", "r1", "r2"} {
		_, _, err := m.Open(context.Background(), rid, "")
		require.NoError(t, err)
	}
	assert.Equal(t, 3, m.Len())

	m.Shutdown()
	assert.Equal(t, 0, m.Len())
}

func TestView_StaleEventsAfterCloseAreDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := testutil.NewMemoryStore()
	bus := testutil.NewBus()

	var mu sync.Mutex
	var alerts []string
	m := NewManager(store, bus, bus, logger.Discard(), Options{
		Feed:       feed.Options{ReconnectBackoff: 5 * time.Millisecond},
		SessionTTL: time.Hour,
		Alerter: feed.AlerterFunc(func(o models.Order) {
			mu.Lock()
			alerts = append(alerts, o.ID)
			mu.Unlock()
		}),
	})
	defer m.Shutdown()

	sid, v, err := m.Open(context.Background(), "r1", "")
	require.NoError(t, err)
	events, _ := v.Subscribe()

	require.NoError(t, m.Close(sid))

	_, ok := <-events
	assert.False(t, ok, "client stream closed with the view")

	require.NoError(t, bus.PublishOrderEvent(context.Background(), models.OrderEvent{
		Type:         models.EventInsert,
		RestaurantID: "r1",
		Order:        models.Order{ID: "late", RestaurantID: "r1", Status: models.StatusNew},
	}))

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, alerts)
	assert.Empty(t, v.Board.Orders())

	late, cancel := v.Subscribe()
	cancel()
	_, ok = <-late
	assert.False(t, ok)
}
