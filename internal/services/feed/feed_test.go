package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/board"
	"restaurant-orders/internal/testutil"
)

const waitFor = 2 * time.Second

type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) Alert(o models.Order) {
	a.mu.Lock()
	a.alerts = append(a.alerts, o.ID)
	a.mu.Unlock()
}

func (a *recordingAlerter) IDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

type harness struct {
	store   *testutil.MemoryStore
	bus     *testutil.Bus
	board   *board.Board
	alerter *recordingAlerter
	feed    *Feed
	cancel  context.CancelFunc
	done    chan error
}

func startFeed(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		store:   testutil.NewMemoryStore(),
		bus:     testutil.NewBus(),
		alerter: &recordingAlerter{},
		done:    make(chan error, 1),
	}
	h.store.Put(models.Order{RestaurantID: "r1", Items: []models.LineItem{{MenuItemID: "A", Name: "Soup", Price: decimal.NewFromInt(450), Quantity: 1}}})
	h.board = board.New("r1", h.store, h.bus, board.PolicyStrict, logger.Discard())
	h.feed = New("r1", h.store, h.bus, h.board, h.alerter, logger.Discard(), opts)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.feed.Run(ctx) }()

	select {
	case <-h.feed.Ready():
	case <-time.After(waitFor):
		t.Fatal("feed never became ready")
	}
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("feed did not stop")
	}
}

// insert persists an order and publishes it the way the submission service does.
func (h *harness) insert(t *testing.T, restaurantID string) models.Order {
	t.Helper()
	o, _, err := h.store.Insert(context.Background(), models.NewOrder{
		RestaurantID: restaurantID,
		Items:        []models.LineItem{{MenuItemID: "B", Name: "Bread", Price: decimal.NewFromInt(890), Quantity: 1}},
	})
	require.NoError(t, err)
	require.NoError(t, h.bus.PublishOrderEvent(context.Background(), models.OrderEvent{
		Type: models.EventInsert, RestaurantID: restaurantID, Order: o,
	}))
	return o
}

func TestFeed_InsertLandsFirstAndAlertsOnce(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ReconnectBackoff: 10 * time.Millisecond})
	defer h.stop(t)

	require.Len(t, h.board.Orders(), 1)
	o := h.insert(t, "r1")

	require.Eventually(t, func() bool {
		orders := h.board.Orders()
		return len(orders) == 2 && orders[0].ID == o.ID
	}, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(h.alerter.IDs()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{o.ID}, h.alerter.IDs())

	// Redelivery of the same insert neither duplicates the row nor alerts again.
	require.NoError(t, h.bus.PublishOrderEvent(context.Background(), models.OrderEvent{
		Type: models.EventInsert, RestaurantID: "r1", Order: o,
	}))
	h.insert(t, "r2")
	last := h.insert(t, "r1")

	require.Eventually(t, func() bool { return len(h.alerter.IDs()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Len(t, h.board.Orders(), 3)
	assert.Equal(t, []string{o.ID, last.ID}, h.alerter.IDs())
}

func TestFeed_UpdatesFromOtherDashboards(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ReconnectBackoff: 10 * time.Millisecond})
	defer h.stop(t)

	seeded := h.board.Orders()[0]
	updated, err := h.store.UpdateStatus(context.Background(), "r1", seeded.ID, models.StatusInProgress)
	require.NoError(t, err)
	require.NoError(t, h.bus.PublishOrderEvent(context.Background(), models.OrderEvent{
		Type: models.EventUpdate, RestaurantID: "r1", Order: updated,
	}))

	require.Eventually(t, func() bool {
		return h.board.Orders()[0].Status == models.StatusInProgress
	}, waitFor, 5*time.Millisecond)
	assert.Empty(t, h.alerter.IDs())
}

func TestFeed_ReconnectsAndReseedsAfterDrop(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ReconnectBackoff: 10 * time.Millisecond})
	defer h.stop(t)

	h.bus.Drop()

	// Written while no subscription exists; only the reload can pick it up.
	missed, _, err := h.store.Insert(context.Background(), models.NewOrder{
		RestaurantID: "r1",
		Items:        []models.LineItem{{MenuItemID: "C", Name: "Tea", Price: decimal.NewFromInt(100), Quantity: 1}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		orders := h.board.Orders()
		return len(orders) == 2 && orders[0].ID == missed.ID && h.bus.Active() == 1
	}, waitFor, 5*time.Millisecond)

	o := h.insert(t, "r1")
	require.Eventually(t, func() bool { return h.board.Orders()[0].ID == o.ID }, waitFor, 5*time.Millisecond)
}

func TestFeed_RetriesWhenSubscribeFails(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ReconnectBackoff: 10 * time.Millisecond})
	defer h.stop(t)

	h.bus.FailSubscribe(errors.New("broker unreachable"))
	h.bus.Drop()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, h.bus.Active())

	h.bus.FailSubscribe(nil)
	require.Eventually(t, func() bool { return h.bus.Active() == 1 }, waitFor, 5*time.Millisecond)
}

func TestFeed_PeriodicResync(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ResyncInterval: 20 * time.Millisecond, ReconnectBackoff: 10 * time.Millisecond})
	defer h.stop(t)

	// No event is published for this write.
	silent, _, err := h.store.Insert(context.Background(), models.NewOrder{
		RestaurantID: "r1",
		Items:        []models.LineItem{{MenuItemID: "D", Name: "Pie", Price: decimal.NewFromInt(300), Quantity: 1}},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		orders := h.board.Orders()
		return len(orders) == 2 && orders[0].ID == silent.ID
	}, waitFor, 5*time.Millisecond)
	assert.Empty(t, h.alerter.IDs(), "resync does not alert")
}

func TestFeed_TeardownStopsEverything(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ResyncInterval: 10 * time.Millisecond, ReconnectBackoff: 10 * time.Millisecond})

	h.board.Close()
	h.stop(t)

	require.Eventually(t, func() bool { return h.bus.Active() == 0 }, waitFor, 5*time.Millisecond)

	// Events after teardown have nowhere to go and raise no alert.
	h.insert(t, "r1")
	assert.Empty(t, h.alerter.IDs())
	assert.Len(t, h.board.Orders(), 1)
}

func TestFeed_StaleEventAfterBoardClosed(t *testing.T) {
	defer goleak.VerifyNone(t)
	h := startFeed(t, Options{ReconnectBackoff: 10 * time.Millisecond})
	defer h.stop(t)

	h.board.Close()
	h.insert(t, "r1")
	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, h.alerter.IDs())
	assert.Len(t, h.board.Orders(), 1)
}
