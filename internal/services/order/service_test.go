package order

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"restaurant-orders/internal/cart"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/order/internal/validation"
	"restaurant-orders/internal/testutil"
)

var (
	soup  = cart.MenuItem{MenuItemID: "A", Name: "Soup", Price: decimal.NewFromInt(450)}
	bread = cart.MenuItem{MenuItemID: "B", Name: "Bread", Price: decimal.NewFromInt(890)}
)

func newTestService(opts Options) (*Service, *testutil.MemoryStore, *testutil.Bus) {
	if opts.MaxLineItems == 0 {
		opts.MaxLineItems = 50
	}
	store := testutil.NewMemoryStore()
	bus := testutil.NewBus()
	return NewService(store, bus, logger.Discard(), opts), store, bus
}

func filledCart() *cart.Cart {
	c := cart.New()
	c.Add(soup)
	c.Add(soup)
	c.Add(bread)
	return c
}

func TestService_SubmitPersistsAndClears(t *testing.T) {
	ctx := context.Background()
	svc, store, bus := newTestService(Options{})
	c := filledCart()

	order, err := svc.Submit(ctx, "r1", c, Details{GuestName: "  Ann ", TableNumber: "4", Comment: "   "}, "req")
	require.NoError(t, err)

	assert.Equal(t, models.StatusNew, order.Status)
	assert.Equal(t, "r1", order.RestaurantID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, models.LineItem{MenuItemID: "A", Name: "Soup", Price: decimal.NewFromInt(450), Quantity: 2}, order.Items[0])
	assert.True(t, order.Total().Equal(decimal.NewFromInt(1790)))
	assert.Equal(t, "Ann", *order.GuestName)
	assert.Equal(t, "4", *order.TableNumber)
	assert.Nil(t, order.Comment)

	assert.Empty(t, c.Entries())
	assert.Equal(t, 1, store.Inserts)

	events := bus.Published()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventInsert, events[0].Type)
	assert.Equal(t, order.ID, events[0].Order.ID)
	assert.Equal(t, "orders.r1.insert", events[0].RoutingKey())
}

func TestService_StoreFailureLeavesCartUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store, bus := newTestService(Options{})
	store.FailInsert(errors.New("connection refused"))
	c := filledCart()
	before := c.Entries()

	_, err := svc.Submit(ctx, "r1", c, Details{}, "req")
	require.ErrorIs(t, err, ErrSubmissionFailed)
	assert.Contains(t, err.Error(), "couldn't submit order, please try again")

	assert.Equal(t, before, c.Entries())
	assert.Empty(t, bus.Published())

	store.FailInsert(nil)
	order, err := svc.Submit(ctx, "r1", c, Details{}, "req")
	require.NoError(t, err)
	assert.Len(t, order.Items, 2)
	assert.Empty(t, c.Entries())
}

func TestService_EmptyCartIsRejected(t *testing.T) {
	svc, store, _ := newTestService(Options{})

	_, err := svc.Submit(context.Background(), "r1", cart.New(), Details{}, "req")
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.Equal(t, 0, store.Inserts)
}

func TestService_ValidationFailureKeepsCart(t *testing.T) {
	svc, store, _ := newTestService(Options{MaxLineItems: 1})
	c := filledCart()

	_, err := svc.Submit(context.Background(), "r1", c, Details{}, "req")
	var vErr validation.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "items", vErr.Field)
	assert.Len(t, c.Entries(), 2)
	assert.Equal(t, 0, store.Inserts)
}

func TestService_SnapshotIsImmutable(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(Options{})
	c := filledCart()

	order, err := svc.Submit(ctx, "r1", c, Details{}, "req")
	require.NoError(t, err)

	c.Add(cart.MenuItem{MenuItemID: "A", Name: "Soup (new recipe)", Price: decimal.NewFromInt(999)})
	c.UpdateQuantity("A", 7)

	stored, err := store.Get(ctx, "r1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Soup", stored.Items[0].Name)
	assert.True(t, stored.Items[0].Price.Equal(decimal.NewFromInt(450)))
	assert.Equal(t, 2, stored.Items[0].Quantity)
}

func TestService_PublishFailureStillSucceeds(t *testing.T) {
	svc, store, bus := newTestService(Options{})
	bus.FailPublish(errors.New("broker down"))
	c := filledCart()

	order, err := svc.Submit(context.Background(), "r1", c, Details{}, "req")
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, 1, store.Inserts)
	assert.Empty(t, c.Entries())
}

func TestService_SubmissionToken(t *testing.T) {
	ctx := context.Background()

	t.Run("idempotent when enabled", func(t *testing.T) {
		svc, store, bus := newTestService(Options{IdempotentSubmissions: true})

		first, err := svc.Submit(ctx, "r1", filledCart(), Details{SubmissionToken: "tok"}, "req")
		require.NoError(t, err)
		second, err := svc.Submit(ctx, "r1", filledCart(), Details{SubmissionToken: "tok"}, "req")
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 1, store.Inserts)
		assert.Len(t, bus.Published(), 1)
	})

	t.Run("scoped to the restaurant", func(t *testing.T) {
		svc, store, bus := newTestService(Options{IdempotentSubmissions: true})

		first, err := svc.Submit(ctx, "r1", filledCart(), Details{GuestName: "Ann", SubmissionToken: "tok"}, "req")
		require.NoError(t, err)
		second, err := svc.Submit(ctx, "r2", filledCart(), Details{SubmissionToken: "tok"}, "req")
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, "r2", second.RestaurantID)
		assert.Nil(t, second.GuestName)
		assert.Equal(t, 2, store.Inserts)
		assert.Len(t, bus.Published(), 2)
	})

	t.Run("ignored when disabled", func(t *testing.T) {
		svc, store, _ := newTestService(Options{})

		first, err := svc.Submit(ctx, "r1", filledCart(), Details{SubmissionToken: "tok"}, "req")
		require.NoError(t, err)
		second, err := svc.Submit(ctx, "r1", filledCart(), Details{SubmissionToken: "tok"}, "req")
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.Equal(t, 2, store.Inserts)
	})
}
