//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	dbadapter "restaurant-orders/internal/adapter/db"
	"restaurant-orders/internal/cart"
	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/models"
	"restaurant-orders/internal/services/board"
	"restaurant-orders/internal/services/dashboard"
	"restaurant-orders/internal/services/feed"
	"restaurant-orders/internal/services/metrics"
	"restaurant-orders/internal/services/order"
)

func TestOrderPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	log := logger.Discard()

	pgC, dbURL := startPostgres(ctx, t)
	defer terminateContainer(t, pgC)

	rabbitC, rabbitURL := startRabbitMQ(ctx, t)
	defer terminateContainer(t, rabbitC)

	db, err := database.New(ctx, dbURL, log)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, database.RunMigrations(dbURL, log))

	conn, err := messaging.New(ctx, rabbitURL, log)
	require.NoError(t, err)
	defer conn.Close()

	repo := dbadapter.NewOrderRepository(db.Pool)
	publisher := messaging.NewPublisher(conn, log)
	subscriber := messaging.NewSubscriber(conn, log)

	manager := dashboard.NewManager(repo, subscriber, publisher, log, dashboard.Options{
		Policy:     board.PolicyStrict,
		Feed:       feed.Options{ReconnectBackoff: 200 * time.Millisecond},
		SessionTTL: time.Hour,
	})
	defer manager.Shutdown()

	sid, view, err := manager.Open(ctx, "r1", "")
	require.NoError(t, err)
	require.Empty(t, view.Board.Orders())

	svc := order.NewService(repo, publisher, log, order.Options{IdempotentSubmissions: true, MaxLineItems: 50})

	c := cart.New()
	c.Add(cart.MenuItem{MenuItemID: "A", Name: "Soup", Price: decimal.NewFromInt(450)})
	c.Add(cart.MenuItem{MenuItemID: "A", Name: "Soup", Price: decimal.NewFromInt(450)})
	c.Add(cart.MenuItem{MenuItemID: "B", Name: "Bread", Price: decimal.RequireFromString("8.90")})

	placed, err := svc.Submit(ctx, "r1", c, order.Details{TableNumber: " 4 ", SubmissionToken: "tok-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusNew, placed.Status)
	assert.Equal(t, "4", *placed.TableNumber)
	assert.Nil(t, placed.GuestName)
	assert.Zero(t, c.Count())

	require.Eventually(t, func() bool {
		orders := view.Board.Orders()
		return len(orders) == 1 && orders[0].ID == placed.ID
	}, 10*time.Second, 50*time.Millisecond)

	// A retried submit with the same token does not create a second order.
	c.Add(cart.MenuItem{MenuItemID: "B", Name: "Bread", Price: decimal.RequireFromString("8.90")})
	again, err := svc.Submit(ctx, "r1", c, order.Details{SubmissionToken: "tok-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, placed.ID, again.ID)

	stored, err := repo.ListByRestaurant(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, stored, 1)

	updated, err := manager.SetStatus(ctx, sid, placed.ID, models.StatusInProgress, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, updated.Status)

	stats := metrics.Compute(view.Board.Orders())
	assert.Equal(t, 1, stats.OrderCount)
	assert.True(t, decimal.RequireFromString("908.90").Equal(stats.TotalRevenue))

	require.NoError(t, view.Board.Delete(ctx, placed.ID, true, ""))
	_, err = repo.Get(ctx, "r1", placed.ID)
	assert.ErrorIs(t, err, database.ErrNotFound)

	require.NoError(t, manager.Close(sid))
}

func startPostgres(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "restaurant_db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://postgres:postgres@%s:%s/restaurant_db?sslmode=disable", host, mappedPort.Port())
	return container, dsn
}

func startRabbitMQ(ctx context.Context, t *testing.T) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3.13-alpine",
		ExposedPorts: []string{"5672/tcp"},
		WaitingFor:   wait.ForListeningPort("5672/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	return container, fmt.Sprintf("amqp://guest:guest@%s:%s/", host, mappedPort.Port())
}

func terminateContainer(t *testing.T, c testcontainers.Container) {
	t.Helper()
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, c.Terminate(terminateCtx))
}
