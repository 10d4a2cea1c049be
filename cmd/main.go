package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	dbadapter "restaurant-orders/internal/adapter/db"
	"restaurant-orders/internal/config"
	"restaurant-orders/internal/database"
	"restaurant-orders/internal/logger"
	"restaurant-orders/internal/messaging"
	"restaurant-orders/internal/services/board"
	"restaurant-orders/internal/services/dashboard"
	"restaurant-orders/internal/services/feed"
	"restaurant-orders/internal/services/notification"
	"restaurant-orders/internal/services/order"
	"restaurant-orders/internal/session"
)

func main() {
	// Parse command line flags
	var (
		mode       = flag.String("mode", "", "Service mode (api, notifier, migrate)")
		configPath = flag.String("config", "config.yaml", "Path to the YAML config file")
		port       = flag.Int("port", 0, "HTTP port, overrides server.port")
		restaurant = flag.String("restaurant", "", "Restaurant id to follow (required for notifier mode)")
		noBell     = flag.Bool("no-bell", false, "Do not ring the terminal bell in notifier mode")
	)
	flag.Parse()

	// Validate required mode flag
	if *mode == "" {
		fmt.Fprintf(os.Stderr, "Error: --mode flag is required\n")
		flag.Usage()
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	log := logger.New(*mode, cfg.Log.Level)
	requestID := logger.GenerateRequestID()

	log.Info("service_started", fmt.Sprintf("Starting %s", *mode), requestID, map[string]interface{}{
		"mode":          *mode,
		"port":          cfg.Server.Port,
		"status_policy": cfg.Orders.StatusPolicy,
	})

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Route to appropriate service
	switch *mode {
	case "api":
		err = runAPI(ctx, cfg, log)
	case "notifier":
		if *restaurant == "" {
			log.Error("validation_failed", "restaurant is required for notifier mode", requestID, nil, nil)
			os.Exit(1)
		}
		err = runNotifier(ctx, cfg, log, *restaurant, !*noBell)
	case "migrate":
		err = database.RunMigrations(cfg.DatabaseURL(), log)
	default:
		log.Error("validation_failed", fmt.Sprintf("Unknown mode: %s", *mode), requestID, nil, nil)
		os.Exit(1)
	}

	if err != nil {
		log.Error("service_failed", fmt.Sprintf("%s failed", *mode), requestID, err, nil)
		os.Exit(1)
	}
	log.Info("service_stopped", "Service stopped gracefully", requestID, nil)
}

// runAPI serves the guest ordering surface and the owner dashboard.
func runAPI(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	requestID := logger.GenerateRequestID()

	policy, err := board.ParsePolicy(cfg.Orders.StatusPolicy)
	if err != nil {
		return err
	}

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL(), log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := database.New(ctx, cfg.DatabaseURL(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	conn, err := messaging.New(ctx, cfg.RabbitMQURL(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	repo := dbadapter.NewOrderRepository(db.Pool)
	publisher := messaging.NewPublisher(conn, log)
	subscriber := messaging.NewSubscriber(conn, log)

	orderService := order.NewService(repo, publisher, log, order.Options{
		IdempotentSubmissions: cfg.Orders.IdempotentSubmissions,
		MaxLineItems:          cfg.Orders.MaxLineItems,
		MaxItemQuantity:       cfg.Orders.MaxItemQuantity,
	})
	carts := session.NewRegistry[*order.GuestCart](cfg.Sessions.CartTTL, nil)
	orderHandler := order.NewHandler(orderService, carts, db, log)

	dashboards := dashboard.NewManager(repo, subscriber, publisher, log, dashboard.Options{
		Policy: policy,
		Feed: feed.Options{
			ResyncInterval:   cfg.Feed.ResyncInterval,
			ReconnectBackoff: cfg.Feed.ReconnectBackoff,
		},
		SessionTTL: cfg.Sessions.DashboardTTL,
	})
	dashboardHandler := dashboard.NewHandler(dashboards, cfg.PublicMenuURL, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", orderHandler.HealthCheck)
	r.Mount("/menu/{restaurantId}", orderHandler.Routes())
	r.Mount("/api", dashboardHandler.Routes())

	go carts.Run(ctx, cfg.Sessions.SweepEvery)
	go dashboards.Run(ctx, cfg.Sessions.SweepEvery)

	// No write timeout: dashboard event streams stay open.
	server := &http.Server{
		Addr:        cfg.ServerAddr(),
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("service_started", fmt.Sprintf("API started on %s", cfg.ServerAddr()), requestID, map[string]interface{}{
			"addr":          cfg.ServerAddr(),
			"status_policy": string(policy),
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info("graceful_shutdown", "Shutting down API", requestID, map[string]interface{}{
		"dashboards": dashboards.Len(),
		"carts":      carts.Len(),
	})

	// Closing the views ends their event streams so Shutdown can drain.
	dashboards.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// runNotifier follows one restaurant from the terminal and alerts on new orders.
func runNotifier(ctx context.Context, cfg *config.Config, log *logger.Logger, restaurantID string, ringBell bool) error {
	db, err := database.New(ctx, cfg.DatabaseURL(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	conn, err := messaging.New(ctx, cfg.RabbitMQURL(), log)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	defer conn.Close()

	n := notification.NewNotifier(
		restaurantID,
		dbadapter.NewOrderRepository(db.Pool),
		messaging.NewSubscriber(conn, log),
		notification.NewConsoleAlerter(os.Stdout, ringBell, log),
		feed.Options{
			ResyncInterval:   cfg.Feed.ResyncInterval,
			ReconnectBackoff: cfg.Feed.ReconnectBackoff,
		},
		log,
	)
	return n.Run(ctx)
}
