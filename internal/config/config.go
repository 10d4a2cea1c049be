package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Status policies for the order status machine.
const (
	StatusPolicyStrict     = "strict"
	StatusPolicyPermissive = "permissive"
)

// Config holds all configuration for the restaurant ordering system
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Orders   OrdersConfig   `yaml:"orders"`
	Feed     FeedConfig     `yaml:"feed"`
	Sessions SessionsConfig `yaml:"sessions"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Database      string `yaml:"database"`
	RunMigrations bool   `yaml:"run_migrations"`
}

// RabbitMQConfig holds RabbitMQ connection configuration
type RabbitMQConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// OrdersConfig controls submission and status transition rules
type OrdersConfig struct {
	StatusPolicy          string `yaml:"status_policy"`
	IdempotentSubmissions bool   `yaml:"idempotent_submissions"`
	MaxLineItems          int    `yaml:"max_line_items"`
	MaxItemQuantity       int    `yaml:"max_item_quantity"`
}

// FeedConfig controls how dashboards follow the realtime stream
type FeedConfig struct {
	ResyncInterval   time.Duration `yaml:"resync_interval"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
}

// SessionsConfig controls idle expiry of guest carts and dashboards
type SessionsConfig struct {
	CartTTL      time.Duration `yaml:"cart_ttl"`
	DashboardTTL time.Duration `yaml:"dashboard_ttl"`
	SweepEvery   time.Duration `yaml:"sweep_every"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			PublicBaseURL:   "http://localhost:3000",
			AllowedOrigins:  []string{"*"},
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			User:          "restaurant_user",
			Database:      "restaurant_db",
			RunMigrations: true,
		},
		RabbitMQ: RabbitMQConfig{
			Host: "localhost",
			Port: 5672,
			User: "guest",
		},
		Orders: OrdersConfig{
			StatusPolicy:    StatusPolicyStrict,
			MaxLineItems:    50,
			MaxItemQuantity: 99,
		},
		Feed: FeedConfig{
			ResyncInterval:   30 * time.Second,
			ReconnectBackoff: 2 * time.Second,
		},
		Sessions: SessionsConfig{
			CartTTL:      2 * time.Hour,
			DashboardTTL: 12 * time.Hour,
			SweepEvery:   time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file, applies environment overrides
// and validates the result
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides file values with environment variables when set
func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s value: %w", key, err)
		}
		*dst = n
		return nil
	}

	if err := setInt("PORT", &c.Server.Port); err != nil {
		return err
	}
	setString("PUBLIC_BASE_URL", &c.Server.PublicBaseURL)

	setString("DB_HOST", &c.Database.Host)
	if err := setInt("DB_PORT", &c.Database.Port); err != nil {
		return err
	}
	setString("DB_USER", &c.Database.User)
	setString("DB_PASSWORD", &c.Database.Password)
	setString("DB_NAME", &c.Database.Database)

	setString("RABBITMQ_HOST", &c.RabbitMQ.Host)
	if err := setInt("RABBITMQ_PORT", &c.RabbitMQ.Port); err != nil {
		return err
	}
	setString("RABBITMQ_USER", &c.RabbitMQ.User)
	setString("RABBITMQ_PASSWORD", &c.RabbitMQ.Password)

	setString("LOG_LEVEL", &c.Log.Level)
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive")
	}
	if c.Database.Host == "" || c.Database.Database == "" {
		return fmt.Errorf("database.host and database.database are required")
	}
	if c.RabbitMQ.Host == "" || c.RabbitMQ.Port <= 0 {
		return fmt.Errorf("rabbitmq.host and rabbitmq.port are required")
	}

	switch c.Orders.StatusPolicy {
	case StatusPolicyStrict, StatusPolicyPermissive:
	default:
		return fmt.Errorf("invalid orders.status_policy: %s (must be strict or permissive)", c.Orders.StatusPolicy)
	}
	if c.Orders.MaxLineItems <= 0 {
		return fmt.Errorf("orders.max_line_items must be positive")
	}
	if c.Orders.MaxItemQuantity <= 0 {
		return fmt.Errorf("orders.max_item_quantity must be positive")
	}

	if c.Feed.ResyncInterval < 0 {
		return fmt.Errorf("feed.resync_interval must not be negative")
	}
	if c.Feed.ReconnectBackoff <= 0 {
		return fmt.Errorf("feed.reconnect_backoff must be positive")
	}
	if c.Sessions.CartTTL <= 0 || c.Sessions.DashboardTTL <= 0 || c.Sessions.SweepEvery <= 0 {
		return fmt.Errorf("sessions ttl values must be positive")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}

	return nil
}

// DatabaseURL returns a PostgreSQL connection URL
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port, c.Database.Database)
}

// RabbitMQURL returns an AMQP connection URL
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User, c.RabbitMQ.Password, c.RabbitMQ.Host, c.RabbitMQ.Port)
}

// ServerAddr returns the host:port the HTTP server listens on
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PublicMenuURL derives the guest-facing menu link for a restaurant
func (c *Config) PublicMenuURL(restaurantID string) string {
	return strings.TrimRight(c.Server.PublicBaseURL, "/") + "/menu/" + restaurantID
}
