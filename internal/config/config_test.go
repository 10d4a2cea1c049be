package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ConfigYAML(t *testing.T) {
	path := filepath.Join("..", "..", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Database.Host == "" {
		t.Fatalf("expected database.host to be set")
	}
	if cfg.RabbitMQ.Port == 0 {
		t.Fatalf("expected rabbitmq.port to be set")
	}
	assert.Equal(t, StatusPolicyStrict, cfg.Orders.StatusPolicy)
	assert.Equal(t, 30*time.Second, cfg.Feed.ResyncInterval)
}

func TestLoad_DefaultsForMissingSections(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  database: orders
rabbitmq:
  host: mq
  port: 5672
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.CartTTL)
	assert.False(t, cfg.Orders.IdempotentSubmissions)
	assert.Equal(t, 99, cfg.Orders.MaxItemQuantity)
	assert.Equal(t, "postgres://restaurant_user:@db:5432/orders?sslmode=disable", cfg.DatabaseURL())
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  host: db
  database: orders
rabbitmq:
  host: mq
  port: 5672
`)
	t.Setenv("PORT", "8081")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("RABBITMQ_HOST", "rabbit")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "amqp://guest:@rabbit:5672/", cfg.RabbitMQURL())
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_InvalidEnvPort(t *testing.T) {
	path := writeConfig(t, "database:\n  host: db\n  database: orders\n")
	t.Setenv("DB_PORT", "not-a-number")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "permissive policy", mutate: func(c *Config) { c.Orders.StatusPolicy = StatusPolicyPermissive }},
		{name: "unknown policy", mutate: func(c *Config) { c.Orders.StatusPolicy = "loose" }, wantErr: true},
		{name: "zero item quantity", mutate: func(c *Config) { c.Orders.MaxItemQuantity = 0 }, wantErr: true},
		{name: "zero port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: true},
		{name: "resync disabled", mutate: func(c *Config) { c.Feed.ResyncInterval = 0 }},
		{name: "zero backoff", mutate: func(c *Config) { c.Feed.ReconnectBackoff = 0 }, wantErr: true},
		{name: "zero cart ttl", mutate: func(c *Config) { c.Sessions.CartTTL = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPublicMenuURL(t *testing.T) {
	cfg := Default()
	cfg.Server.PublicBaseURL = "https://order.example.com/"

	assert.Equal(t, "https://order.example.com/menu/r-1", cfg.PublicMenuURL("r-1"))
}
