package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingWebhookSecret)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.WebhookSecret)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "233000000000", cfg.Confirmation.Recipient)
	assert.Equal(t, 3, cfg.Confirmation.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Confirmation.RetryBaseDelay)
	assert.Equal(t, 4, cfg.Confirmation.Workers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("TASK_MAX_ATTEMPTS", "5")
	t.Setenv("TASK_RETRY_BASE_DELAY", "250ms")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://localhost:5173, https://admin.example.com ,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5, cfg.Confirmation.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Confirmation.RetryBaseDelay)
	assert.Equal(t, []string{"http://localhost:5173", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidAttempts(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "s3cret")
	t.Setenv("TASK_MAX_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsNonPositive(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"WORKER_COUNT", "0"},
		{"QUEUE_SIZE", "-1"},
		{"TASK_RETRY_BASE_DELAY", "0s"},
		{"TASK_RETRY_MAX_DELAY", "-5s"},
		{"RECONCILE_INTERVAL", "0s"},
		{"RECONCILE_GRACE", "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("WEBHOOK_SECRET", "s3cret")
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := &Config{DB: DBConfig{
		Host: "db", Port: "5432", Database: "shop", Username: "app", Password: "p@ss", Schema: "public",
	}}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/shop?search_path=public&sslmode=disable", cfg.DSN())

	cfg.DatabaseURL = "postgres://x/y"
	assert.Equal(t, "postgres://x/y", cfg.DSN())
}
