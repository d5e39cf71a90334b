package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

var ErrMissingWebhookSecret = errors.New("config: WEBHOOK_SECRET is required")

type Config struct {
	Port     string
	LogLevel string

	DatabaseURL string
	DB          DBConfig

	// WebhookSecret is the HMAC key shared with the payment processor.
	WebhookSecret string

	CORSAllowedOrigins []string

	Confirmation ConfirmationConfig
}

// DBConfig mirrors the BLUEPRINT_DB_* variables.
type DBConfig struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
}

type ConfirmationConfig struct {
	Recipient          string
	Workers            int
	QueueSize          int
	MaxAttempts        int
	RetryBaseDelay     time.Duration
	RetryMaxDelay      time.Duration
	ReconcileInterval  time.Duration
	ReconcileGrace     time.Duration
	MessageFailureRate float64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BLUEPRINT_DB_HOST", "localhost")
	v.SetDefault("BLUEPRINT_DB_PORT", "5432")
	v.SetDefault("BLUEPRINT_DB_SCHEMA", "public")
	v.SetDefault("CONFIRMATION_RECIPIENT", "233000000000")
	v.SetDefault("WORKER_COUNT", 4)
	v.SetDefault("QUEUE_SIZE", 256)
	v.SetDefault("TASK_MAX_ATTEMPTS", 3)
	v.SetDefault("TASK_RETRY_BASE_DELAY", time.Second)
	v.SetDefault("TASK_RETRY_MAX_DELAY", 30*time.Second)
	v.SetDefault("RECONCILE_INTERVAL", 30*time.Second)
	v.SetDefault("RECONCILE_GRACE", time.Minute)
	v.SetDefault("MESSAGE_FAILURE_RATE", 0.0)
}

var envKeys = []string{
	"DATABASE_URL",
	"BLUEPRINT_DB_DATABASE",
	"BLUEPRINT_DB_USERNAME",
	"BLUEPRINT_DB_PASSWORD",
	"WEBHOOK_SECRET",
	"CORS_ALLOWED_ORIGINS",
}

// Load reads configuration from the environment (and .env, if present).
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	for _, k := range envKeys {
		if err := v.BindEnv(k); err != nil {
			return nil, err
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:        v.GetString("PORT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		DatabaseURL: v.GetString("DATABASE_URL"),
		DB: DBConfig{
			Host:     v.GetString("BLUEPRINT_DB_HOST"),
			Port:     v.GetString("BLUEPRINT_DB_PORT"),
			Database: v.GetString("BLUEPRINT_DB_DATABASE"),
			Username: v.GetString("BLUEPRINT_DB_USERNAME"),
			Password: v.GetString("BLUEPRINT_DB_PASSWORD"),
			Schema:   v.GetString("BLUEPRINT_DB_SCHEMA"),
		},
		WebhookSecret:      v.GetString("WEBHOOK_SECRET"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		Confirmation: ConfirmationConfig{
			Recipient:          v.GetString("CONFIRMATION_RECIPIENT"),
			Workers:            v.GetInt("WORKER_COUNT"),
			QueueSize:          v.GetInt("QUEUE_SIZE"),
			MaxAttempts:        v.GetInt("TASK_MAX_ATTEMPTS"),
			RetryBaseDelay:     v.GetDuration("TASK_RETRY_BASE_DELAY"),
			RetryMaxDelay:      v.GetDuration("TASK_RETRY_MAX_DELAY"),
			ReconcileInterval:  v.GetDuration("RECONCILE_INTERVAL"),
			ReconcileGrace:     v.GetDuration("RECONCILE_GRACE"),
			MessageFailureRate: v.GetFloat64("MESSAGE_FAILURE_RATE"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return ErrMissingWebhookSecret
	}
	if c.Confirmation.MaxAttempts < 1 {
		return fmt.Errorf("config: TASK_MAX_ATTEMPTS must be at least 1, got %d", c.Confirmation.MaxAttempts)
	}
	if c.Confirmation.Workers < 1 {
		return fmt.Errorf("config: WORKER_COUNT must be at least 1, got %d", c.Confirmation.Workers)
	}
	if c.Confirmation.QueueSize < 1 {
		return fmt.Errorf("config: QUEUE_SIZE must be at least 1, got %d", c.Confirmation.QueueSize)
	}
	durations := []struct {
		key string
		d   time.Duration
	}{
		{"TASK_RETRY_BASE_DELAY", c.Confirmation.RetryBaseDelay},
		{"TASK_RETRY_MAX_DELAY", c.Confirmation.RetryMaxDelay},
		{"RECONCILE_INTERVAL", c.Confirmation.ReconcileInterval},
		{"RECONCILE_GRACE", c.Confirmation.ReconcileGrace},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("config: %s must be positive, got %s", d.key, d.d)
		}
	}
	if r := c.Confirmation.MessageFailureRate; r < 0 || r > 1 {
		return fmt.Errorf("config: MESSAGE_FAILURE_RATE must be within [0,1], got %v", r)
	}
	return nil
}

// DSN returns DATABASE_URL when set, otherwise a URL built from the BLUEPRINT_DB_* parts.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DB.Username, c.DB.Password),
		Host:   c.DB.Host + ":" + c.DB.Port,
		Path:   c.DB.Database,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if c.DB.Schema != "" {
		q.Set("search_path", c.DB.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
