package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/courseforge-backend/internal/platform/envutil"
)

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	s := strings.TrimSpace(value.Value)
	if s == "" || s == "null" {
		d.Duration = 0
		return nil
	}
	dd, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	d.Duration = dd
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

func defaultConfig() *Config {
	return &Config{
		Env: "development",
		HTTP: HTTPConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: Duration{Duration: 5 * time.Second},
			IdleTimeout:       Duration{Duration: 2 * time.Minute},
			ShutdownTimeout:   Duration{Duration: 15 * time.Second},
			AllowOrigins:      []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Backend: BackendConfig{
			BaseURL:       "http://localhost:9090",
			PreviewPath:   "/v1/outlines/preview",
			EditPath:      "/v1/outlines/edit",
			FinalizePath:  "/v1/outlines/finalize",
			Timeout:       Duration{Duration: 60 * time.Second},
			StreamTimeout: Duration{Duration: 0},
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			BackoffBase:    Duration{Duration: 250 * time.Millisecond},
			BackoffCap:     Duration{Duration: 4 * time.Second},
			AttemptTimeout: Duration{Duration: 30 * time.Second},
		},
		Session: SessionConfig{
			MaxRestarts:    2,
			RestartBackoff: Duration{Duration: 500 * time.Millisecond},
		},
		Postgres: PostgresConfig{
			Host: "localhost",
			Port: "5432",
			User: "postgres",
			Name: "courseforge",
		},
		Redis: RedisConfig{
			DraftTTL: Duration{Duration: 24 * time.Hour},
		},
	}
}

// Load builds the config from defaults, an optional YAML file
// (CF_CONFIG_PATH, falling back to ./config/config.yaml), then env overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("CF_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}

	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	if strings.TrimSpace(cfg.Backend.BaseURL) == "" {
		return nil, fmt.Errorf("backend.base_url required")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.Str("CF_ENV", cfg.Env)
	cfg.HTTP.Addr = envutil.Str("CF_HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Backend.BaseURL = envutil.Str("CF_BACKEND_BASE_URL", cfg.Backend.BaseURL)
	cfg.Backend.APIKey = envutil.Str("CF_BACKEND_API_KEY", cfg.Backend.APIKey)
	cfg.Backend.Timeout.Duration = envutil.Duration("CF_BACKEND_TIMEOUT", cfg.Backend.Timeout.Duration)
	cfg.Backend.StreamTimeout.Duration = envutil.Duration("CF_BACKEND_STREAM_TIMEOUT", cfg.Backend.StreamTimeout.Duration)

	cfg.Retry.MaxAttempts = envutil.Int("CF_RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.AttemptTimeout.Duration = envutil.Duration("CF_RETRY_ATTEMPT_TIMEOUT", cfg.Retry.AttemptTimeout.Duration)

	cfg.Session.MaxRestarts = envutil.Int("CF_SESSION_MAX_RESTARTS", cfg.Session.MaxRestarts)
	cfg.Session.RestartBackoff.Duration = envutil.Duration("CF_SESSION_RESTART_BACKOFF", cfg.Session.RestartBackoff.Duration)

	cfg.Postgres.Host = envutil.Str("CF_POSTGRES_HOST", cfg.Postgres.Host)
	cfg.Postgres.Port = envutil.Str("CF_POSTGRES_PORT", cfg.Postgres.Port)
	cfg.Postgres.User = envutil.Str("CF_POSTGRES_USER", cfg.Postgres.User)
	cfg.Postgres.Password = envutil.Str("CF_POSTGRES_PASSWORD", cfg.Postgres.Password)
	cfg.Postgres.Name = envutil.Str("CF_POSTGRES_NAME", cfg.Postgres.Name)

	cfg.Redis.Addr = envutil.Str("CF_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.DraftTTL.Duration = envutil.Duration("CF_REDIS_DRAFT_TTL", cfg.Redis.DraftTTL.Duration)
}
