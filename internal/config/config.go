package config

import "time"

// Duration wraps time.Duration so config files can use strings like "30s".
type Duration struct {
	Duration time.Duration
}

type HTTPConfig struct {
	Addr              string   `yaml:"addr"`
	ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
	IdleTimeout       Duration `yaml:"idle_timeout"`
	ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	AllowOrigins      []string `yaml:"allow_origins"`
}

// BackendConfig describes the generation backend the engine streams from.
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
	// APIKey is optional; when set it is sent as `Authorization: Bearer <key>`.
	APIKey string `yaml:"api_key,omitempty"`

	PreviewPath  string `yaml:"preview_path,omitempty"`
	EditPath     string `yaml:"edit_path,omitempty"`
	FinalizePath string `yaml:"finalize_path,omitempty"`

	// Timeout bounds non-streaming requests (finalize). StreamTimeout bounds a
	// whole streaming request; zero means rely on caller cancellation.
	Timeout       Duration `yaml:"timeout,omitempty"`
	StreamTimeout Duration `yaml:"stream_timeout,omitempty"`
}

// RetryConfig tunes the transport-level retry policy (per request).
type RetryConfig struct {
	MaxAttempts    int      `yaml:"max_attempts,omitempty"`
	BackoffBase    Duration `yaml:"backoff_base,omitempty"`
	BackoffCap     Duration `yaml:"backoff_cap,omitempty"`
	AttemptTimeout Duration `yaml:"attempt_timeout,omitempty"`
}

// SessionConfig tunes session-level restarts (whole-stream retries), which are
// distinct from transport-level retries.
type SessionConfig struct {
	MaxRestarts    int      `yaml:"max_restarts,omitempty"`
	RestartBackoff Duration `yaml:"restart_backoff,omitempty"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

type RedisConfig struct {
	Addr     string   `yaml:"addr"`
	DraftTTL Duration `yaml:"draft_ttl,omitempty"`
}

type Config struct {
	Env      string         `yaml:"env"`
	HTTP     HTTPConfig     `yaml:"http"`
	Backend  BackendConfig  `yaml:"backend"`
	Retry    RetryConfig    `yaml:"retry"`
	Session  SessionConfig  `yaml:"session"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
}
