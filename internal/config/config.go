// Package config provides centralized configuration management for the
// application. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server     ServerConfig
	Smartsheet SmartsheetConfig
	Upload     UploadConfig
	History    HistoryConfig
	Rate       RateLimitConfig
	Logging    LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// SmartsheetConfig holds destination API settings.
type SmartsheetConfig struct {
	// Token is the Smartsheet API access token (required)
	// Supports both SMARTSHEET_TOKEN and SMARTSHEET_ACCESS_TOKEN.
	Token string `env:"SMARTSHEET_TOKEN" envAlt:"SMARTSHEET_ACCESS_TOKEN" required:"true"`

	// SheetURL is the default destination sheet URL or ID. Optional;
	// requests may carry their own.
	SheetURL string `env:"SMARTSHEET_SHEET_URL"`

	// BaseURL overrides the API endpoint, mainly for testing.
	BaseURL string `env:"SMARTSHEET_BASE_URL"`

	// Timeout is the per-request HTTP timeout (default: 30s)
	Timeout time.Duration `env:"SMARTSHEET_TIMEOUT" default:"30s"`
}

// UploadConfig holds upload session settings.
type UploadConfig struct {
	// MaxFileSize is the maximum allowed export file size in bytes (default: 50MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"52428800"`

	// BatchSize is the number of rows to append per API call (default: 50)
	BatchSize int `env:"UPLOAD_BATCH_SIZE" default:"50"`

	// RateRetries is how many times a rate-limited batch is retried (default: 3)
	RateRetries int `env:"UPLOAD_RATE_RETRIES" default:"3"`

	// TransportRetries is how many times a transport failure is retried (default: 1)
	TransportRetries int `env:"UPLOAD_TRANSPORT_RETRIES" default:"1"`

	// RetryBackoff seeds the exponential backoff between retries (default: 2s)
	RetryBackoff time.Duration `env:"UPLOAD_RETRY_BACKOFF" default:"2s"`

	// Overwrite clears the destination sheet before every upload (default: false)
	Overwrite bool `env:"UPLOAD_OVERWRITE" default:"false"`

	// MaxConcurrent is the maximum number of parallel sessions (default: 3)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"3"`

	// MaxWaitTime is how long to wait for a session slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration for a single session (default: 10m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`
}

// HistoryConfig holds optional session history settings.
type HistoryConfig struct {
	// DatabaseURL is the PostgreSQL connection string. When empty, session
	// history is disabled and the application runs without a database.
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of pooled connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`
}

// RateLimitConfig holds per-IP request rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
