// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Backends for the destination table.
const (
	BackendMemory  = "memory"
	BackendXLSX    = "xlsx"
	BackendGSheets = "gsheets"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Sheets   SheetsConfig
	Source   SourceConfig
	Sync     SyncConfig
	Schedule ScheduleConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings. Without a URL run
// reports are kept in memory.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (optional)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 5)
	MaxConns int `env:"DB_MAX_CONNS" default:"5"`

	// MinConns is the minimum number of connections to keep open (default: 0)
	MinConns int `env:"DB_MIN_CONNS" default:"0"`
}

// SheetsConfig selects and configures the destination table.
type SheetsConfig struct {
	// Backend is one of memory, xlsx, gsheets (default: gsheets)
	Backend string `env:"SHEETS_BACKEND" default:"gsheets"`

	// SpreadsheetID is the Google spreadsheet to write to
	SpreadsheetID string `env:"SHEETS_SPREADSHEET_ID" envAlt:"SPREADSHEET_ID"`

	// CredentialsFile is a service account key; empty uses application default credentials
	CredentialsFile string `env:"SHEETS_CREDENTIALS_FILE" envAlt:"GOOGLE_APPLICATION_CREDENTIALS"`

	// XLSXPath is the workbook used by the xlsx backend
	XLSXPath string `env:"SHEETS_XLSX_PATH" default:"sheetsync.xlsx"`
}

// SourceConfig holds upstream API settings.
type SourceConfig struct {
	// BaseURL is prefixed to every job's source path (required)
	BaseURL string `env:"SOURCE_BASE_URL" required:"true"`

	// Token is sent in AuthHeader
	Token string `env:"SOURCE_TOKEN" envAlt:"WB_API_TOKEN"`

	// AuthHeader names the header carrying Token (default: Authorization)
	AuthHeader string `env:"SOURCE_AUTH_HEADER" default:"Authorization"`

	// Timeout is the per-request timeout (default: 60s)
	Timeout time.Duration `env:"SOURCE_TIMEOUT" default:"60s"`

	// PageDelay is the pause between page requests (default: 1s)
	PageDelay time.Duration `env:"SOURCE_PAGE_DELAY" default:"1s"`

	// RetryDelay is the pause before retrying a throttled request (default: 60s)
	RetryDelay time.Duration `env:"SOURCE_RETRY_DELAY" default:"60s"`

	// MaxAttempts bounds tries per page (default: 3)
	MaxAttempts int `env:"SOURCE_MAX_ATTEMPTS" default:"3"`

	// MaxPages stops pagination after this many pages; 0 means no limit
	MaxPages int `env:"SOURCE_MAX_PAGES" default:"0"`
}

// SyncConfig holds engine settings.
type SyncConfig struct {
	// MaxRanges is the number of ranges per write batch (default: 100)
	MaxRanges int `env:"SYNC_MAX_RANGES" default:"100"`

	// BatchPause is the pause between write batches (default: 1s)
	BatchPause time.Duration `env:"SYNC_BATCH_PAUSE" default:"1s"`

	// Drift is the missing-header policy: continue or abort (default: continue)
	Drift string `env:"SYNC_DRIFT_POLICY" default:"continue"`

	// Validate re-reads the sheet after writing (default: true)
	Validate bool `env:"SYNC_VALIDATE" default:"true"`

	// StampText prefixes the "last updated" stamp
	StampText string `env:"SYNC_STAMP_TEXT" default:"Обновлено: "`

	// JobsFile is an optional YAML file overriding built-in jobs
	JobsFile string `env:"SYNC_JOBS_FILE"`

	// MaxConcurrentRuns bounds parallel runs (default: 1)
	MaxConcurrentRuns int `env:"SYNC_MAX_CONCURRENT_RUNS" default:"1"`

	// RunWaitTime is how long a synchronous run waits for a slot (default: 5s)
	RunWaitTime time.Duration `env:"SYNC_RUN_WAIT_TIME" default:"5s"`

	// RunTimeout bounds one background run (default: 30m)
	RunTimeout time.Duration `env:"SYNC_RUN_TIMEOUT" default:"30m"`
}

// ScheduleConfig holds the periodic scheduler settings.
type ScheduleConfig struct {
	// Interval between scheduled passes; 0 disables the scheduler
	Interval time.Duration `env:"SCHEDULE_INTERVAL" default:"0s"`

	// Jobs run on every pass, in order
	Jobs []string `env:"SCHEDULE_JOBS"`

	// RunOnStart runs one pass immediately (default: false)
	RunOnStart bool `env:"SCHEDULE_RUN_ON_START" default:"false"`
}

// SecurityConfig holds API access settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey protects run-triggering endpoints (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`
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
