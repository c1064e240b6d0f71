// Package config loads and validates the settings shared by the API server and the CLI.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/dvloznov/sheets-ledger/internal/domain"
)

// Config holds the complete application configuration.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Sheets      SheetsConfig
	Ledger      LedgerConfig
	RateLimit   RateLimitConfig
	Jobs        JobsConfig
	Storage     StorageConfig
	BigQuery    BigQueryConfig
	Google      GoogleConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string
	Format string // "console" or "json"
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	AllowedOrigins  []string // CORS
}

// SheetsConfig describes where the ledger spreadsheet lives.
type SheetsConfig struct {
	SpreadsheetTitle string
	QueryBaseURL     string // gviz endpoint root, overridable for tests
}

// LedgerConfig controls reconciliation and ingestion.
type LedgerConfig struct {
	MatchPolicy     domain.MatchPolicy
	SortAfterAppend bool
}

// RateLimitConfig limits requests per user, and per client address before
// the bearer token is checked.
type RateLimitConfig struct {
	RequestsPerSecond        float64
	Burst                    int
	AddressRequestsPerSecond float64
	AddressBurst             int
}

// JobsConfig sizes the in-memory import queue.
type JobsConfig struct {
	BufferSize int
	Workers    int
	MaxRetries int
}

// StorageConfig holds the bucket used for CSV uploads.
type StorageConfig struct {
	Bucket string
}

// BigQueryConfig enables the analytics mirror when Project is set.
type BigQueryConfig struct {
	Project string
	Dataset string
	Table   string
}

// Enabled reports whether appended rows should be mirrored to BigQuery.
func (c BigQueryConfig) Enabled() bool {
	return c.Project != ""
}

// GoogleConfig carries the access token used by the CLI.
type GoogleConfig struct {
	AccessToken string
}

func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	if len(c.Server.AllowedOrigins) == 0 {
		validationErrors = append(validationErrors, "CORS_ALLOWED_ORIGINS must list at least one origin")
	}

	if c.Sheets.SpreadsheetTitle == "" {
		validationErrors = append(validationErrors, "SHEETS_SPREADSHEET_TITLE is required")
	}
	if c.Sheets.QueryBaseURL == "" {
		validationErrors = append(validationErrors, "SHEETS_QUERY_BASE_URL is required")
	}

	if !c.Ledger.MatchPolicy.Valid() {
		validationErrors = append(validationErrors, "LEDGER_MATCH_POLICY must be one of date_amount, date_amount_merchant")
	}

	if c.RateLimit.RequestsPerSecond <= 0 {
		validationErrors = append(validationErrors, "RATE_LIMIT_RPS must be greater than 0")
	}
	if c.RateLimit.Burst <= 0 {
		validationErrors = append(validationErrors, "RATE_LIMIT_BURST must be greater than 0")
	}
	if c.RateLimit.AddressRequestsPerSecond <= 0 {
		validationErrors = append(validationErrors, "RATE_LIMIT_ADDRESS_RPS must be greater than 0")
	}
	if c.RateLimit.AddressBurst <= 0 {
		validationErrors = append(validationErrors, "RATE_LIMIT_ADDRESS_BURST must be greater than 0")
	}

	if c.Jobs.BufferSize <= 0 {
		validationErrors = append(validationErrors, "JOBS_BUFFER_SIZE must be greater than 0")
	}
	if c.Jobs.Workers <= 0 {
		validationErrors = append(validationErrors, "JOBS_WORKERS must be greater than 0")
	}
	if c.Jobs.MaxRetries < 0 {
		validationErrors = append(validationErrors, "JOBS_MAX_RETRIES must not be negative")
	}

	if c.BigQuery.Enabled() {
		if c.BigQuery.Dataset == "" {
			validationErrors = append(validationErrors, "BIGQUERY_DATASET is required when BIGQUERY_PROJECT is set")
		}
		if c.BigQuery.Table == "" {
			validationErrors = append(validationErrors, "BIGQUERY_TABLE is required when BIGQUERY_PROJECT is set")
		}
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}

	return nil
}
