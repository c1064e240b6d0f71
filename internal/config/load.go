package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/spf13/viper"
)

// LoadConfig loads configuration from a .env file using the provided base name,
// falling back to environment variables and defaults when the file is absent.
func LoadConfig(configName string) (*Config, error) {
	return loadConfig(fmt.Sprintf("%s.env", configName), "env")
}

// LoadConfigWithNameAndType loads configuration with an explicit name and type ("yaml", "json", ...).
func LoadConfigWithNameAndType(configName, configType string) (*Config, error) {
	return loadConfig(configName, configType)
}

// loadConfig layers defaults, an optional config file and the environment, then validates.
func loadConfig(configName, configType string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName(configName)
	if configType != "" {
		v.SetConfigType(configType)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loadConfig: reading %s: %w", v.ConfigFileUsed(), err)
		}
	}

	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Application: ApplicationConfig{
			Env:  v.GetString("APP_ENV"),
			Name: v.GetString("APP_NAME"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Server: ServerConfig{
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			ReadTimeout:     v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout:    v.GetDuration("SERVER_WRITE_TIMEOUT"),
			IdleTimeout:     v.GetDuration("SERVER_IDLE_TIMEOUT"),
			AllowedOrigins:  splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		Sheets: SheetsConfig{
			SpreadsheetTitle: v.GetString("SHEETS_SPREADSHEET_TITLE"),
			QueryBaseURL:     v.GetString("SHEETS_QUERY_BASE_URL"),
		},
		Ledger: LedgerConfig{
			MatchPolicy:     domain.MatchPolicy(v.GetString("LEDGER_MATCH_POLICY")),
			SortAfterAppend: v.GetBool("LEDGER_SORT_AFTER_APPEND"),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:             v.GetInt("RATE_LIMIT_BURST"),

			AddressRequestsPerSecond: v.GetFloat64("RATE_LIMIT_ADDRESS_RPS"),
			AddressBurst:             v.GetInt("RATE_LIMIT_ADDRESS_BURST"),
		},
		Jobs: JobsConfig{
			BufferSize: v.GetInt("JOBS_BUFFER_SIZE"),
			Workers:    v.GetInt("JOBS_WORKERS"),
			MaxRetries: v.GetInt("JOBS_MAX_RETRIES"),
		},
		Storage: StorageConfig{
			Bucket: v.GetString("GCS_BUCKET"),
		},
		BigQuery: BigQueryConfig{
			Project: v.GetString("BIGQUERY_PROJECT"),
			Dataset: v.GetString("BIGQUERY_DATASET"),
			Table:   v.GetString("BIGQUERY_TABLE"),
		},
		Google: GoogleConfig{
			AccessToken: v.GetString("GOOGLE_ACCESS_TOKEN"),
		},
	}
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// setDefaults initializes configuration with values suitable for local development.
func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "sheets-ledger")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second)
	v.SetDefault("SERVER_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60*time.Second)
	v.SetDefault("SERVER_IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("SHEETS_SPREADSHEET_TITLE", "Financial Transactions and Budget")
	v.SetDefault("SHEETS_QUERY_BASE_URL", "https://docs.google.com/spreadsheets")

	v.SetDefault("LEDGER_MATCH_POLICY", string(domain.MatchDateAmount))
	v.SetDefault("LEDGER_SORT_AFTER_APPEND", true)

	// Sheets API quota is 60 requests/minute/user; one ingest costs up to four calls.
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("RATE_LIMIT_ADDRESS_RPS", 5.0)
	v.SetDefault("RATE_LIMIT_ADDRESS_BURST", 20)

	v.SetDefault("JOBS_BUFFER_SIZE", 100)
	v.SetDefault("JOBS_WORKERS", 2)
	v.SetDefault("JOBS_MAX_RETRIES", 3)

	v.SetDefault("GCS_BUCKET", "")
	v.SetDefault("BIGQUERY_PROJECT", "")
	v.SetDefault("BIGQUERY_DATASET", "finance")
	v.SetDefault("BIGQUERY_TABLE", "sheet_transactions")
	v.SetDefault("GOOGLE_ACCESS_TOKEN", "")
}
