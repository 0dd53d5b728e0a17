// Package config loads the application configuration from defaults, an
// optional config file and environment variables, and validates it on
// startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverDynamo   = "dynamo"
)

// Config holds all application configuration.
//
// Every field has an env tag naming its environment variable and a
// mapstructure tag naming its config file key within the section.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	Store    StoreConfig     `mapstructure:"store"`
	AWS      AWSConfig       `mapstructure:"aws"`
	Import   ImportConfig    `mapstructure:"import"`
	Taxonomy TaxonomyConfig  `mapstructure:"taxonomy"`
	Rate     RateLimitConfig `mapstructure:"rate"`
	Security SecurityConfig  `mapstructure:"security"`
	Logging  LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `mapstructure:"port" env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `mapstructure:"read_timeout" env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is 0 so long imports are not cut off mid-response.
	WriteTimeout time.Duration `mapstructure:"write_timeout" env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `mapstructure:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-import requests. Imports use Import.Timeout.
	RequestTimeout time.Duration `mapstructure:"request_timeout" env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds PostgreSQL pool settings. Only used by the postgres
// store driver.
type DatabaseConfig struct {
	// URL accepts DATABASE_URL or DB_URL.
	URL string `mapstructure:"url" env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `mapstructure:"max_conns" env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `mapstructure:"min_conns" env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time" env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// StoreConfig selects the taxonomy store.
type StoreConfig struct {
	// Driver is one of memory, postgres or dynamo.
	Driver string `mapstructure:"driver" env:"STORE_DRIVER" default:"memory"`

	DynamoTable string `mapstructure:"dynamo_table" env:"DYNAMO_TABLE" default:"VehicleTaxonomy"`
}

// AWSConfig holds the session settings for DynamoDB and S3.
type AWSConfig struct {
	Region  string `mapstructure:"region" env:"AWS_REGION" envAlt:"AWS_DEFAULT_REGION" default:"eu-west-2"`
	Profile string `mapstructure:"profile" env:"AWS_PROFILE"`

	// Endpoint overrides the service endpoint, e.g. for DynamoDB Local.
	Endpoint string `mapstructure:"endpoint" env:"AWS_ENDPOINT_URL"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted request body in bytes (default 100MB).
	MaxFileSize int64 `mapstructure:"max_file_size" env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	MaxConcurrent int           `mapstructure:"max_concurrent" env:"IMPORT_MAX_CONCURRENT" default:"2"`
	MaxWaitTime   time.Duration `mapstructure:"max_wait_time" env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// BatchSize is the number of new entities written per store call.
	BatchSize int `mapstructure:"batch_size" env:"IMPORT_BATCH_SIZE" default:"100"`

	Timeout time.Duration `mapstructure:"timeout" env:"IMPORT_TIMEOUT" default:"10m"`

	// HistoryLimit caps the runs returned by the history endpoints.
	HistoryLimit int `mapstructure:"history_limit" env:"IMPORT_HISTORY_LIMIT" default:"50"`

	// HistoryRetention is how long import runs are kept. Zero keeps them
	// forever.
	HistoryRetention time.Duration `mapstructure:"history_retention" env:"IMPORT_HISTORY_RETENTION" default:"720h"`
	PruneInterval    time.Duration `mapstructure:"prune_interval" env:"IMPORT_PRUNE_INTERVAL" default:"24h"`
}

// TaxonomyConfig holds the rules applied to imported and added entities.
type TaxonomyConfig struct {
	AcceptedBodyType     string `mapstructure:"accepted_body_type" env:"TAXONOMY_BODY_TYPE" default:"Cars"`
	MakeNameMaxLength    int    `mapstructure:"make_name_max_length" env:"TAXONOMY_MAKE_NAME_MAX_LENGTH" default:"50"`
	ModelNameMaxLength   int    `mapstructure:"model_name_max_length" env:"TAXONOMY_MODEL_NAME_MAX_LENGTH" default:"50"`
	VariantNameMaxLength int    `mapstructure:"variant_name_max_length" env:"TAXONOMY_VARIANT_NAME_MAX_LENGTH" default:"100"`
	EngineSizeCeilingCC  int    `mapstructure:"engine_size_ceiling_cc" env:"TAXONOMY_ENGINE_SIZE_CEILING_CC" default:"50000"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ImportLimit is requests per minute for the import endpoints.
	ImportLimit int `mapstructure:"import_limit" env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies lists proxy CIDRs whose forwarding headers are honoured.
	TrustedProxies []string `mapstructure:"trusted_proxies" env:"TRUSTED_PROXIES"`

	EnableCSP bool `mapstructure:"enable_csp" env:"SECURITY_ENABLE_CSP" default:"true"`

	RequireAPIKey bool     `mapstructure:"require_api_key" env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `mapstructure:"api_keys" env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LOG_LEVEL" default:"info"`
	Format string `mapstructure:"format" env:"LOG_FORMAT" default:"text"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + strconv.Itoa(c.Port)
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
