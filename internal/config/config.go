// Package config provides centralized configuration management for the
// file ingestion service. It loads configuration from environment
// variables with sensible defaults and validates all settings on
// startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Storage  StorageConfig
	Pipeline PipelineConfig
	Records  RecordsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig holds PostgreSQL connection settings. Only consulted
// when RECORDS_BACKEND is "postgres".
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
}

// StorageConfig selects and configures the byte store.
type StorageConfig struct {
	// Backend is the byte store implementation: "local" or "s3" (default: local)
	Backend string `env:"STORAGE_BACKEND" default:"local"`

	// Root is the local store's base directory (default: ./data)
	Root string `env:"STORAGE_ROOT" default:"./data"`

	// Bucket is the S3 bucket name (required when Backend is s3)
	Bucket string `env:"STORAGE_S3_BUCKET"`

	// Region is the S3 region
	Region string `env:"STORAGE_S3_REGION" default:"us-east-1"`

	// Endpoint overrides the S3 endpoint for S3-compatible services
	Endpoint string `env:"STORAGE_S3_ENDPOINT"`

	// PathStyle forces path-style addressing (required by most
	// S3-compatible endpoints)
	PathStyle bool `env:"STORAGE_S3_PATH_STYLE" default:"false"`
}

// PipelineConfig bounds the ingestion pipeline.
type PipelineConfig struct {
	// MaxFileSize is the hard ceiling for a single upload in bytes (default: 20MB)
	MaxFileSize int64 `env:"PIPELINE_MAX_FILE_SIZE" default:"20971520"`

	// MaxConcurrent is the maximum number of parallel proves (default: 4)
	MaxConcurrent int `env:"PIPELINE_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a prove slot (default: 15s)
	MaxWaitTime time.Duration `env:"PIPELINE_MAX_WAIT_TIME" default:"15s"`

	// ProveTimeout caps a single prove call; expiry rejects the upload (default: 30s)
	ProveTimeout time.Duration `env:"PIPELINE_PROVE_TIMEOUT" default:"30s"`

	// TempDir holds canonical temp files; empty means the system temp dir
	TempDir string `env:"PIPELINE_TEMP_DIR"`
}

// RecordsConfig selects the metadata record backend.
type RecordsConfig struct {
	// Backend is the record store implementation: "postgres", "memory",
	// or "noop" (default: noop)
	Backend string `env:"RECORDS_BACKEND" default:"noop"`
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
		return ":" + strconv.Itoa(c.Port)
	}
	return c.Host + ":" + strconv.Itoa(c.Port)
}
