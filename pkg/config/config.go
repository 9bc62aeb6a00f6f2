// Package config provides unified configuration for the bruecke server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (BRUECKE_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the bruecke server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Storage       StorageConfig       `yaml:"storage"`
	Conversations ConversationsConfig `yaml:"conversations"`
	Limits        LimitsConfig        `yaml:"limits"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MB
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// EngineConfig holds agent engine CLI settings.
type EngineConfig struct {
	Binary         string        `yaml:"binary"`          // default: "claude"
	WorkDir        string        `yaml:"work_dir"`        // optional working directory for engine runs
	DefaultModel   string        `yaml:"default_model"`   // applied when requests omit a model
	AllowedTools   []string      `yaml:"allowed_tools"`   // passed to the engine as --allowedTools
	PermissionMode string        `yaml:"permission_mode"` // passed to the engine as --permission-mode
	DrainTimeout   time.Duration `yaml:"drain_timeout"`   // default: 5m
}

// StorageConfig holds response persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// ConversationsConfig holds conversation persistence settings.
type ConversationsConfig struct {
	Type   string       `yaml:"type"` // "none", "memory" or "sqlite", default: "memory"
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: "conversations.db"
}

// LimitsConfig holds request validation limits.
type LimitsConfig struct {
	MaxInputSize int `yaml:"max_input_size"` // default: 1 MB
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics  MetricsConfig `yaml:"metrics"`
	LogLevel string        `yaml:"log_level"` // ERROR, WARN, INFO, DEBUG or TRACE, default: "INFO"
	Debug    string        `yaml:"debug"`     // comma-separated debug categories
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			MaxBodySize:     10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Binary:       "claude",
			DrainTimeout: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type:    "memory",
			MaxSize: 10000,
			Postgres: PostgresConfig{
				MaxConns: 25,
			},
		},
		Conversations: ConversationsConfig{
			Type: "memory",
			SQLite: SQLiteConfig{
				Path: "conversations.db",
			},
		},
		Limits: LimitsConfig{
			MaxInputSize: 1 << 20,
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
			LogLevel: "INFO",
		},
	}
}
