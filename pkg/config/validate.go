package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	if c.Engine.Binary == "" {
		errs = append(errs, fmt.Errorf("engine.binary is required"))
	}
	if c.Engine.DrainTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.drain_timeout must not be negative, got %s", c.Engine.DrainTimeout))
	}

	switch c.Storage.Type {
	case "none", "memory", "postgres":
		// valid
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"none\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	// If storage.type is "postgres", DSN or DSNFile must be set.
	if c.Storage.Type == "postgres" {
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	}

	switch c.Conversations.Type {
	case "none", "memory", "sqlite":
		// valid
	default:
		errs = append(errs, fmt.Errorf("conversations.type must be \"none\", \"memory\" or \"sqlite\", got %q", c.Conversations.Type))
	}

	if c.Conversations.Type == "sqlite" && c.Conversations.SQLite.Path == "" {
		errs = append(errs, fmt.Errorf("conversations.sqlite.path is required when conversations.type is \"sqlite\""))
	}

	if c.Limits.MaxInputSize <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_input_size must be > 0, got %d", c.Limits.MaxInputSize))
	}

	return errors.Join(errs...)
}
