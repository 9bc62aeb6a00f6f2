package bridge

import (
	"time"

	"github.com/bruecke-ai/bruecke/pkg/api"
)

// FallbackText is substituted when a non-streaming turn produces no text.
// Callers always receive non-empty text in the completed case.
const FallbackText = "No response generated"

// DefaultDrainTimeout bounds a turn when Config.DrainTimeout is unset.
const DefaultDrainTimeout = 5 * time.Minute

// Config tunes bridge behavior.
type Config struct {
	// DefaultModel fills in requests that omit a model. Empty means the
	// model field is required on every request.
	DefaultModel string

	// AllowedTools restricts the engine's tool surface. Empty means the
	// engine default.
	AllowedTools []string

	// PermissionMode is forwarded to the engine.
	PermissionMode string

	// DrainTimeout bounds how long one turn may drain engine messages
	// before it is abandoned.
	DrainTimeout time.Duration

	// Validation bounds incoming requests.
	Validation api.ValidationConfig
}

func (c Config) withDefaults() Config {
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.Validation == (api.ValidationConfig{}) {
		c.Validation = api.DefaultValidationConfig()
	}
	return c
}
