package engine

import (
	"log/slog"
	"time"

	"github.com/rhuss/tabula/pkg/api"
)

// Config holds configuration for the engine.
type Config struct {
	// Validation bounds incoming requests.
	Validation api.ValidationConfig

	// AnalysisTimeout bounds one analysis end to end. Zero means no
	// limit beyond the caller's context.
	AnalysisTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Validation == (api.ValidationConfig{}) {
		c.Validation = api.DefaultValidationConfig()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
