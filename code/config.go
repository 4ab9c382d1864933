package code

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/metrics"
)

// DefaultTimeout applies when ExecuteParams.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// Config holds the configuration for a code executor.
type Config struct {
	// Connector provides connections to services.
	// Required.
	Connector Connector

	// Engine is the script interpreter.
	// Required.
	Engine Engine

	// Workspace stores oversized results and is exposed to scripts.
	// Required.
	Workspace Workspace

	// Auditor records every capability invocation. If nil, a log with
	// audit.DefaultCapacity is created.
	Auditor *audit.Log

	// DefaultTimeout is the execution deadline when ExecuteParams does not
	// set one. Defaults to DefaultTimeout.
	DefaultTimeout time.Duration

	// MaxLogChars is the log budget. Defaults to DefaultMaxLogChars.
	MaxLogChars int

	// MaxResultChars is the inline result budget. Defaults to
	// DefaultMaxResultChars.
	MaxResultChars int

	// Logger is optional.
	Logger *zap.Logger

	// Metrics is optional.
	Metrics *metrics.Recorder
}

// Validate checks that all required fields are set.
// Returns ErrConfiguration if any required field is missing.
func (c *Config) Validate() error {
	var missing []string

	if c.Connector == nil {
		missing = append(missing, "Connector")
	}
	if c.Engine == nil {
		missing = append(missing, "Engine")
	}
	if c.Workspace == nil {
		missing = append(missing, "Workspace")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields: %s",
			ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

// applyDefaults sets default values for optional fields.
func (c *Config) applyDefaults() {
	if c.Auditor == nil {
		c.Auditor = audit.New(audit.DefaultCapacity)
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
	if c.MaxLogChars <= 0 {
		c.MaxLogChars = DefaultMaxLogChars
	}
	if c.MaxResultChars <= 0 {
		c.MaxResultChars = DefaultMaxResultChars
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}
