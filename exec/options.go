package exec

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/catalog"
	"github.com/elb-pr/claudikins-tool-executor/code"
	"github.com/elb-pr/claudikins-tool-executor/metrics"
)

// Errors returned by Options validation.
var (
	ErrCatalogRequired   = errors.New("exec: Catalog is required")
	ErrBrokerRequired    = errors.New("exec: Broker is required")
	ErrEngineRequired    = errors.New("exec: Engine is required")
	ErrWorkspaceRequired = errors.New("exec: Workspace is required")
)

// Options configures an Exec instance.
type Options struct {
	// Catalog provides capability search and schemas.
	// Required.
	Catalog *catalog.Catalog

	// Broker provides connections to services.
	// Required.
	Broker *backend.Broker

	// Engine interprets scripts.
	// Required.
	Engine code.Engine

	// Workspace stores oversized results and is exposed to scripts.
	// Required.
	Workspace code.Workspace

	// Auditor records every capability invocation.
	// Default: a log holding audit.DefaultCapacity entries.
	Auditor *audit.Log

	// DefaultTimeout for script execution.
	// Default: code.DefaultTimeout (30s)
	DefaultTimeout time.Duration

	// MaxLogChars is the script log budget.
	// Default: code.DefaultMaxLogChars
	MaxLogChars int

	// MaxResultChars is the inline capability result budget.
	// Default: code.DefaultMaxResultChars
	MaxResultChars int

	// Logger is optional.
	Logger *zap.Logger

	// Metrics is optional.
	Metrics *metrics.Recorder
}

// validate checks that required fields are set.
func (o *Options) validate() error {
	if o.Catalog == nil {
		return ErrCatalogRequired
	}
	if o.Broker == nil {
		return ErrBrokerRequired
	}
	if o.Engine == nil {
		return ErrEngineRequired
	}
	if o.Workspace == nil {
		return ErrWorkspaceRequired
	}
	return nil
}

// applyDefaults sets default values for unset optional fields.
func (o *Options) applyDefaults() {
	if o.Auditor == nil {
		o.Auditor = audit.New(audit.DefaultCapacity)
	}
	if o.DefaultTimeout == 0 {
		o.DefaultTimeout = code.DefaultTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// codeConfig derives the script executor configuration.
func (o *Options) codeConfig() code.Config {
	return code.Config{
		Connector:      o.Broker,
		Engine:         o.Engine,
		Workspace:      o.Workspace,
		Auditor:        o.Auditor,
		DefaultTimeout: o.DefaultTimeout,
		MaxLogChars:    o.MaxLogChars,
		MaxResultChars: o.MaxResultChars,
		Logger:         o.Logger,
		Metrics:        o.Metrics,
	}
}
