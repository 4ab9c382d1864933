package exec

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/tooldiscovery/tooldoc"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/catalog"
	"github.com/elb-pr/claudikins-tool-executor/code"
)

// Exec is the unified facade for search, schema lookup and execution.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Context: all operations honor cancellation.
// - Ownership: returned results are caller-owned.
type Exec struct {
	catalog  *catalog.Catalog
	broker   *backend.Broker
	executor *code.DefaultExecutor
	opts     Options
}

// New creates a new Exec instance with the given options.
func New(opts Options) (*Exec, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	opts.applyDefaults()

	executor, err := code.NewDefaultExecutor(opts.codeConfig())
	if err != nil {
		return nil, err
	}
	return &Exec{
		catalog:  opts.Catalog,
		broker:   opts.Broker,
		executor: executor,
		opts:     opts,
	}, nil
}

// SearchTools ranks catalog definitions for a query.
func (e *Exec) SearchTools(ctx context.Context, params catalog.SearchParams) (catalog.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return catalog.SearchResponse{}, err
	}
	return e.catalog.Search(params)
}

// GetToolSchema returns the named definition including its input schema.
// Unknown names match catalog.ErrToolNotFound.
func (e *Exec) GetToolSchema(ctx context.Context, name string) (catalog.Definition, error) {
	if err := ctx.Err(); err != nil {
		return catalog.Definition{}, err
	}
	return e.catalog.Lookup(name)
}

// GetToolDoc retrieves documentation for the named definition at the
// specified detail level.
func (e *Exec) GetToolDoc(ctx context.Context, name string, level tooldoc.DetailLevel) (tooldoc.ToolDoc, error) {
	if err := ctx.Err(); err != nil {
		return tooldoc.ToolDoc{}, err
	}
	return e.catalog.Describe(name, level)
}

// ExecuteCode runs a script with every configured service bound.
func (e *Exec) ExecuteCode(ctx context.Context, params code.ExecuteParams) (code.ExecuteResult, error) {
	return e.executor.ExecuteCode(ctx, params)
}

// RunTool invokes one capability by "service:capability" ID.
func (e *Exec) RunTool(ctx context.Context, toolID string, args map[string]any) (Result, error) {
	service, capability, err := backend.ParseToolID(toolID)
	if err != nil {
		return Result{ToolID: toolID}, err
	}
	if service == "" {
		return Result{ToolID: toolID}, fmt.Errorf("%w: %q has no service", backend.ErrInvalidToolID, toolID)
	}
	if !e.broker.Registry().Has(service) {
		return Result{ToolID: toolID}, fmt.Errorf("%w: %s", backend.ErrServiceNotFound, service)
	}

	var proxy *code.Proxy
	for _, p := range code.NewScope(e.opts.codeConfig()).Proxies() {
		if p.Service() == service {
			proxy = p
			break
		}
	}

	start := time.Now()
	value, err := proxy.Call(ctx, capability, args)
	duration := time.Since(start)
	if err != nil {
		res := Result{ToolID: toolID, Duration: duration, Error: err}
		if errors.Is(err, backend.ErrRemoteInvocation) {
			return res, nil
		}
		return res, err
	}
	return Result{Value: value, ToolID: toolID, Duration: duration}, nil
}

// RecentCalls returns up to limit of the newest audited capability calls.
func (e *Exec) RecentCalls(limit int) []audit.Entry {
	return e.opts.Auditor.Recent(limit)
}

// Services returns a snapshot of every configured service.
func (e *Exec) Services() []backend.Status {
	return e.broker.Registry().Snapshot()
}

// Catalog returns the underlying catalog.
func (e *Exec) Catalog() *catalog.Catalog {
	return e.catalog
}

// Broker returns the underlying connection broker.
func (e *Exec) Broker() *backend.Broker {
	return e.broker
}

// Shutdown closes every service connection.
func (e *Exec) Shutdown(ctx context.Context) error {
	return e.broker.Shutdown(ctx)
}
