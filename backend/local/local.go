// Package local serves capabilities from in-process handlers.
//
// A local Backend behaves like a connected service without launching a
// subprocess, which makes it useful for embedding and for tests.
package local

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/elb-pr/claudikins-tool-executor/backend"
)

// HandlerFunc is the function signature for capability handlers.
type HandlerFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolDef defines a local capability with its handler.
type ToolDef struct {
	Name        string
	Title       string
	Description string
	InputSchema map[string]any
	Tags        []string
	Handler     HandlerFunc
}

// Backend implements backend.Backend for local handlers.
type Backend struct {
	name     string
	mu       sync.RWMutex
	handlers map[string]ToolDef
	started  bool
	starts   int
	stops    int
}

// New creates a new local backend serving the named service.
func New(name string) *Backend {
	return &Backend{
		name:     name,
		handlers: make(map[string]ToolDef),
	}
}

// Kind returns the backend kind.
func (b *Backend) Kind() string {
	return "local"
}

// Name returns the service name.
func (b *Backend) Name() string {
	return b.name
}

// RegisterHandler registers a capability handler.
func (b *Backend) RegisterHandler(name string, def ToolDef) {
	if def.Name == "" {
		def.Name = name
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = def
}

// UnregisterHandler removes a capability handler.
func (b *Backend) UnregisterHandler(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
}

// ListTools returns the registered capabilities sorted by name.
func (b *Backend) ListTools(_ context.Context) ([]model.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]model.Tool, 0, len(b.handlers))
	for _, def := range b.handlers {
		schema := def.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, model.Tool{
			Tool: mcp.Tool{
				Name:        def.Name,
				Title:       def.Title,
				Description: def.Description,
				InputSchema: schema,
			},
			Namespace: b.name,
			Tags:      model.NormalizeTags(def.Tags),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Execute invokes a capability handler. Handler errors are reported as
// *backend.InvocationError.
func (b *Backend) Execute(ctx context.Context, tool string, args map[string]any) (any, error) {
	b.mu.RLock()
	started := b.started
	def, ok := b.handlers[tool]
	b.mu.RUnlock()

	if !started {
		return nil, fmt.Errorf("%w: %s is not started", backend.ErrServiceUnavailable, b.name)
	}
	if !ok || def.Handler == nil {
		return nil, fmt.Errorf("%w: %s.%s", backend.ErrUnknownCapability, b.name, tool)
	}
	out, err := def.Handler(ctx, args)
	if err != nil {
		return nil, &backend.InvocationError{
			Service:    b.name,
			Capability: tool,
			Message:    err.Error(),
			Err:        err,
		}
	}
	return out, nil
}

// Start marks the backend as connected.
func (b *Backend) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = true
	b.starts++
	return nil
}

// Stop marks the backend as disconnected.
func (b *Backend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.started = false
	b.stops++
	return nil
}

// Starts returns how many times the backend was started.
func (b *Backend) Starts() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.starts
}

// Stops returns how many times the backend was stopped.
func (b *Backend) Stops() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stops
}

// Factory returns a backend.Factory serving the given backends by name.
// Descriptors without a matching backend fail with ErrServiceNotFound.
func Factory(backends ...*Backend) backend.Factory {
	byName := make(map[string]*Backend, len(backends))
	for _, b := range backends {
		byName[b.name] = b
	}
	return func(desc backend.Descriptor) (backend.Backend, error) {
		b, ok := byName[desc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: no local backend for %s", backend.ErrServiceNotFound, desc.Name)
		}
		return b, nil
	}
}
