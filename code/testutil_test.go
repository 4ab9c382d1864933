package code

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/backend/local"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

// engineFunc adapts a function to the Engine interface.
type engineFunc func(ctx context.Context, params ExecuteParams, scope *Scope) (Completion, error)

func (f engineFunc) Execute(ctx context.Context, params ExecuteParams, scope *Scope) (Completion, error) {
	return f(ctx, params, scope)
}

// recordingEngine remembers the scopes it was given.
type recordingEngine struct {
	mu     sync.Mutex
	scopes []*Scope
	fn     engineFunc
}

func (e *recordingEngine) Execute(ctx context.Context, params ExecuteParams, scope *Scope) (Completion, error) {
	e.mu.Lock()
	e.scopes = append(e.scopes, scope)
	e.mu.Unlock()
	if e.fn == nil {
		return Completion{}, nil
	}
	return e.fn(ctx, params, scope)
}

// stubConnector is a Connector whose Get always fails.
type stubConnector struct {
	names []string
	err   error
}

func (c *stubConnector) Get(_ context.Context, name string) (backend.Backend, error) {
	return nil, c.err
}
func (c *stubConnector) Touch(string)                            {}
func (c *stubConnector) Capabilities(string) ([]string, bool)    { return nil, false }
func (c *stubConnector) Names() []string                         { return c.names }
func (c *stubConnector) Invalidate(string, backend.Backend) bool { return false }

// newEchoBackend returns a local backend with echo, big and fail tools.
func newEchoBackend(name string) *local.Backend {
	b := local.New(name)
	b.RegisterHandler("echo", local.ToolDef{
		Description: "Echo the arguments back",
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	})
	b.RegisterHandler("big", local.ToolDef{
		Description: "Return a large payload",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"data": strings.Repeat("x", 2000)}, nil
		},
	})
	b.RegisterHandler("fail", local.ToolDef{
		Description: "Always fail",
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("tool exploded")
		},
	})
	return b
}

// newTestBroker builds a broker over local backends.
func newTestBroker(t *testing.T, backends ...*local.Backend) *backend.Broker {
	t.Helper()
	descs := make([]backend.Descriptor, 0, len(backends))
	for _, b := range backends {
		descs = append(descs, backend.Descriptor{Name: b.Name()})
	}
	reg, err := backend.NewRegistry(descs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	broker, err := backend.NewBroker(backend.BrokerConfig{
		Registry: reg,
		Factory:  local.Factory(backends...),
	})
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	t.Cleanup(func() { _ = broker.Shutdown(context.Background()) })
	return broker
}

// newTestConfig returns a config over an in-memory workspace and the given
// backends. The engine is left for the caller.
func newTestConfig(t *testing.T, backends ...*local.Backend) (Config, *workspace.Workspace) {
	t.Helper()
	ws := workspace.NewWithFs(afero.NewMemMapFs())
	return Config{
		Connector: newTestBroker(t, backends...),
		Workspace: ws,
	}, ws
}

// proxyFor returns the scope's proxy for service.
func proxyFor(t *testing.T, s *Scope, service string) *Proxy {
	t.Helper()
	for _, p := range s.Proxies() {
		if p.Service() == service {
			return p
		}
	}
	t.Fatalf("no proxy for %q", service)
	return nil
}
