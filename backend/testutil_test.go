package backend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// mockBackend implements Backend for testing.
type mockBackend struct {
	name string

	// Configurable behavior
	tools     []model.Tool
	listErr   error
	startErr  error
	startGate chan struct{}
	stopErr   error
	stopHook  func()
	execFn    func(ctx context.Context, tool string, args map[string]any) (any, error)

	// Call tracking
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
}

func (m *mockBackend) Kind() string { return "mock" }
func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) ListTools(_ context.Context) ([]model.Tool, error) {
	return m.tools, m.listErr
}

func (m *mockBackend) Execute(ctx context.Context, tool string, args map[string]any) (any, error) {
	if m.execFn != nil {
		return m.execFn(ctx, tool, args)
	}
	return nil, nil
}

func (m *mockBackend) Start(ctx context.Context) error {
	if m.startGate != nil {
		select {
		case <-m.startGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	if m.startErr != nil {
		return m.startErr
	}
	m.running = true
	return nil
}

func (m *mockBackend) Stop() error {
	if m.stopHook != nil {
		m.stopHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.running = false
	return m.stopErr
}

func (m *mockBackend) counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

// mockFactory hands out mock backends by name and counts launches.
type mockFactory struct {
	backends map[string]*mockBackend
	launches atomic.Int64
}

func newMockFactory(backends ...*mockBackend) *mockFactory {
	f := &mockFactory{backends: make(map[string]*mockBackend)}
	for _, b := range backends {
		f.backends[b.name] = b
	}
	return f
}

func (f *mockFactory) Factory(desc Descriptor) (Backend, error) {
	f.launches.Add(1)
	b, ok := f.backends[desc.Name]
	if !ok {
		return nil, errors.New("no such backend")
	}
	return b, nil
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func tool(name string) model.Tool {
	return model.Tool{Tool: mcp.Tool{Name: name, InputSchema: map[string]any{"type": "object"}}}
}

func descriptors(names ...string) []Descriptor {
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		out = append(out, Descriptor{Name: n, DisplayName: n, Command: "npx"})
	}
	return out
}

func newTestBroker(t *testing.T, f *mockFactory, clock *fakeClock, names ...string) *Broker {
	t.Helper()
	reg, err := NewRegistry(descriptors(names...)...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	cfg := BrokerConfig{Registry: reg, Factory: f.Factory}
	if clock != nil {
		cfg.Now = clock.Now
	}
	b, err := NewBroker(cfg)
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	return b
}
