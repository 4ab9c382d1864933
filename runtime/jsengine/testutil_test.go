package jsengine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/backend/local"
	"github.com/elb-pr/claudikins-tool-executor/code"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

// fixture is an executor wired to a local "echo" service and an in-memory
// workspace.
type fixture struct {
	exec    *code.DefaultExecutor
	cfg     code.Config
	backend *local.Backend
	ws      *workspace.Workspace
	auditor *audit.Log
}

func newEchoBackend() *local.Backend {
	b := local.New("echo")
	b.RegisterHandler("echo", local.ToolDef{
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
	})
	b.RegisterHandler("big", local.ToolDef{
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return map[string]any{"data": strings.Repeat("x", 2000)}, nil
		},
	})
	b.RegisterHandler("fail", local.ToolDef{
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			return nil, errors.New("tool exploded")
		},
	})
	return b
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b := newEchoBackend()
	reg, err := backend.NewRegistry(backend.Descriptor{Name: b.Name()})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	broker, err := backend.NewBroker(backend.BrokerConfig{
		Registry: reg,
		Factory:  local.Factory(b),
	})
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	t.Cleanup(func() { _ = broker.Shutdown(context.Background()) })

	f := &fixture{
		backend: b,
		ws:      workspace.NewWithFs(afero.NewMemMapFs()),
		auditor: audit.New(100),
	}
	f.cfg = code.Config{
		Connector: broker,
		Engine:    New(Config{}),
		Workspace: f.ws,
		Auditor:   f.auditor,
	}
	f.exec, err = code.NewDefaultExecutor(f.cfg)
	if err != nil {
		t.Fatalf("NewDefaultExecutor() error = %v", err)
	}
	return f
}

// run executes src and fails the test on a Go-level error.
func (f *fixture) run(t *testing.T, src string) code.ExecuteResult {
	t.Helper()
	res, err := f.exec.ExecuteCode(context.Background(), code.ExecuteParams{Code: src})
	if err != nil {
		t.Fatalf("ExecuteCode() error = %v", err)
	}
	return res
}

// returned runs src, requires success, and returns the returned value.
func (f *fixture) returned(t *testing.T, src string) any {
	t.Helper()
	res := f.run(t, src)
	if !res.OK() {
		t.Fatalf("script failed: %s\n%s", res.Error, res.Stack)
	}
	if len(res.Logs) == 0 {
		t.Fatal("no logs, want a returned record")
	}
	rr, ok := res.Logs[len(res.Logs)-1].(code.ReturnRecord)
	if !ok {
		t.Fatalf("last log = %#v, want ReturnRecord", res.Logs[len(res.Logs)-1])
	}
	return rr.Returned
}
