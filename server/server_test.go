package server

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/afero"

	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/backend/local"
	"github.com/elb-pr/claudikins-tool-executor/catalog"
	"github.com/elb-pr/claudikins-tool-executor/exec"
	"github.com/elb-pr/claudikins-tool-executor/runtime/jsengine"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	diagrams := local.New("mermaid")
	diagrams.RegisterHandler("render", local.ToolDef{
		Description: "Render a diagram",
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			src, _ := args["source"].(string)
			return map[string]any{"svg": "<svg>" + src + "</svg>"}, nil
		},
	})

	reg, err := backend.NewRegistry(backend.Descriptor{Name: "mermaid", DisplayName: "Mermaid"})
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	broker, err := backend.NewBroker(backend.BrokerConfig{
		Registry: reg,
		Factory:  local.Factory(diagrams),
	})
	if err != nil {
		t.Fatalf("NewBroker() error = %v", err)
	}
	cat, err := catalog.New([]catalog.Definition{{
		Name:        "render",
		Server:      "mermaid",
		Category:    "ui",
		Description: "Render a mermaid diagram to SVG",
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"source": map[string]any{"type": "string"}},
		},
		Example: `await mermaid.render({source: "graph TD; A-->B"})`,
	}}, catalog.Options{})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	ex, err := exec.New(exec.Options{
		Catalog:   cat,
		Broker:    broker,
		Engine:    jsengine.New(jsengine.Config{}),
		Workspace: workspace.NewWithFs(afero.NewMemMapFs()),
	})
	if err != nil {
		t.Fatalf("exec.New() error = %v", err)
	}
	t.Cleanup(func() { _ = ex.Shutdown(context.Background()) })

	s, err := New(Options{Exec: ex, Version: "test"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func connectClient(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	t1, t2 := mcp.NewInMemoryTransports()
	ss, err := s.MCP().Connect(ctx, t1, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	cs, err := client.Connect(ctx, t2, nil)
	if err != nil {
		_ = ss.Close()
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Close()
	})
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	if len(res.Content) == 0 {
		t.Fatalf("call %s: empty content", name)
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("call %s: content type = %T", name, res.Content[0])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(text.Text), &out); err != nil {
		t.Fatalf("call %s: decode %q: %v", name, text.Text, err)
	}
	if !reflect.DeepEqual(res.StructuredContent, out) {
		t.Errorf("call %s: structuredContent = %#v, want the text body %#v", name, res.StructuredContent, out)
	}
	return out, res.IsError
}

func TestNew_RequiresExec(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrExecRequired) {
		t.Fatalf("New() error = %v, want ErrExecRequired", err)
	}
}

func TestListTools(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := cs.ListTools(ctx, nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	got := map[string]*mcp.Tool{}
	for _, tool := range res.Tools {
		got[tool.Name] = tool
	}
	for _, name := range []string{ToolSearch, ToolSchema, ToolExecute} {
		if got[name] == nil {
			t.Fatalf("tool %q not listed", name)
		}
	}
	if !strings.Contains(got[ToolExecute].Description, "- mermaid") {
		t.Errorf("execute_code description does not list services:\n%s", got[ToolExecute].Description)
	}
}

func TestSearchTools(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	out, isErr := callTool(t, cs, ToolSearch, map[string]any{"query": "mermaid diagram"})
	if isErr {
		t.Fatalf("search returned error: %v", out)
	}
	if out["count"] != float64(1) {
		t.Fatalf("count = %v, want 1", out["count"])
	}
	if _, ok := out["has_more"]; !ok {
		t.Error("response missing has_more")
	}
	results := out["results"].([]any)
	first := results[0].(map[string]any)
	if first["name"] != "render" || first["server"] != "mermaid" {
		t.Errorf("first result = %v", first)
	}
	if _, ok := first["inputSchema"]; ok {
		t.Error("search results should not carry inputSchema")
	}
}

func TestSearchTools_EmptyQuery(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	out, isErr := callTool(t, cs, ToolSearch, map[string]any{"query": "  "})
	if !isErr {
		t.Fatalf("expected isError, got %v", out)
	}
	if out["error"] == "" {
		t.Error("error message missing")
	}
}

func TestGetToolSchema(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	tests := []struct {
		name       string
		lookup     string
		wantErr    bool
		wantSchema bool
	}{
		{name: "by name", lookup: "render", wantSchema: true},
		{name: "by id", lookup: "mermaid:render", wantSchema: true},
		{name: "unknown", lookup: "missing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, isErr := callTool(t, cs, ToolSchema, map[string]any{"name": tt.lookup})
			if isErr != tt.wantErr {
				t.Fatalf("isError = %v, want %v (%v)", isErr, tt.wantErr, out)
			}
			if tt.wantErr {
				if out["error"] != "Tool not found: "+tt.lookup {
					t.Errorf("error = %v", out["error"])
				}
				if out["suggestion"] == nil {
					t.Error("suggestion missing")
				}
				return
			}
			if _, ok := out["inputSchema"].(map[string]any); ok != tt.wantSchema {
				t.Errorf("inputSchema = %v", out["inputSchema"])
			}
		})
	}
}

func TestExecuteCode(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	out, isErr := callTool(t, cs, ToolExecute, map[string]any{
		"code": `const r = await mermaid.render({source: "A"}); console.log("done"); return r.svg;`,
	})
	if isErr {
		t.Fatalf("execute returned error: %v", out)
	}
	logs := out["logs"].([]any)
	if len(logs) != 2 {
		t.Fatalf("logs = %v, want 2 entries", logs)
	}
	if logs[0] != "done" {
		t.Errorf("logs[0] = %v", logs[0])
	}
	ret := logs[1].(map[string]any)
	if ret["returned"] != "<svg>A</svg>" {
		t.Errorf("returned = %v", ret["returned"])
	}
}

func TestStructuredContent(t *testing.T) {
	cs := connectClient(t, newTestServer(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tests := []struct {
		tool string
		args map[string]any
		key  string
	}{
		{ToolExecute, map[string]any{"code": "return 1"}, "logs"},
		{ToolSearch, map[string]any{"query": "render"}, "results"},
		{ToolSchema, map[string]any{"name": "render"}, "inputSchema"},
	}
	for _, tt := range tests {
		res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: tt.tool, Arguments: tt.args})
		if err != nil {
			t.Fatalf("call %s: %v", tt.tool, err)
		}
		sc, ok := res.StructuredContent.(map[string]any)
		if !ok {
			t.Errorf("%s: structuredContent = %#v, want an object", tt.tool, res.StructuredContent)
			continue
		}
		if _, ok := sc[tt.key]; !ok {
			t.Errorf("%s: structuredContent missing %q: %v", tt.tool, tt.key, sc)
		}
	}
}

func TestExecuteCode_ScriptError(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	out, isErr := callTool(t, cs, ToolExecute, map[string]any{
		"code": `console.log("before"); throw new Error("boom");`,
	})
	if !isErr {
		t.Fatalf("expected isError, got %v", out)
	}
	if out["error"] != "boom" {
		t.Errorf("error = %v, want boom", out["error"])
	}
	if logs := out["logs"].([]any); len(logs) != 1 || logs[0] != "before" {
		t.Errorf("logs = %v", logs)
	}
}

func TestExecuteCode_TimeoutBounds(t *testing.T) {
	cs := connectClient(t, newTestServer(t))

	for _, timeout := range []int{999, 600001} {
		out, isErr := callTool(t, cs, ToolExecute, map[string]any{"code": "return 1", "timeout": timeout})
		if !isErr {
			t.Fatalf("timeout %d: expected isError, got %v", timeout, out)
		}
		if !strings.Contains(out["error"].(string), "timeout must be between") {
			t.Errorf("timeout %d: error = %v", timeout, out["error"])
		}
	}

	out, isErr := callTool(t, cs, ToolExecute, map[string]any{"code": "return 1", "timeout": 1000})
	if isErr {
		t.Fatalf("timeout 1000 rejected: %v", out)
	}
}

func TestExecuteTimeout(t *testing.T) {
	tests := []struct {
		in      int
		want    int
		wantErr bool
	}{
		{in: 0, want: DefaultTimeoutMs},
		{in: MinTimeoutMs, want: MinTimeoutMs},
		{in: MaxTimeoutMs, want: MaxTimeoutMs},
		{in: MinTimeoutMs - 1, wantErr: true},
		{in: MaxTimeoutMs + 1, wantErr: true},
		{in: -5, wantErr: true},
	}
	for _, tt := range tests {
		got, err := executeTimeout(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("executeTimeout(%d) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("executeTimeout(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
