package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/catalog"
	"github.com/elb-pr/claudikins-tool-executor/code"
	"github.com/elb-pr/claudikins-tool-executor/exec"
)

// Name is the implementation name reported to clients.
const Name = "tool-executor"

// Tool names.
const (
	ToolSearch  = "search_tools"
	ToolSchema  = "get_tool_schema"
	ToolExecute = "execute_code"
)

// Bounds for the execute_code timeout, in milliseconds.
const (
	MinTimeoutMs     = 1000
	MaxTimeoutMs     = 600000
	DefaultTimeoutMs = 30000
)

// ErrExecRequired is returned by New when Options.Exec is nil.
var ErrExecRequired = errors.New("server: Exec is required")

// Options configures a Server.
type Options struct {
	// Exec serves every tool.
	// Required.
	Exec *exec.Exec

	// Version is reported to clients.
	// Default: "dev"
	Version string

	// Logger is optional.
	Logger *zap.Logger
}

// Server exposes an Exec over the Model Context Protocol.
//
// Contract:
// - Concurrency: tool handlers may run concurrently.
// - Errors: tool failures are reported in-band with isError set; Run
// returns transport errors only.
type Server struct {
	exec   *exec.Exec
	logger *zap.Logger
	mcp    *mcp.Server
}

// New builds a Server with search_tools, get_tool_schema and execute_code
// registered.
func New(opts Options) (*Server, error) {
	if opts.Exec == nil {
		return nil, ErrExecRequired
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{exec: opts.Exec, logger: opts.Logger}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    Name,
		Version: opts.Version,
	}, &mcp.ServerOptions{
		Instructions: instructions(s.serviceNames()),
	})
	s.registerTools()
	return s, nil
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *mcp.Server {
	return s.mcp
}

// Run serves one session over t until the client disconnects or ctx is done.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("mcp server started", zap.Strings("services", s.serviceNames()))
	err := s.mcp.Run(ctx, t)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *Server) serviceNames() []string {
	statuses := s.exec.Services()
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, st.Name)
	}
	return names
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearch,
		Title:       "Search MCP Tools",
		Description: searchDescription,
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    true,
			DestructiveHint: boolPtr(false),
			IdempotentHint:  true,
			OpenWorldHint:   boolPtr(false),
		},
	}, s.handleSearch)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSchema,
		Title:       "Get Tool Schema",
		Description: schemaDescription,
		Annotations: &mcp.ToolAnnotations{
			ReadOnlyHint:    true,
			DestructiveHint: boolPtr(false),
			IdempotentHint:  true,
			OpenWorldHint:   boolPtr(false),
		},
	}, s.handleSchema)
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolExecute,
		Title:       "Execute Code",
		Description: executeDescription(s.serviceNames()),
		Annotations: &mcp.ToolAnnotations{
			DestructiveHint: boolPtr(true),
			OpenWorldHint:   boolPtr(true),
		},
	}, s.handleExecute)
}

type searchInput struct {
	Query  string `json:"query" jsonschema:"Search query for finding relevant tools"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum results to return (default 10, max 50)"`
	Offset int    `json:"offset,omitempty" jsonschema:"Number of ranked results to skip"`
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, input searchInput) (*mcp.CallToolResult, any, error) {
	resp, err := s.exec.SearchTools(ctx, catalog.SearchParams{
		Query:  input.Query,
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(map[string]any{"error": err.Error()})
	}
	return jsonResult(resp, false)
}

type schemaInput struct {
	Name string `json:"name" jsonschema:"Tool name from search_tools results"`
}

func (s *Server) handleSchema(ctx context.Context, _ *mcp.CallToolRequest, input schemaInput) (*mcp.CallToolResult, any, error) {
	def, err := s.exec.GetToolSchema(ctx, strings.TrimSpace(input.Name))
	if err != nil {
		body := map[string]any{"error": err.Error()}
		var nf *catalog.NotFoundError
		if errors.As(err, &nf) {
			body["suggestion"] = nf.Suggestion()
		}
		return errorResult(body)
	}
	return jsonResult(def, false)
}

type executeInput struct {
	Code    string `json:"code" jsonschema:"JavaScript to execute as the body of an async function"`
	Timeout int    `json:"timeout,omitempty" jsonschema:"Execution timeout in ms (1000 to 600000, default 30000)"`
}

func (s *Server) handleExecute(ctx context.Context, _ *mcp.CallToolRequest, input executeInput) (*mcp.CallToolResult, any, error) {
	timeoutMs, err := executeTimeout(input.Timeout)
	if err != nil {
		return errorResult(map[string]any{"error": err.Error()})
	}
	result, err := s.exec.ExecuteCode(ctx, code.ExecuteParams{
		Code:    input.Code,
		Timeout: time.Duration(timeoutMs) * time.Millisecond,
	})
	if err != nil {
		return errorResult(map[string]any{"error": err.Error()})
	}
	if result.Logs == nil {
		result.Logs = []any{}
	}
	return jsonResult(result, !result.OK())
}

// executeTimeout resolves the requested timeout in milliseconds. Zero means
// the default; anything else must lie within the accepted bounds.
func executeTimeout(ms int) (int, error) {
	if ms == 0 {
		return DefaultTimeoutMs, nil
	}
	if ms < MinTimeoutMs || ms > MaxTimeoutMs {
		return 0, fmt.Errorf("%w: timeout must be between %d and %d ms, got %d",
			code.ErrInvalidParams, MinTimeoutMs, MaxTimeoutMs, ms)
	}
	return ms, nil
}

// jsonResult renders v as an indented text block. v is also returned as the
// structured output, which the SDK places in structuredContent.
func jsonResult(v any, isError bool) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: isError,
	}, v, nil
}

func errorResult(body map[string]any) (*mcp.CallToolResult, any, error) {
	return jsonResult(body, true)
}

func boolPtr(b bool) *bool {
	return &b
}
