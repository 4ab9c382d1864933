// Package stdio connects to MCP services launched as subprocesses.
//
// Each Backend spawns its descriptor's command, speaks MCP over the
// child's stdin/stdout, and kills the child on Stop.
package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonwraymond/toolfoundation/model"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/backend"
)

// ClientVersion is reported to services during the handshake.
const ClientVersion = "1.0.0"

// TransportFunc opens the MCP transport for a descriptor.
type TransportFunc func(desc backend.Descriptor) (mcp.Transport, error)

// Options configures backends created by Factory.
type Options struct {
	// Logger is optional.
	Logger *zap.Logger

	// Transport overrides subprocess launch. Defaults to CommandTransport.
	Transport TransportFunc
}

// Backend is an MCP client session to one service.
type Backend struct {
	desc      backend.Descriptor
	logger    *zap.Logger
	transport TransportFunc

	mu      sync.RWMutex
	session *mcp.ClientSession
	closed  chan struct{} // closed when session ends
}

// New creates an unstarted backend for desc.
func New(desc backend.Descriptor, opts Options) *Backend {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Transport == nil {
		opts.Transport = CommandTransport
	}
	return &Backend{
		desc:      desc,
		logger:    opts.Logger.With(zap.String("service", desc.Name)),
		transport: opts.Transport,
	}
}

// Factory returns a backend.Factory building stdio backends.
func Factory(opts Options) backend.Factory {
	return func(desc backend.Descriptor) (backend.Backend, error) {
		if desc.Command == "" && opts.Transport == nil {
			return nil, fmt.Errorf("%w: %s has no command", backend.ErrConfiguration, desc.Name)
		}
		return New(desc, opts), nil
	}
}

// CommandTransport launches desc.Command with desc.Args. The child inherits
// the process environment plus desc.Env, and its stderr.
func CommandTransport(desc backend.Descriptor) (mcp.Transport, error) {
	cmd := exec.Command(desc.Command, desc.Args...)
	cmd.Env = os.Environ()
	keys := make([]string, 0, len(desc.Env))
	for k := range desc.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		cmd.Env = append(cmd.Env, k+"="+desc.Env[k])
	}
	cmd.Stderr = os.Stderr
	return &mcp.CommandTransport{Command: cmd}, nil
}

// Kind returns the backend kind.
func (b *Backend) Kind() string {
	return "mcp"
}

// Name returns the service name.
func (b *Backend) Name() string {
	return b.desc.Name
}

// Start launches the service and completes the MCP handshake.
func (b *Backend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.session != nil {
		return nil
	}
	transport, err := b.transport(b.desc)
	if err != nil {
		return err
	}
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "tool-executor-" + b.desc.Name,
		Version: ClientVersion,
	}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", b.desc.Name, err)
	}
	closed := make(chan struct{})
	go func() {
		_ = session.Wait()
		close(closed)
	}()
	b.session = session
	b.closed = closed
	b.logger.Debug("mcp session established", zap.String("command", b.desc.Command))
	return nil
}

// Stop closes the session, which terminates the subprocess.
func (b *Backend) Stop() error {
	b.mu.Lock()
	session := b.session
	b.session = nil
	b.mu.Unlock()
	if session == nil {
		return nil
	}
	return session.Close()
}

func (b *Backend) current() (*mcp.ClientSession, <-chan struct{}, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil, nil, fmt.Errorf("%w: %s is not connected", backend.ErrServiceUnavailable, b.desc.Name)
	}
	return b.session, b.closed, nil
}

// sessionEndedGrace bounds how long a failed call waits to learn whether the
// session itself went away.
const sessionEndedGrace = 100 * time.Millisecond

// connectionLost reports whether err came from the session ending, such as
// the child process exiting.
func connectionLost(ctx context.Context, err error, closed <-chan struct{}) bool {
	if errors.Is(err, mcp.ErrConnectionClosed) {
		return true
	}
	var wireErr *jsonrpc.Error
	if errors.As(err, &wireErr) || ctx.Err() != nil {
		return false
	}
	select {
	case <-closed:
		return true
	case <-time.After(sessionEndedGrace):
		return false
	}
}

// ListTools returns every tool the service lists, following pagination.
func (b *Backend) ListTools(ctx context.Context) ([]model.Tool, error) {
	session, _, err := b.current()
	if err != nil {
		return nil, err
	}
	var out []model.Tool
	params := &mcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools %s: %w", b.desc.Name, err)
		}
		for _, t := range res.Tools {
			if t == nil {
				continue
			}
			out = append(out, model.Tool{Tool: *t, Namespace: b.desc.Name})
		}
		if res.NextCursor == "" {
			return out, nil
		}
		params = &mcp.ListToolsParams{Cursor: res.NextCursor}
	}
}

// Execute calls a tool. The result is returned as plain JSON values
// ({content, structuredContent, ...}). A result flagged isError, or a
// transport failure, is reported as *backend.InvocationError; when the
// session ended underneath the call it also matches backend.ErrConnectionLost.
func (b *Backend) Execute(ctx context.Context, tool string, args map[string]any) (any, error) {
	session, closed, err := b.current()
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	res, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		cause := err
		if connectionLost(ctx, err, closed) {
			b.logger.Warn("mcp session ended", zap.String("capability", tool), zap.Error(err))
			cause = fmt.Errorf("%w: %w", backend.ErrConnectionLost, err)
		}
		return nil, &backend.InvocationError{
			Service:    b.desc.Name,
			Capability: tool,
			Message:    err.Error(),
			Err:        cause,
		}
	}
	if res.IsError {
		msg := ContentText(res.Content)
		if msg == "" {
			msg = fmt.Sprintf("%s.%s reported an error", b.desc.Name, tool)
		}
		return nil, &backend.InvocationError{
			Service:    b.desc.Name,
			Capability: tool,
			Message:    msg,
		}
	}
	return Normalize(res)
}

// Normalize converts a CallToolResult into plain JSON values.
func Normalize(res *mcp.CallToolResult) (any, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	return out, nil
}

// ContentText joins the text parts of a result's content.
func ContentText(content []mcp.Content) string {
	var parts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok && tc.Text != "" {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}
