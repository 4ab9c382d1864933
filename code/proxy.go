package code

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/audit"
	"github.com/elb-pr/claudikins-tool-executor/backend"
	"github.com/elb-pr/claudikins-tool-executor/metrics"
	"github.com/elb-pr/claudikins-tool-executor/workspace"
)

// Connector hands out borrowed connections to services.
// *backend.Broker implements it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: Get failures must match backend.ErrServiceUnavailable.
type Connector interface {
	// Get returns a live backend for the named service.
	Get(ctx context.Context, name string) (backend.Backend, error)

	// Touch marks a successful call through the named service.
	Touch(name string)

	// Capabilities returns the service's capability names, if known.
	Capabilities(name string) ([]string, bool)

	// Names returns every configured service name.
	Names() []string

	// Invalidate drops name's connection if it is still be.
	Invalidate(name string, be backend.Backend) bool
}

// Proxy dispatches capability calls to one service. Any capability name is
// accepted; names the service did not list fail at call time with
// backend.ErrUnknownCapability.
//
// Results larger than the configured budget are written to the workspace
// and replaced by a SavedResult, or by a TruncatedResult if the write fails.
//
// Contract:
// - Concurrency: safe for concurrent use.
// - Errors: connection failures match backend.ErrServiceUnavailable; remote
//   failures match backend.ErrRemoteInvocation and are audited.
// - Ownership: args are copied into the audit trail; results are caller-owned.
type Proxy struct {
	service        string
	conn           Connector
	auditor        *audit.Log
	ws             Workspace
	maxResultChars int
	logger         *zap.Logger
	metrics        *metrics.Recorder
	trace          func(audit.Entry)
}

func newProxy(service string, cfg *Config, trace func(audit.Entry)) *Proxy {
	return &Proxy{
		service:        service,
		conn:           cfg.Connector,
		auditor:        cfg.Auditor,
		ws:             cfg.Workspace,
		maxResultChars: cfg.MaxResultChars,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		trace:          trace,
	}
}

// Service returns the service name.
func (p *Proxy) Service() string {
	return p.service
}

// Capabilities returns the capability names listed by the service, or nil
// if it is not connected or did not list them.
func (p *Proxy) Capabilities() []string {
	caps, _ := p.conn.Capabilities(p.service)
	return caps
}

// Call invokes capability with args.
func (p *Proxy) Call(ctx context.Context, capability string, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	be, err := p.conn.Get(ctx, p.service)
	if err != nil {
		return nil, err
	}
	if caps, ok := p.conn.Capabilities(p.service); ok && !slices.Contains(caps, capability) {
		return nil, fmt.Errorf("%w: %s.%s", backend.ErrUnknownCapability, p.service, capability)
	}

	start := time.Now()
	result, err := be.Execute(ctx, capability, args)
	elapsed := time.Since(start)

	entry := audit.Entry{
		Timestamp:  start,
		Service:    p.service,
		Capability: capability,
		Args:       deepCopyArgs(args),
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	p.auditor.Record(entry)
	if p.trace != nil {
		p.trace(entry)
	}
	p.metrics.ObserveCall(p.service, elapsed, err)
	if err != nil {
		p.logger.Debug("capability call failed",
			zap.String("service", p.service),
			zap.String("capability", capability),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		if errors.Is(err, backend.ErrConnectionLost) {
			p.conn.Invalidate(p.service, be)
		}
		return nil, err
	}

	p.conn.Touch(p.service)
	return p.triage(capability, start, result), nil
}

// triage returns result inline if it fits the budget, otherwise a
// reference to a saved copy.
func (p *Proxy) triage(capability string, start time.Time, result any) any {
	data, err := marshalCompact(result)
	if err != nil {
		return result
	}
	size := utf8.RuneCount(data)
	if size <= p.maxResultChars {
		return result
	}

	serialized := string(data)
	name := fmt.Sprintf("%d-%s-%s-%s.json",
		start.UnixMilli(), fileSafe(p.service), fileSafe(capability), xid.New().String())
	target := path.Join(workspace.ResultsDir, name)

	err = p.ws.Mkdir(workspace.ResultsDir)
	if err == nil {
		err = p.ws.WriteJSON(target, result)
	}
	p.metrics.ObserveOverflow(err)
	if err != nil {
		p.logger.Warn("failed to save oversized result",
			zap.String("service", p.service),
			zap.String("capability", capability),
			zap.Int("size", size),
			zap.Error(err))
		return TruncatedResult{
			Warning: "Result too large to auto-save, returning truncated",
			Size:    size,
			Preview: truncateChars(serialized, truncatedPreviewChars),
		}
	}
	return SavedResult{
		SavedTo: target,
		Size:    size,
		Preview: truncateChars(serialized, savedPreviewChars) + "...",
		Hint: fmt.Sprintf("Full result (%s) saved to workspace. Use workspace.readJSON(%q) to access.",
			humanize.Bytes(uint64(len(data))), target),
	}
}

// fileSafe replaces characters that do not belong in a file name.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-', r == '.':
			return r
		default:
			return '_'
		}
	}, s)
}
