package code

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/elb-pr/claudikins-tool-executor/metrics"
)

// Executor is the main entry point for executing scripts.
// It builds a fresh scope per run, races the engine against the deadline,
// and bounds what is returned.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines; both are reported in the result, not as errors.
// - Errors: only unusable params return an error (ErrInvalidParams); script failures are reported in ExecuteResult.
// - Ownership: params are read-only; returned ExecuteResult is caller-owned.
type Executor interface {
	// ExecuteCode runs a script with the given parameters.
	ExecuteCode(ctx context.Context, params ExecuteParams) (ExecuteResult, error)
}

// DefaultExecutor is the standard implementation of Executor.
type DefaultExecutor struct {
	cfg Config
}

// NewDefaultExecutor creates a new DefaultExecutor with the given configuration.
// Returns ErrConfiguration if any required field is missing.
func NewDefaultExecutor(cfg Config) (*DefaultExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &DefaultExecutor{cfg: cfg}, nil
}

// ExecuteCode runs a script with the given parameters.
//
// A script that outlives its deadline is abandoned: the result reports the
// timeout while any capability calls it started run to completion in the
// background.
func (e *DefaultExecutor) ExecuteCode(ctx context.Context, params ExecuteParams) (ExecuteResult, error) {
	if strings.TrimSpace(params.Code) == "" {
		return ExecuteResult{}, fmt.Errorf("%w: code is required", ErrInvalidParams)
	}
	if params.Timeout < 0 {
		return ExecuteResult{}, fmt.Errorf("%w: negative timeout %s", ErrInvalidParams, params.Timeout)
	}
	if params.Timeout == 0 {
		params.Timeout = e.cfg.DefaultTimeout
	}

	id := uuid.NewString()
	scope := NewScope(e.cfg)
	logger := e.cfg.Logger.With(zap.String("execution_id", id))

	runCtx, cancel := context.WithTimeout(ctx, params.Timeout)
	defer cancel()

	start := time.Now()
	completion, err := settleFirst(runCtx, func() (Completion, error) {
		return e.cfg.Engine.Execute(runCtx, params, scope)
	})
	duration := time.Since(start)

	logs := scope.Console().Entries()
	result := ExecuteResult{
		ExecutionID: id,
		ToolCalls:   scope.Calls(),
		DurationMs:  duration.Milliseconds(),
	}

	outcome := metrics.StatusOK
	switch {
	case err == nil:
		if completion.Returned {
			logs = append(logs, ReturnRecord{Returned: completion.Value})
		}
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		outcome = metrics.StatusTimeout
		result.Error = fmt.Sprintf("Execution timed out after %dms", params.Timeout.Milliseconds())
		result.err = fmt.Errorf("%w: %w", ErrExecutionTimeout, err)
	case ctx.Err() != nil:
		outcome = metrics.StatusError
		result.Error = "Execution cancelled"
		result.err = ctx.Err()
	default:
		outcome = metrics.StatusError
		result.err = err
		var codeErr *CodeError
		if errors.As(err, &codeErr) {
			result.Error = codeErr.Message
			result.Stack = codeErr.Stack
		} else {
			result.Error = err.Error()
		}
		if result.Error == "" {
			result.Error = "Unknown error"
		}
	}
	result.Logs = Summarize(logs, e.cfg.MaxLogChars)

	e.cfg.Metrics.ObserveExecution(outcome, duration)
	fields := []zap.Field{
		zap.Duration("duration", duration),
		zap.Int("tool_calls", len(result.ToolCalls)),
		zap.Int("log_entries", len(logs)),
		zap.String("outcome", outcome),
	}
	if result.err != nil {
		logger.Info("script failed", append(fields, zap.Error(result.err))...)
	} else {
		logger.Info("script executed", fields...)
	}
	return result, nil
}
