package code

import (
	"time"

	"github.com/elb-pr/claudikins-tool-executor/audit"
)

// ExecuteParams specifies the parameters for executing a script.
type ExecuteParams struct {
	// Code is the script body. It runs as the body of an async function,
	// so it may use await and return.
	Code string `json:"code"`

	// Timeout is the execution deadline.
	// If zero, the executor's default timeout is used.
	Timeout time.Duration `json:"timeout"`
}

// ExecuteResult is the bounded outcome of one script run.
type ExecuteResult struct {
	// Logs holds console output in program order, followed by a
	// ReturnRecord if the script returned a value. Oversized log sequences
	// are replaced by a single LogSummary.
	Logs []any `json:"logs"`

	// Error is set when the script failed or timed out.
	Error string `json:"error,omitempty"`

	// Stack is the script's stack trace when one is available.
	Stack string `json:"stack,omitempty"`

	// ExecutionID identifies the run in logs.
	ExecutionID string `json:"-"`

	// ToolCalls records the capability invocations made during the run.
	ToolCalls []audit.Entry `json:"-"`

	// DurationMs is the total execution time in milliseconds.
	DurationMs int64 `json:"-"`

	err error
}

// OK reports whether the run completed without error.
func (r ExecuteResult) OK() bool {
	return r.Error == ""
}

// Err returns the classified failure behind Error, or nil. Timeouts match
// ErrExecutionTimeout, script failures match ErrScriptFault, and
// cancellations match context.Canceled.
func (r ExecuteResult) Err() error {
	return r.err
}

// Completion is how an engine reports a script that finished.
type Completion struct {
	// Value is the script's return value.
	Value any

	// Returned is false when the script finished without a value.
	Returned bool
}

// ReturnRecord is the final log entry for a script that returned a value.
type ReturnRecord struct {
	Returned any `json:"returned"`
}

// LevelRecord is a leveled console entry (info, warn, error, debug).
type LevelRecord struct {
	Level string `json:"level"`
	Data  []any  `json:"data"`
}

// LogSummary replaces a log sequence that exceeds the size budget.
type LogSummary struct {
	Summary    bool   `json:"_summary"`
	TotalLogs  int    `json:"totalLogs"`
	TotalChars int    `json:"totalChars"`
	Limit      int    `json:"limit"`
	Preview    []any  `json:"preview"`
	Hint       string `json:"hint"`
}

// SavedResult stands in for a capability result that was written to the
// workspace because it was too large to return inline.
type SavedResult struct {
	SavedTo string `json:"_savedTo"`
	Size    int    `json:"_size"`
	Preview string `json:"_preview"`
	Hint    string `json:"_hint"`
}

// TruncatedResult stands in for an oversized capability result that could
// not be saved.
type TruncatedResult struct {
	Warning string `json:"_warning"`
	Size    int    `json:"_size"`
	Preview string `json:"_preview"`
}
