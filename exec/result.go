package exec

import "time"

// Result represents the outcome of a single direct capability call.
type Result struct {
	// Value is the capability's result, or a saved-result reference when
	// the result was too large to return inline.
	Value any

	// ToolID is the "service:capability" ID that was called.
	ToolID string

	// Duration is how long the call took.
	Duration time.Duration

	// Error is non-nil if the capability failed.
	// This is set when the remote call fails, not for resolution
	// errors (which are returned from RunTool directly).
	Error error
}

// OK returns true if the result has no error.
func (r Result) OK() bool {
	return r.Error == nil
}
