package code

import "errors"

// Sentinel errors for error classification.
var (
	// ErrScriptFault indicates an uncaught failure raised by a script,
	// including syntax errors.
	ErrScriptFault = errors.New("script fault")

	// ErrExecutionTimeout indicates a script did not finish before its
	// deadline.
	ErrExecutionTimeout = errors.New("execution timed out")

	// ErrConfiguration indicates an invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidParams indicates unusable execution parameters.
	ErrInvalidParams = errors.New("invalid execution parameters")
)

// CodeError is an uncaught failure raised by a script.
type CodeError struct {
	// Message is the error's message.
	Message string

	// Name is the script-level error type (e.g. "TypeError"), if known.
	Name string

	// Stack is the interpreter's stack trace, if available.
	Stack string

	// Err is the underlying error, if any.
	Err error
}

// Error returns the error message. Positions live in Stack.
func (e *CodeError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is and errors.As.
func (e *CodeError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target.
// CodeError matches ErrScriptFault to allow sentinel-style error checking.
func (e *CodeError) Is(target error) bool {
	return target == ErrScriptFault
}
