package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/toolfoundation/model"
)

// Common errors for backend operations.
var (
	// ErrServiceUnavailable indicates a connection could not be established
	// or obtained for a service.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrServiceNotFound indicates no descriptor is registered under a name.
	ErrServiceNotFound = errors.New("service not found")

	// ErrUnknownCapability indicates a service does not expose the requested
	// capability. It matches ErrServiceUnavailable.
	ErrUnknownCapability = fmt.Errorf("%w: unknown capability", ErrServiceUnavailable)

	// ErrRemoteInvocation indicates the remote service reported a failure
	// for a capability call.
	ErrRemoteInvocation = errors.New("remote invocation failed")

	// ErrConnectionLost indicates the connection to a service ended during a
	// call. The connection must be replaced before the service is used again.
	ErrConnectionLost = errors.New("connection lost")

	// ErrServiceExists is returned when registering a duplicate descriptor.
	ErrServiceExists = errors.New("service already registered")

	// ErrConfiguration indicates an invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Descriptor identifies how to launch and reach one remote service.
// Descriptors are immutable once registered.
type Descriptor struct {
	// Name is the unique key for the service.
	Name string `json:"name"`

	// DisplayName is a human-readable label.
	DisplayName string `json:"displayName"`

	// Command is the executable launched for the service.
	Command string `json:"command"`

	// Args are passed to Command in order.
	Args []string `json:"args,omitempty"`

	// Env is added to the inherited process environment.
	Env map[string]string `json:"env,omitempty"`
}

// Backend is a live connection to one service.
// Backends can be MCP subprocesses or in-process handlers.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods must honor cancellation/deadlines.
// - Errors: capability failures should be *InvocationError; missing
//   capabilities should match ErrUnknownCapability.
type Backend interface {
	// Kind returns the backend type (e.g., "local", "mcp").
	Kind() string

	// Name returns the service name this backend serves.
	Name() string

	// ListTools returns the capabilities the service exposes.
	ListTools(ctx context.Context) ([]model.Tool, error)

	// Execute invokes a capability.
	Execute(ctx context.Context, tool string, args map[string]any) (any, error)

	// Start establishes the connection (spawn subprocess, handshake, etc.).
	Start(ctx context.Context) error

	// Stop closes the connection.
	Stop() error
}

// Factory creates an unstarted backend for a descriptor.
type Factory func(desc Descriptor) (Backend, error)

// InvocationError is a failure reported by a service for one capability call.
type InvocationError struct {
	Service    string
	Capability string
	Message    string
	Err        error
}

// Error returns the remote message, falling back to the wrapped error.
func (e *InvocationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s.%s failed", e.Service, e.Capability)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

// Is matches ErrRemoteInvocation.
func (e *InvocationError) Is(target error) bool {
	return target == ErrRemoteInvocation
}
