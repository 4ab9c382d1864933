package code

import "context"

// Engine runs a script against a Scope. Implementations bind exactly the
// scope's console, proxies and workspace into the script's globals and
// nothing else from the host.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return ctx.Err() when canceled.
// - Errors: uncaught script failures should be *CodeError; callers use errors.Is.
// - Ownership: params and scope are read-only; the returned Completion is caller-owned.
type Engine interface {
	// Execute runs params.Code and reports how it finished.
	Execute(ctx context.Context, params ExecuteParams, scope *Scope) (Completion, error)
}
