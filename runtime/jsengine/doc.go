// Package jsengine implements code.Engine with an embedded JavaScript
// interpreter.
//
// Each Execute call gets its own interpreter running on its own event loop.
// The script is compiled as the body of an async function, so it may use
// await and return. Its globals are limited to the standard ECMAScript
// built-ins, timers, and what the Scope provides:
//
//   - console: log, info, warn, error and debug, captured into the Scope's console.
//   - workspace: promise-returning file helpers over the Scope's workspace.
//   - one object per configured service, where svc.capability(args)
//     returns a promise for the remote result.
//
// There is no require, no process, and no host file system or network.
//
// When ctx ends first, the interpreter is interrupted and the loop is
// abandoned. Capability calls already in flight keep running until the
// remote side answers; their results are discarded.
package jsengine
