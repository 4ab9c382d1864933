// Package code runs untrusted scripts against the configured services.
//
// A run gets a fresh Scope holding a Console, one Proxy per configured
// service and the Workspace. The Engine binds exactly those into the
// script's globals. DefaultExecutor races the engine against the deadline
// and bounds what comes back:
//
//   - Capability results above MaxResultChars are written under
//     workspace.ResultsDir and replaced by a SavedResult.
//   - Log sequences above MaxLogChars are replaced by a LogSummary.
//   - A returned value is appended to the logs as a ReturnRecord.
//
// Script failures and timeouts are reported in ExecuteResult.Error; only
// unusable params make ExecuteCode return an error.
//
// Every capability call is recorded in the shared audit.Log and in the
// run's ExecuteResult.ToolCalls.
package code
