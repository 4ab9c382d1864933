// Package server exposes the gateway as a Model Context Protocol server.
//
// Three tools are registered: search_tools ranks catalog entries,
// get_tool_schema returns one entry's input schema, and execute_code runs a
// script with every configured service bound. Every response is a single
// JSON text block; failures set isError and carry an "error" field.
package server
