package server

import (
	"fmt"
	"strings"
)

const searchDescription = `Search for MCP tools across all wrapped servers. Returns slim results (name, server, description, example) for discovery.

Use get_tool_schema(name) to get the full inputSchema when you are ready to call a specific tool.

Example queries:
- "semantic code search" - code navigation tools
- "generate diagram" - diagram tools
- "fetch webpage" - HTTP fetch tools`

const schemaDescription = `Get the full inputSchema for a specific tool. Use after search_tools to get parameter details before calling execute_code.

Example: get_tool_schema("generate_mermaid_diagram") returns the full schema with all parameters, types and enums.`

func instructions(services []string) string {
	return strings.TrimSpace(fmt.Sprintf(`
tool-executor wraps several MCP servers behind three tools:
- search_tools finds capabilities by keyword.
- get_tool_schema returns the input schema for one capability.
- execute_code runs JavaScript with every wrapped server bound as a global object.
Wrapped servers: %s
Large capability results are saved under the workspace and replaced by a reference; read them back with workspace.readJSON.`,
		strings.Join(services, ", ")))
}

func executeDescription(services []string) string {
	var b strings.Builder
	b.WriteString("Execute JavaScript with access to all MCP clients and workspace helpers.\n\n")
	b.WriteString("Available MCP clients (call capabilities as async functions):\n")
	for _, name := range services {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	b.WriteString(`
Workspace API (file operations scoped to the workspace directory):
- workspace.read(path), workspace.write(path, data), workspace.append(path, data)
- workspace.readJSON(path), workspace.writeJSON(path, data)
- workspace.list(path), workspace.glob(pattern), workspace.stat(path)
- workspace.exists(path), workspace.mkdir(path), workspace.delete(path)

Example:
const result = await serena.search_for_pattern({substring_pattern: "handleError", relative_path: "src"});
console.log(result);
await workspace.writeJSON("results.json", result);

The code runs as the body of an async function. Console output and the returned value come back as a logs array.`)
	return b.String()
}
