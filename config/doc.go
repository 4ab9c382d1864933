// Package config loads the set of services the gateway wraps.
//
// The file is JSON with comments and trailing commas allowed:
//
//	{
//	  // one entry per wrapped MCP server
//	  "servers": [
//	    {"name": "mermaid", "command": "npx", "args": ["-y", "mcp-mermaid"]},
//	    {"name": "gemini", "command": "npx", "args": ["-y", "@rlabs-inc/gemini-mcp"],
//	     "env": {"GEMINI_API_KEY": "${GEMINI_API_KEY}"}},
//	  ]
//	}
//
// Names become script globals, so they must be identifiers that do not
// shadow anything the script scope already binds. When no file is found
// the built-in defaults are used.
package config
