package config

import (
	"os"

	"github.com/elb-pr/claudikins-tool-executor/backend"
)

var defaultServers = []Server{
	{Name: "notebooklm", DisplayName: "NotebookLM", Command: "npx", Args: []string{"-y", "notebooklm-mcp"}},
	{Name: "sequentialThinking", DisplayName: "Sequential Thinking", Command: "npx", Args: []string{"-y", "@modelcontextprotocol/server-sequential-thinking"}},
	{Name: "context7", DisplayName: "Context7", Command: "npx", Args: []string{"-y", "@upstash/context7-mcp"}},
	{Name: "gemini", DisplayName: "Gemini", Command: "npx", Args: []string{"-y", "@rlabs-inc/gemini-mcp"}, Env: map[string]string{"GEMINI_API_KEY": "${GEMINI_API_KEY}"}},
	{Name: "shadcn", DisplayName: "shadcn", Command: "npx", Args: []string{"-y", "shadcn-ui-mcp-server"}},
	{Name: "mermaid", DisplayName: "Mermaid", Command: "npx", Args: []string{"-y", "mcp-mermaid"}},
	{Name: "apify", DisplayName: "Apify", Command: "npx", Args: []string{"-y", "@apify/actors-mcp-server"}, Env: map[string]string{"APIFY_TOKEN": "${APIFY_TOKEN}"}},
	{Name: "serena", DisplayName: "Serena", Command: "uvx", Args: []string{"--from", "git+https://github.com/oraios/serena", "serena", "start-mcp-server"}},
	{Name: "nanoBanana", DisplayName: "Nano Banana", Command: "uvx", Args: []string{"nanobanana-mcp-server@latest"}, Env: map[string]string{"GEMINI_API_KEY": "${GEMINI_API_KEY}"}},
}

// Defaults returns the built-in servers with ${VAR} references resolved.
func Defaults(getenv func(string) string) []backend.Descriptor {
	if getenv == nil {
		getenv = os.Getenv
	}
	servers := make([]Server, len(defaultServers))
	for i, s := range defaultServers {
		servers[i] = s.expand(getenv)
	}
	out, err := resolve(servers)
	if err != nil {
		panic("config: invalid default servers: " + err.Error())
	}
	return out
}
