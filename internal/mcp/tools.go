// Package mcp exposes the voice agent's lookups as Model Context Protocol tools
// so an LLM agent can answer yard questions without the telephony layer.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/axmen-recycling/voice-agent/internal/observability"
)

// Tool names.
const (
	ToolLookupMaterialPrice = "lookup_material_price"
	ToolGetCallerInfo       = "get_caller_info"
	ToolSaveCallback        = "save_callback"
)

// NewServer creates an MCP server with every tool registered.
func NewServer(name, version string, resolver Resolver, callers Callers, logger *observability.Logger) *mcpserver.MCPServer {
	server := mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(false))
	RegisterTools(server, resolver, callers, logger)
	return server
}

// RegisterTools adds the tools to server and returns their handlers.
func RegisterTools(server *mcpserver.MCPServer, resolver Resolver, callers Callers, logger *observability.Logger) *Handlers {
	h := NewHandlers(resolver, callers, logger)

	server.AddTool(mcp.Tool{
		Name:        ToolLookupMaterialPrice,
		Description: "Answer a caller's question about material prices, accepted materials, hours, or policies from the yard's curated answers.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "The caller's question, e.g. 'how much for copper wire'",
				},
			},
			Required: []string{"query"},
		},
	}, h.LookupMaterialPrice)

	server.AddTool(mcp.Tool{
		Name:        ToolGetCallerInfo,
		Description: "Check whether a phone number belongs to a returning caller and get their first name.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"phone": map[string]interface{}{
					"type":        "string",
					"description": "Caller phone number in any format",
				},
			},
			Required: []string{"phone"},
		},
	}, h.GetCallerInfo)

	server.AddTool(mcp.Tool{
		Name:        ToolSaveCallback,
		Description: "Record a request for staff to call the customer back.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"caller_phone": map[string]interface{}{
					"type":        "string",
					"description": "Number to call back",
				},
				"caller_name": map[string]interface{}{
					"type":        "string",
					"description": "Caller's name",
				},
				"material_description": map[string]interface{}{
					"type":        "string",
					"description": "What the caller wants to bring in",
				},
				"notes": map[string]interface{}{
					"type":        "string",
					"description": "Anything else staff should know",
				},
			},
			Required: []string{"caller_phone"},
		},
	}, h.SaveCallback)

	return h
}
