package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// Resolver answers free-text questions.
type Resolver interface {
	Resolve(ctx context.Context, rawQuery string) (*retrieval.Resolution, error)
}

// Callers looks up callers and records callback requests.
type Callers interface {
	Lookup(ctx context.Context, phone string) (*caller.Info, error)
	SaveCallback(ctx context.Context, in caller.CallbackInput) (*storage.CallbackRequest, error)
}

// Handlers implements the MCP tools.
type Handlers struct {
	resolver Resolver
	callers  Callers
	logger   *observability.Logger
}

// NewHandlers creates tool handlers.
func NewHandlers(resolver Resolver, callers Callers, logger *observability.Logger) *Handlers {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handlers{resolver: resolver, callers: callers, logger: logger}
}

// LookupMaterialPrice handles the lookup_material_price tool.
func (h *Handlers) LookupMaterialPrice(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query argument is required and must be a string"), nil
	}

	res, err := h.resolver.Resolve(ctx, query)
	if err != nil {
		h.logger.Error().Err(err).Str("tool", ToolLookupMaterialPrice).Msg("Resolution failed")
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}

	response := map[string]interface{}{
		"answer":  res.Answer,
		"stage":   string(res.Stage),
		"matched": res.Matched(),
	}
	if res.Source != "" {
		response["source"] = res.Source
	}
	return jsonResult(response)
}

// GetCallerInfo handles the get_caller_info tool.
func (h *Handlers) GetCallerInfo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	phone, err := request.RequireString("phone")
	if err != nil {
		return mcp.NewToolResultError("phone argument is required and must be a string"), nil
	}

	info, err := h.callers.Lookup(ctx, phone)
	if err != nil {
		h.logger.Error().Err(err).Str("tool", ToolGetCallerInfo).Msg("Caller lookup failed")
		return mcp.NewToolResultError(fmt.Sprintf("caller lookup failed: %v", err)), nil
	}
	return jsonResult(info)
}

// SaveCallback handles the save_callback tool. A missing phone number returns
// the prompt the agent should speak instead of an error.
func (h *Handlers) SaveCallback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := caller.CallbackInput{
		Name:        request.GetString("caller_name", ""),
		Phone:       request.GetString("caller_phone", ""),
		Description: request.GetString("material_description", ""),
		Notes:       request.GetString("notes", ""),
	}

	cb, err := h.callers.SaveCallback(ctx, in)
	if errors.Is(err, caller.ErrMissingPhone) {
		return jsonResult(map[string]interface{}{
			"success": false,
			"message": caller.PromptMissingPhone,
		})
	}
	if err != nil {
		h.logger.Error().Err(err).Str("tool", ToolSaveCallback).Msg("Failed to save callback")
		return mcp.NewToolResultError(fmt.Sprintf("failed to save callback: %v", err)), nil
	}

	return jsonResult(map[string]interface{}{
		"success":     true,
		"callback_id": cb.ID.String(),
		"message":     caller.CallbackConfirmation(cb.CallerPhone),
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
