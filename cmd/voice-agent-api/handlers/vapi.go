package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/memory"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/voice"
)

// Prompt spoken when a resolution request carries no question.
const promptMissingQuery = "Sure, what material or question can I help you with?"

// Resolver answers caller questions.
type Resolver interface {
	Resolve(ctx context.Context, rawQuery string) (*retrieval.Resolution, error)
}

// VapiHandler serves the voice platform's tool calls.
type VapiHandler struct {
	base
	pricing  retrieval.Source
	cascade  Resolver
	callers  *caller.Service
	recorder *memory.Recorder
	tools    map[string]toolFunc
}

// toolFunc answers one tool call. A returned error becomes a 500.
type toolFunc func(ctx context.Context, env *voice.Envelope, toolCallID string) (voice.Response, error)

// NewVapiHandler creates a new voice platform handler. pricing backs the
// legacy GET lookup.
func NewVapiHandler(logger *observability.Logger, cascade Resolver, pricing retrieval.Source, callers *caller.Service, recorder *memory.Recorder) *VapiHandler {
	h := &VapiHandler{
		base:     base{logger: logger},
		pricing:  pricing,
		cascade:  cascade,
		callers:  callers,
		recorder: recorder,
	}
	h.tools = map[string]toolFunc{
		"lookup_material_price": h.resolve,
		"search_pricing":        h.resolve,
		"search_faqs":           h.resolve,
		"get_caller_info":       h.callerInfo,
		"get_caller_history":    h.callerHistory,
		"save_callback":         h.saveCallback,
		"save_message":          h.saveMessage,
	}
	return h
}

// SearchPricing resolves a pricing question through the cascade.
func (h *VapiHandler) SearchPricing(w http.ResponseWriter, r *http.Request) {
	h.serveTool(w, r, "search-pricing", h.resolve)
}

// SearchFAQs resolves a general question through the same cascade.
func (h *VapiHandler) SearchFAQs(w http.ResponseWriter, r *http.Request) {
	h.serveTool(w, r, "search-faqs", h.resolve)
}

// GetCallerInfo looks up a returning caller.
func (h *VapiHandler) GetCallerInfo(w http.ResponseWriter, r *http.Request) {
	h.serveTool(w, r, "get-caller-info", h.callerInfo)
}

// SaveCallback records a callback request.
func (h *VapiHandler) SaveCallback(w http.ResponseWriter, r *http.Request) {
	h.serveTool(w, r, "save-callback", h.saveCallback)
}

// SaveMessage records a message for staff.
func (h *VapiHandler) SaveMessage(w http.ResponseWriter, r *http.Request) {
	h.serveTool(w, r, "save-message", h.saveMessage)
}

func (h *VapiHandler) serveTool(w http.ResponseWriter, r *http.Request, op string, fn toolFunc) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx).WithOperation(op)

	env, err := voice.Decode(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if !env.HasInput() {
		logger.Warn().Msg("No tool call found")
		h.writeError(w, http.StatusBadRequest, "No tool call found", "")
		return
	}

	toolCallID := env.ToolCallID()
	if len(env.Message.ToolCalls)+len(env.Message.ToolCallList) > 0 && toolCallID == "" {
		h.writeError(w, http.StatusBadRequest, "Missing toolCallId", "")
		return
	}

	h.respond(ctx, w, logger.WithToolCall(toolCallID), fn, env, toolCallID)
}

func (h *VapiHandler) respond(ctx context.Context, w http.ResponseWriter, logger *observability.Logger, fn toolFunc, env *voice.Envelope, toolCallID string) {
	resp, err := fn(ctx, env, toolCallID)
	if err != nil {
		logger.Error().Err(err).Msg("Tool call failed")
		h.writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	if err := voice.Write(w, http.StatusOK, resp); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (h *VapiHandler) resolve(ctx context.Context, env *voice.Envelope, toolCallID string) (voice.Response, error) {
	res, err := h.cascade.Resolve(ctx, env.First(voice.QueryKeys...))
	if errors.Is(err, retrieval.ErrMissingQuery) {
		return voice.Result(toolCallID, promptMissingQuery), nil
	}
	if err != nil {
		return voice.Response{}, err
	}
	return voice.Result(toolCallID, res.Answer), nil
}

func (h *VapiHandler) callerInfo(ctx context.Context, env *voice.Envelope, toolCallID string) (voice.Response, error) {
	info, err := h.callers.Lookup(ctx, env.CallerPhone())
	if err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Msg("Caller lookup failed")
		info = &caller.Info{Message: "Database error"}
	}
	return voice.JSONResult(toolCallID, info)
}

func (h *VapiHandler) callerHistory(ctx context.Context, env *voice.Envelope, toolCallID string) (voice.Response, error) {
	phone := env.CallerPhone()
	hist, err := h.recorder.History(ctx, phone)
	if err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Msg("Caller history lookup failed")
		hist = &memory.History{Summary: "Unable to retrieve caller history.", CallerPhone: phone}
	}
	return voice.JSONResult(toolCallID, hist)
}

func (h *VapiHandler) saveCallback(ctx context.Context, env *voice.Envelope, toolCallID string) (voice.Response, error) {
	cb, err := h.callers.SaveCallback(ctx, caller.CallbackInput{
		Name:        env.First(voice.CallbackNameKeys...),
		Phone:       env.First(voice.CallbackPhoneKeys...),
		Description: env.First(voice.CallbackDescriptionKeys...),
		Notes:       env.First(voice.NotesKeys...),
	})
	if errors.Is(err, caller.ErrMissingPhone) {
		return voice.Result(toolCallID, caller.PromptMissingPhone), nil
	}
	if err != nil {
		return voice.Response{}, err
	}
	return voice.Result(toolCallID, caller.CallbackConfirmation(cb.CallerPhone)), nil
}

func (h *VapiHandler) saveMessage(ctx context.Context, env *voice.Envelope, toolCallID string) (voice.Response, error) {
	m, err := h.callers.SaveMessage(ctx, caller.MessageInput{
		Name:    env.First(voice.MessageNameKeys...),
		Phone:   env.First(voice.MessagePhoneKeys...),
		Message: env.First(voice.MessageBodyKeys...),
	})
	if err != nil {
		return voice.Response{}, err
	}
	return voice.Result(toolCallID, h.callers.MessageConfirmation(m)), nil
}

// Webhook is the unified endpoint for every voice platform event.
func (h *VapiHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx).WithOperation("webhook")

	env, err := voice.Decode(r.Body)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	msgType := env.Type()
	logger.Debug().Str("type", msgType).Msg("Webhook received")

	switch msgType {
	case voice.TypeAssistantStarted:
		logger.Info().Str("phone_key", caller.NormalizePhone(env.CustomerNumber())).Msg("Call started")
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})

	case voice.TypeToolCalls, voice.TypeFunctionCall:
		tc, ok := env.ToolCall()
		if !ok {
			h.writeError(w, http.StatusBadRequest, "No tool call found", "")
			return
		}
		// legacy function-call payloads carry no id
		if msgType == voice.TypeToolCalls && tc.ID == "" {
			logger.Warn().Str("function", tc.FunctionName()).Msg("Tool call without id")
			h.writeError(w, http.StatusBadRequest, "Missing toolCallId", "")
			return
		}
		name := tc.FunctionName()
		fn, ok := h.tools[name]
		if !ok {
			logger.Warn().Str("function", name).Msg("Unknown function")
			_ = voice.Write(w, http.StatusOK, voice.Result(tc.ID, "Function not implemented"))
			return
		}
		h.respond(ctx, w, logger.WithToolCall(tc.ID).With().Str("function", name).Logger(), fn, env, tc.ID)

	case voice.TypeEndOfCallReport:
		h.endOfCall(w, r, env, logger)

	default:
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "type": msgType})
	}
}

func (h *VapiHandler) endOfCall(w http.ResponseWriter, r *http.Request, env *voice.Envelope, logger *observability.Logger) {
	transcript, turns := env.Transcript()
	rep := memory.Report{
		CallID:     env.Message.Call.ID,
		Phone:      env.CustomerNumber(),
		Transcript: transcript,
		Summary:    env.Summary(),
		Duration:   time.Duration(env.Message.DurationSeconds * float64(time.Second)),
	}
	if started := firstNonEmpty(env.Message.StartedAt, env.Message.Call.StartedAt); started != "" {
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			rep.StartedAt = t
		}
	}
	for _, t := range turns {
		rep.Turns = append(rep.Turns, memory.Turn{Role: t.Role, Text: t.Text()})
	}

	conv, err := h.recorder.SaveCallReport(r.Context(), rep)
	if errors.Is(err, memory.ErrMissingData) {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "ignored", "reason": "missing_data"})
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save call report")
		h.writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":          "success",
		"message":         "Conversation saved",
		"conversation_id": conv.ID.String(),
	})
}

// LegacyPricing answers GET /api/vapi/search-pricing?material= with the top
// pricing row whose question contains the material.
func (h *VapiHandler) LegacyPricing(w http.ResponseWriter, r *http.Request) {
	material := strings.TrimSpace(r.URL.Query().Get("material"))
	if material == "" {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "Please specify a material to search for",
		})
		return
	}

	facts, err := h.pricing.Find(r.Context(), retrieval.Query{
		Terms:  []string{strings.ToLower(material)},
		Fields: []retrieval.Field{retrieval.FieldQuestion},
		Limit:  1,
	})
	if err != nil {
		h.logger.WithContext(r.Context()).Error().Err(err).Msg("Legacy pricing lookup failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": "Error retrieving pricing information",
		})
		return
	}
	if len(facts) == 0 {
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": "I don't have pricing information for " + material + ". Our staff can give you a quote if you bring it in.",
		})
		return
	}

	f := facts[0]
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"material": f.Question,
		"price":    firstNonEmpty(f.AnswerVoice, f.AnswerLong),
		"category": f.Category,
	})
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
