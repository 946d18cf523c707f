package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmen-recycling/voice-agent/internal/auth"
	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/config"
	"github.com/axmen-recycling/voice-agent/internal/memory"
	"github.com/axmen-recycling/voice-agent/internal/monitoring"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

const (
	adminEmail    = "yard@axmen.test"
	adminPassword = "scrap-metal"
)

type testServer struct {
	handler http.Handler
	store   *storage.Store
	answers *cache.MemoryClient
	audit   *monitoring.AuditLogger
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:", storage.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.Migrate(ctx)
	require.NoError(t, err)

	pricing := storage.NewPricingRepository(store)
	knowledge := storage.NewKnowledgeRepository(store)
	require.NoError(t, pricing.Create(ctx, &storage.Entry{
		Question: "Copper price", Intent: "copper", AnswerVoice: "Bare bright copper is three dollars a pound.",
		Category: "metals", Priority: 10, Active: true,
	}))
	require.NoError(t, knowledge.Create(ctx, &storage.Entry{
		Question: "What are your hours?", Intent: "hours", AnswerVoice: "We're open eight to five, Monday through Friday.",
		Category: "general", Priority: 5, Active: true,
	}))

	answers := cache.NewMemoryClient(100)
	t.Cleanup(func() { _ = answers.Close() })

	audit := monitoring.NewAuditLogger(nil, storage.NewResolutionRepository(store), nil)
	t.Cleanup(audit.Wait)
	cascade := retrieval.NewCascade(retrieval.NewStoreSources(store), retrieval.DefaultConfig(), nil,
		retrieval.WithCache(answers), retrieval.WithObserver(audit))

	hash, err := auth.HashPassword(adminPassword)
	require.NoError(t, err)
	issuer, err := auth.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	authSvc := auth.NewService(auth.NewStaticProvider([]auth.StaticUser{
		{ID: "admin-1", Email: adminEmail, PasswordHash: hash},
	}), issuer)

	cfg := config.DefaultConfig()
	handler := NewRouter(nil, cfg, &Services{
		Store:   store,
		Cascade: cascade,
		Answers: answers,
		Callers: caller.NewService(
			storage.NewCallbackRepository(store),
			storage.NewCustomerMessageRepository(store),
			nil,
		),
		Recorder: memory.NewRecorder(storage.NewConversationRepository(store), nil),
		Auth:     authSvc,
	})

	return &testServer{handler: handler, store: store, answers: answers, audit: audit}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": adminEmail, "password": adminPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Token string    `json:"token"`
		User  auth.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "admin-1", resp.User.ID)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m), rec.Body.String())
	return m
}

func toolCall(id, name string, args map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"message": map[string]interface{}{
			"type": "tool-calls",
			"toolCalls": []interface{}{
				map[string]interface{}{
					"id":       id,
					"type":     "function",
					"function": map[string]interface{}{"name": name, "arguments": args},
				},
			},
		},
	}
}

func resultText(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var resp struct {
		Results []struct {
			ToolCallID string `json:"toolCallId"`
			Result     string `json:"result"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.Len(t, resp.Results, 1)
	return resp.Results[0].ToolCallID, resp.Results[0].Result
}

func TestRouter_StatusEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Axmen Recycling Admin API", decodeMap(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeMap(t, rec)["status"])

	rec = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_SearchPricing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("call_1", "search_pricing", map[string]interface{}{
		"material": "copper",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id, text := resultText(t, rec)
	assert.Equal(t, "call_1", id)
	assert.Equal(t, "Bare bright copper is three dollars a pound.", text)

	rec = s.do(t, http.MethodPost, "/api/vapi/search-faqs", "", toolCall("call_2", "search_faqs", map[string]interface{}{
		"question": "hours",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text = resultText(t, rec)
	assert.Contains(t, text, "eight to five")
}

func TestRouter_SearchPricingStringArguments(t *testing.T) {
	s := newTestServer(t)

	body := `{"message":{"toolCallList":[{"id":"call_9","function":{"name":"search_pricing","arguments":"{\"query\":\"copper\"}"}}]}}`
	rec := s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	id, text := resultText(t, rec)
	assert.Equal(t, "call_9", id)
	assert.Contains(t, text, "copper")
}

func TestRouter_SearchPricingFallback(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("call_3", "search_pricing", map[string]interface{}{
		"material": "uranium",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text := resultText(t, rec)
	assert.Contains(t, text, "406-543-1905")
}

func TestRouter_SearchPricingBadRequests(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No tool call found", decodeMap(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("", "search_pricing", map[string]interface{}{
		"material": "copper",
	}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_VoiceMethodHandling(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodDelete, "/api/vapi/save-callback", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "DELETE", decodeMap(t, rec)["received_method"])

	rec = s.do(t, http.MethodOptions, "/api/vapi/save-callback", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRouter_LegacyPricing(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/vapi/search-pricing?material=copper", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Copper price", body["material"])

	rec = s.do(t, http.MethodGet, "/api/vapi/search-pricing", "", nil)
	assert.Equal(t, "Please specify a material to search for", decodeMap(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/vapi/search-pricing?material=gold", "", nil)
	assert.Contains(t, decodeMap(t, rec)["message"], "I don't have pricing information for gold")
}

func TestRouter_CallbackFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/save-callback", "", toolCall("call_4", "save_callback", map[string]interface{}{
		"caller_name":          "Dana Smith",
		"caller_phone":         "(406) 555-1234",
		"material_description": "two tons of brass",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, text := resultText(t, rec)
	assert.Equal(t, "Got it! Someone from our team will call you back at four o six, five five five, one two three four. Is there anything else I can help you with?", text)

	rec = s.do(t, http.MethodPost, "/api/vapi/get-caller-info", "", toolCall("call_5", "get_caller_info", map[string]interface{}{
		"phone_number": "+1 406-555-1234",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text = resultText(t, rec)
	var info caller.Info
	require.NoError(t, json.Unmarshal([]byte(text), &info))
	assert.True(t, info.IsReturning)
	require.NotNil(t, info.CallerName)
	assert.Equal(t, "Dana", *info.CallerName)

	rec = s.do(t, http.MethodPost, "/api/vapi/save-callback", "", toolCall("call_6", "save_callback", map[string]interface{}{
		"caller_name": "No Phone",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text = resultText(t, rec)
	assert.Equal(t, caller.PromptMissingPhone, text)

	token := s.login(t)
	rec = s.do(t, http.MethodGet, "/api/callbacks?status=pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var cbs []storage.CallbackRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cbs))
	require.Len(t, cbs, 1)

	rec = s.do(t, http.MethodPut, "/api/callbacks/"+cbs[0].ID.String()+"/status", token, map[string]string{"status": "completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPut, "/api/callbacks/"+cbs[0].ID.String()+"/status", token, map[string]string{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SaveMessage(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/save-message", "", toolCall("call_7", "save_message", map[string]interface{}{
		"customer_phone": "406-555-0000",
		"message":        "Do you buy catalytic converters?",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, text := resultText(t, rec)
	assert.Equal(t, "Thank you! I've recorded your message and someone from Axmen Recycling will call you back soon at 406-555-0000.", text)

	token := s.login(t)
	rec = s.do(t, http.MethodGet, "/api/messages", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []storage.CustomerMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Unknown", msgs[0].CustomerName)
}

func TestRouter_Webhook(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/webhook", "", map[string]interface{}{
		"message": map[string]interface{}{"type": "assistant.started"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acknowledged", decodeMap(t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", toolCall("call_8", "lookup_material_price", map[string]interface{}{
		"material": "copper",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text := resultText(t, rec)
	assert.Contains(t, text, "three dollars")

	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", toolCall("call_10", "order_pizza", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text = resultText(t, rec)
	assert.Equal(t, "Function not implemented", text)

	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", map[string]interface{}{
		"message": map[string]interface{}{
			"type":       "end-of-call-report",
			"call":       map[string]interface{}{"id": "vapi-call-1", "customer": map[string]interface{}{"number": "+14065551234"}},
			"transcript": "User: copper?\nAI: three dollars",
			"summary":    "Asked about copper.",
			"messages": []interface{}{
				map[string]interface{}{"role": "user", "message": "copper?"},
				map[string]interface{}{"role": "bot", "message": "three dollars"},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "success", decodeMap(t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", map[string]interface{}{
		"message": map[string]interface{}{"type": "end-of-call-report"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "missing_data", decodeMap(t, rec)["reason"])

	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", map[string]interface{}{
		"message": map[string]interface{}{"type": "status-update"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ignored", decodeMap(t, rec)["status"])

	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", toolCall("call_11", "get_caller_history", map[string]interface{}{
		"phone_number": "406-555-1234",
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	_, text = resultText(t, rec)
	var hist memory.History
	require.NoError(t, json.Unmarshal([]byte(text), &hist))
	assert.True(t, hist.IsReturningCaller)
	assert.Equal(t, "Previous conversation: Asked about copper.", hist.Summary)
}

func TestRouter_WebhookRequiresToolCallID(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/vapi/webhook", "", toolCall("", "lookup_material_price", map[string]interface{}{
		"material": "copper",
	}))
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "Missing toolCallId", decodeMap(t, rec)["error"])

	// the legacy function-call shape has no id to echo
	rec = s.do(t, http.MethodPost, "/api/vapi/webhook", "", map[string]interface{}{
		"message": map[string]interface{}{
			"type": "function-call",
			"functionCall": map[string]interface{}{
				"name":      "lookup_material_price",
				"arguments": map[string]interface{}{"material": "copper"},
			},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, text := resultText(t, rec)
	assert.Contains(t, text, "three dollars")
}

func TestRouter_TestDatabase(t *testing.T) {
	s := newTestServer(t)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := s.do(t, method, "/api/vapi/test-database", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeMap(t, rec)
		assert.Equal(t, true, body["success"])
		tests := body["tests"].(map[string]interface{})
		pricing := tests["material_pricing"].(map[string]interface{})
		assert.Equal(t, float64(1), pricing["total_rows"])
		assert.Nil(t, pricing["error"])
		assert.Contains(t, tests, "recycling_materials")
	}
}

func TestRouter_AdminRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/pricing", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Access token required", decodeMap(t, rec)["error"])

	rec = s.do(t, http.MethodGet, "/api/pricing", "not-a-token", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Invalid or expired token", decodeMap(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": adminEmail, "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid credentials", decodeMap(t, rec)["error"])
}

func TestRouter_PricingCRUDInvalidatesAnswers(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	// Warm the answer cache.
	rec := s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("c1", "search_pricing", map[string]interface{}{"material": "brass"}))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Positive(t, s.answers.Len())

	rec = s.do(t, http.MethodPost, "/api/pricing", token, map[string]interface{}{
		"question": "Yellow brass price", "intent": "brass", "answer_voice": "Yellow brass is two dollars a pound.", "priority": 8,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created storage.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.Active)
	assert.Zero(t, s.answers.Len())

	rec = s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("c2", "search_pricing", map[string]interface{}{"material": "brass"}))
	_, text := resultText(t, rec)
	assert.Equal(t, "Yellow brass is two dollars a pound.", text)

	rec = s.do(t, http.MethodPut, "/api/pricing/"+created.ID.String(), token, map[string]interface{}{
		"answer_voice": "Yellow brass is two fifty a pound.",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated storage.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Yellow brass price", updated.Question)
	assert.Equal(t, "Yellow brass is two fifty a pound.", updated.AnswerVoice)

	rec = s.do(t, http.MethodGet, "/api/pricing", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []storage.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "Copper price", list[0].Question, "priority desc")

	rec = s.do(t, http.MethodDelete, "/api/pricing/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Material deleted successfully", decodeMap(t, rec)["message"])

	rec = s.do(t, http.MethodGet, "/api/pricing/"+created.ID.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/pricing/not-a-uuid", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_KnowledgeAndMaterials(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t)

	rec := s.do(t, http.MethodPost, "/api/materials", token, map[string]interface{}{
		"material_name": "Aluminum cans", "current_price": 0.45, "price_unit": "lb", "category": "non-ferrous",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("c3", "search_pricing", map[string]interface{}{"material": "aluminum cans"}))
	_, text := resultText(t, rec)
	assert.Equal(t, "We're currently paying $0.45 per lb for Aluminum cans.", text)

	rec = s.do(t, http.MethodPost, "/api/materials", token, map[string]interface{}{"description": "nameless"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/recycle-knowledge", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []storage.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = s.do(t, http.MethodDelete, "/api/recycle-knowledge/"+list[0].ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Knowledge entry deleted successfully", decodeMap(t, rec)["message"])
}

func TestRouter_Conversations(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/conversations", "", map[string]interface{}{
		"call_id":           "vapi-2",
		"phone_number":      "406-555-7777",
		"resolution_status": "resolved",
		"messages": []interface{}{
			map[string]interface{}{"sender": "customer", "content": "hi"},
			map[string]interface{}{"sender": "agent", "content": "hello"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created storage.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	token := s.login(t)

	rec = s.do(t, http.MethodGet, "/api/conversations?status=pending", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/conversations?status=all", token, nil)
	var list []storage.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)

	rec = s.do(t, http.MethodGet, "/api/conversations/"+created.ID.String(), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got storage.Conversation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "customer", got.Messages[0].Sender)

	rec = s.do(t, http.MethodPut, "/api/conversations/"+created.ID.String(), token, map[string]interface{}{
		"issue_category": "pricing", "satisfaction_score": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats storage.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalCalls)
	assert.Equal(t, 1, stats.ResolvedCalls)
	assert.Equal(t, 1, stats.ActiveKnowledge)
}

func TestRouter_ResolutionStats(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("c1", "search_pricing", map[string]interface{}{"material": "copper"}))
	s.do(t, http.MethodPost, "/api/vapi/search-pricing", "", toolCall("c2", "search_pricing", map[string]interface{}{"material": "plutonium"}))
	s.audit.Wait()

	token := s.login(t)
	rec := s.do(t, http.MethodGet, "/api/resolutions/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Total  int            `json:"total"`
		Stages map[string]int `json:"stages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Stages["exact"])
	assert.Equal(t, 1, resp.Stages["fallback"])
}
