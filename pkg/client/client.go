// Package client provides the public Go SDK for the voice agent API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL is used when ClientConfig.BaseURL is empty.
const DefaultBaseURL = "http://localhost:4000"

// ErrNoResult is returned when a tool response carries no results.
var ErrNoResult = errors.New("tool response has no results")

// Client calls the voice agent API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientConfig holds client configuration. Token is the admin bearer token and
// is only needed for admin endpoints.
type ClientConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// NewClient creates a new client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("base URL must be http or https: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// SetToken sets the bearer token used for admin endpoints.
func (c *Client) SetToken(token string) {
	c.token = token
}

// toolRequest mirrors the voice platform's tool-call envelope.
type toolRequest struct {
	Message toolMessage `json:"message"`
}

type toolMessage struct {
	Type      string     `json:"type"`
	ToolCalls []toolCall `json:"toolCalls"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// ToolResult is one entry of a tool response.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

type toolResponse struct {
	Results []ToolResult `json:"results"`
}

// CallTool posts a tool call to /api/vapi/{endpoint} and returns the first result.
func (c *Client) CallTool(ctx context.Context, endpoint, function string, args map[string]interface{}) (*ToolResult, error) {
	req := toolRequest{Message: toolMessage{
		Type: "tool-calls",
		ToolCalls: []toolCall{{
			ID:       "call_" + uuid.NewString(),
			Type:     "function",
			Function: toolFunction{Name: function, Arguments: args},
		}},
	}}

	var resp toolResponse
	if err := c.do(ctx, http.MethodPost, "/api/vapi/"+endpoint, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, ErrNoResult
	}
	return &resp.Results[0], nil
}

// Resolve asks the agent a question and returns the spoken answer.
func (c *Client) Resolve(ctx context.Context, query string) (string, error) {
	res, err := c.CallTool(ctx, "search-pricing", "lookup_material_price", map[string]interface{}{"query": query})
	if err != nil {
		return "", err
	}
	return res.Result, nil
}

// CallerInfo is the result of a caller lookup.
type CallerInfo struct {
	IsReturning bool    `json:"is_returning"`
	CallerName  *string `json:"caller_name"`
	Message     string  `json:"message"`
}

// CallerInfo looks up a phone number.
func (c *Client) CallerInfo(ctx context.Context, phone string) (*CallerInfo, error) {
	res, err := c.CallTool(ctx, "get-caller-info", "get_caller_info", map[string]interface{}{"phone": phone})
	if err != nil {
		return nil, err
	}
	var info CallerInfo
	if err := json.Unmarshal([]byte(res.Result), &info); err != nil {
		return nil, fmt.Errorf("decode caller info: %w", err)
	}
	return &info, nil
}

// Login exchanges admin credentials for a bearer token and keeps it on the client.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &resp); err != nil {
		return "", err
	}
	c.token = resp.Token
	return resp.Token, nil
}

// Stats holds dashboard counters.
type Stats struct {
	TotalMaterials  int `json:"total_materials"`
	ActiveMaterials int `json:"active_materials"`
	TotalKnowledge  int `json:"total_knowledge"`
	ActiveKnowledge int `json:"active_knowledge"`
	TotalCalls      int `json:"total_calls"`
	ResolvedCalls   int `json:"resolved_calls"`
	OpenCallbacks   int `json:"open_callbacks"`
}

// Stats fetches dashboard counters. Requires a token.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	if err := c.do(ctx, http.MethodGet, "/api/stats", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// Health checks the service health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var h HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("voice agent API: %d %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
