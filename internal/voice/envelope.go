// Package voice reads the voice platform's tool-call envelopes and writes the
// uniform tool-result envelope back.
package voice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Message types sent on the unified webhook.
const (
	TypeAssistantStarted = "assistant.started"
	TypeToolCalls        = "tool-calls"
	TypeFunctionCall     = "function-call"
	TypeEndOfCallReport  = "end-of-call-report"
)

// Argument key tables, tried in order. The first non-empty value wins.
var (
	QueryKeys               = []string{"material", "query", "question"}
	CallerPhoneKeys         = []string{"phone_number", "caller_phone", "phone"}
	CallbackNameKeys        = []string{"caller_name", "customer_name", "name"}
	CallbackPhoneKeys       = []string{"caller_phone", "customer_phone", "phone"}
	CallbackDescriptionKeys = []string{"material_description", "material", "message"}
	NotesKeys               = []string{"notes"}
	MessageNameKeys         = []string{"customer_name", "caller_name", "name"}
	MessagePhoneKeys        = []string{"customer_phone", "caller_phone", "phone"}
	MessageBodyKeys         = []string{"message", "notes"}
)

// ErrEmptyBody is returned by Decode when the request carries no JSON object.
var ErrEmptyBody = errors.New("empty request body")

// Args is a free-form argument bag. It decodes from a JSON object or from a
// string holding a JSON object.
type Args map[string]any

// UnmarshalJSON accepts an object, a JSON-encoded object string, or null.
func (a *Args) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = nil
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "{") {
			// Not an encoded object; treat as absent.
			*a = nil
			return nil
		}
		data = []byte(s)
	}

	m := map[string]any{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	*a = m
	return nil
}

// First returns the first non-empty value among keys, as a trimmed string.
func (a Args) First(keys ...string) string {
	for _, k := range keys {
		if s := stringValue(a[k]); s != "" {
			return s
		}
	}
	return ""
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}

// Function is the function portion of a tool call.
type Function struct {
	Name      string `json:"name"`
	Arguments Args   `json:"arguments"`
}

// ToolCall is a single tool invocation. ID is the correlation token that must
// be echoed back in the result.
type ToolCall struct {
	ID         string   `json:"id"`
	Type       string   `json:"type,omitempty"`
	Name       string   `json:"name,omitempty"`
	Function   Function `json:"function"`
	Parameters Args     `json:"parameters,omitempty"`
}

// FunctionName returns the invoked function, preferring function.name.
func (tc *ToolCall) FunctionName() string {
	if tc.Function.Name != "" {
		return tc.Function.Name
	}
	return tc.Name
}

// Customer identifies the caller.
type Customer struct {
	Number string `json:"number"`
	Name   string `json:"name,omitempty"`
}

// Call describes the live call the message belongs to.
type Call struct {
	ID        string   `json:"id"`
	Customer  Customer `json:"customer"`
	StartedAt string   `json:"startedAt,omitempty"`
}

// TranscriptMessage is one turn of an end-of-call transcript.
type TranscriptMessage struct {
	Role    string `json:"role"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

// Text returns the spoken text of the turn.
func (m TranscriptMessage) Text() string {
	if m.Message != "" {
		return m.Message
	}
	return m.Content
}

// Artifact carries recordings and transcripts attached to a report.
type Artifact struct {
	Transcript string              `json:"transcript,omitempty"`
	Messages   []TranscriptMessage `json:"messages,omitempty"`
}

// Analysis is the platform's post-call analysis.
type Analysis struct {
	Summary string `json:"summary,omitempty"`
}

// Message is the body of an envelope.
type Message struct {
	Type         string     `json:"type"`
	ToolCalls    []ToolCall `json:"toolCalls,omitempty"`
	ToolCallList []ToolCall `json:"toolCallList,omitempty"`
	FunctionCall *Function  `json:"functionCall,omitempty"`
	Call         Call       `json:"call"`
	Customer     Customer   `json:"customer"`

	Transcript      string              `json:"transcript,omitempty"`
	Summary         string              `json:"summary,omitempty"`
	Messages        []TranscriptMessage `json:"messages,omitempty"`
	Artifact        *Artifact           `json:"artifact,omitempty"`
	Analysis        *Analysis           `json:"analysis,omitempty"`
	EndedReason     string              `json:"endedReason,omitempty"`
	StartedAt       string              `json:"startedAt,omitempty"`
	DurationSeconds float64             `json:"durationSeconds,omitempty"`
}

// Envelope is an inbound request from the voice platform. Besides the nested
// message it tolerates legacy top-level "arguments" and direct fields.
type Envelope struct {
	Message   Message
	Arguments Args
	Direct    Args
}

// UnmarshalJSON splits the body into message, legacy arguments and direct fields.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if m, ok := raw["message"]; ok {
		if err := json.Unmarshal(m, &e.Message); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		delete(raw, "message")
	}

	if a, ok := raw["arguments"]; ok {
		// Unparseable legacy arguments are treated as missing.
		if err := json.Unmarshal(a, &e.Arguments); err != nil {
			e.Arguments = nil
		}
		delete(raw, "arguments")
	}

	e.Direct = Args{}
	for k, v := range raw {
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var val any
		if err := dec.Decode(&val); err == nil {
			e.Direct[k] = val
		}
	}
	return nil
}

// Decode reads an envelope from r.
func Decode(r io.Reader) (*Envelope, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyBody
	}

	var e Envelope
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &e, nil
}

// Type returns the message type.
func (e *Envelope) Type() string {
	return e.Message.Type
}

// ToolCall returns the first tool call from toolCallList, then toolCalls,
// then the legacy functionCall.
func (e *Envelope) ToolCall() (*ToolCall, bool) {
	switch {
	case len(e.Message.ToolCallList) > 0:
		return &e.Message.ToolCallList[0], true
	case len(e.Message.ToolCalls) > 0:
		return &e.Message.ToolCalls[0], true
	case e.Message.FunctionCall != nil:
		return &ToolCall{Function: *e.Message.FunctionCall}, true
	}
	return nil, false
}

// ToolCallID returns the correlation token of the first tool call, or "".
func (e *Envelope) ToolCallID() string {
	if tc, ok := e.ToolCall(); ok {
		return tc.ID
	}
	return ""
}

// ArgSources returns every argument bag in lookup order: the tool call's
// function arguments, its parameters, legacy arguments, then direct fields.
func (e *Envelope) ArgSources() []Args {
	var sources []Args
	if tc, ok := e.ToolCall(); ok {
		sources = append(sources, tc.Function.Arguments, tc.Parameters)
	}
	return append(sources, e.Arguments, e.Direct)
}

// First looks keys up across all argument sources. Each source is exhausted
// before the next is consulted.
func (e *Envelope) First(keys ...string) string {
	for _, a := range e.ArgSources() {
		if s := a.First(keys...); s != "" {
			return s
		}
	}
	return ""
}

// HasInput reports whether the envelope carries a tool call or any legacy
// argument source.
func (e *Envelope) HasInput() bool {
	if _, ok := e.ToolCall(); ok {
		return true
	}
	return len(e.Arguments) > 0 || len(e.Direct) > 0
}

// CustomerNumber returns the caller's number from the live call.
func (e *Envelope) CustomerNumber() string {
	if n := strings.TrimSpace(e.Message.Call.Customer.Number); n != "" {
		return n
	}
	return strings.TrimSpace(e.Message.Customer.Number)
}

// CallerPhone returns the phone named in the arguments, falling back to the
// live call's customer number.
func (e *Envelope) CallerPhone() string {
	if p := e.First(CallerPhoneKeys...); p != "" {
		return p
	}
	return e.CustomerNumber()
}

// Transcript returns the report transcript and turns, preferring top-level
// fields over the artifact.
func (e *Envelope) Transcript() (string, []TranscriptMessage) {
	text, turns := e.Message.Transcript, e.Message.Messages
	if a := e.Message.Artifact; a != nil {
		if text == "" {
			text = a.Transcript
		}
		if len(turns) == 0 {
			turns = a.Messages
		}
	}
	return text, turns
}

// Summary returns the report summary.
func (e *Envelope) Summary() string {
	if e.Message.Summary != "" {
		return e.Message.Summary
	}
	if e.Message.Analysis != nil {
		return e.Message.Analysis.Summary
	}
	return ""
}

// ToolResult pairs a correlation token with its result.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     string `json:"result"`
}

// Response is the outbound tool-result envelope.
type Response struct {
	Results []ToolResult `json:"results"`
}

// Result wraps a plain answer sentence.
func Result(toolCallID, text string) Response {
	return Response{Results: []ToolResult{{ToolCallID: toolCallID, Result: text}}}
}

// JSONResult wraps a structured payload, JSON-encoded into the result string.
func JSONResult(toolCallID string, v any) (Response, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Response{}, fmt.Errorf("encode result: %w", err)
	}
	return Result(toolCallID, string(b)), nil
}

// Write sends the response with the given status.
func Write(w http.ResponseWriter, status int, resp Response) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(resp)
}
