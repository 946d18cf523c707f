// Package memory stores end-of-call reports and recalls them for returning callers.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// ErrMissingData is returned for reports without a phone number or any transcript.
var ErrMissingData = errors.New("report has no phone number or transcript")

const (
	maxMessageLength  = 2500
	truncatedSuffix   = "... [truncated]"
	historyMessages   = 5
	historySnippetLen = 100
)

// ConversationStore persists conversations.
type ConversationStore interface {
	Create(ctx context.Context, c *storage.Conversation) error
	LatestByPhone(ctx context.Context, key string) (*storage.Conversation, error)
	RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]storage.Message, error)
}

// Turn is one utterance from the platform transcript.
type Turn struct {
	Role string
	Text string
}

// Report is an end-of-call report.
type Report struct {
	CallID     string
	Phone      string
	Transcript string
	Summary    string
	StartedAt  time.Time
	Duration   time.Duration
	Turns      []Turn
}

// History is what the agent is told about a caller at the start of a call.
type History struct {
	IsReturningCaller bool   `json:"is_returning_caller"`
	Summary           string `json:"summary"`
	LastConversation  string `json:"last_conversation,omitempty"`
	CallerPhone       string `json:"caller_phone,omitempty"`
}

// Recorder saves call reports and builds caller history.
type Recorder struct {
	conversations ConversationStore
	logger        *observability.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(conversations ConversationStore, logger *observability.Logger) *Recorder {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Recorder{conversations: conversations, logger: logger}
}

// SaveCallReport persists the conversation and its turns. Turns longer than
// the message limit are truncated.
func (r *Recorder) SaveCallReport(ctx context.Context, rep Report) (*storage.Conversation, error) {
	phone := strings.TrimSpace(rep.Phone)
	if phone == "" || (strings.TrimSpace(rep.Transcript) == "" && len(rep.Turns) == 0) {
		return nil, ErrMissingData
	}

	conv := &storage.Conversation{
		CallID:           rep.CallID,
		PhoneNumber:      phone,
		PhoneKey:         caller.NormalizePhone(phone),
		StartTime:        rep.StartedAt,
		CallDuration:     int(rep.Duration.Seconds()),
		ResolutionStatus: "pending",
		Summary:          strings.TrimSpace(rep.Summary),
		Transcript:       rep.Transcript,
	}

	truncated := 0
	for _, t := range rep.Turns {
		sender, ok := senderFor(t.Role)
		text := strings.TrimSpace(t.Text)
		if !ok || text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxMessageLength {
			text = truncate(text, maxMessageLength-50) + truncatedSuffix
			truncated++
		}
		conv.Messages = append(conv.Messages, storage.Message{Sender: sender, Content: text})
	}

	if err := r.conversations.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}

	r.logger.Info().
		Str("conversation_id", conv.ID.String()).
		Str("call_id", rep.CallID).
		Int("messages", len(conv.Messages)).
		Int("truncated", truncated).
		Msg("Call report saved")
	return conv, nil
}

// History summarizes the caller's most recent conversation.
func (r *Recorder) History(ctx context.Context, phone string) (*History, error) {
	key := caller.NormalizePhone(phone)
	if key == "" {
		return &History{Summary: "First time caller - no previous conversation history."}, nil
	}

	conv, err := r.conversations.LatestByPhone(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return &History{Summary: "First time caller - no previous conversation history.", CallerPhone: phone}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest conversation: %w", err)
	}

	h := &History{
		IsReturningCaller: true,
		LastConversation:  conv.StartTime.UTC().Format(time.RFC3339),
		CallerPhone:       phone,
	}

	if conv.Summary != "" {
		h.Summary = "Previous conversation: " + conv.Summary
		return h, nil
	}

	msgs, err := r.conversations.RecentMessages(ctx, conv.ID, historyMessages)
	if err != nil {
		r.logger.Warn().Err(err).Str("conversation_id", conv.ID.String()).Msg("Failed to load recent messages")
	}
	if len(msgs) == 0 {
		h.Summary = "Returning caller with previous conversation on file."
		return h, nil
	}

	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		label := "Agent"
		if m.Sender == "customer" {
			label = "Customer"
		}
		parts = append(parts, label+": "+truncate(m.Content, historySnippetLen))
	}
	h.Summary = "Recent exchange: " + strings.Join(parts, " | ")
	return h, nil
}

func senderFor(role string) (string, bool) {
	switch strings.ToLower(role) {
	case "user", "customer":
		return "customer", true
	case "assistant", "bot", "agent":
		return "agent", true
	}
	return "", false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
