package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/axmen-recycling/voice-agent/internal/storage"
)

func newRecorder(t *testing.T) (*Recorder, *storage.ConversationRepository) {
	t.Helper()
	ctx := context.Background()

	store, err := storage.Open(ctx, storage.DriverSQLite, ":memory:", storage.PoolConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.Migrate(ctx)
	require.NoError(t, err)

	repo := storage.NewConversationRepository(store)
	return NewRecorder(repo, nil), repo
}

func TestRecorder_SaveCallReport(t *testing.T) {
	rec, repo := newRecorder(t)
	ctx := context.Background()

	long := strings.Repeat("a", 3000)
	conv, err := rec.SaveCallReport(ctx, Report{
		CallID:    "call-1",
		Phone:     "+1 (406) 555-1234",
		StartedAt: time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC),
		Duration:  95 * time.Second,
		Turns: []Turn{
			{Role: "system", Text: "You are a helpful yard assistant"},
			{Role: "user", Text: "Do you take copper?"},
			{Role: "bot", Text: long},
			{Role: "user", Text: "  "},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "4065551234", conv.PhoneKey)
	assert.Equal(t, 95, conv.CallDuration)

	got, err := repo.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "customer", got.Messages[0].Sender)
	assert.Equal(t, "agent", got.Messages[1].Sender)
	assert.True(t, strings.HasSuffix(got.Messages[1].Content, "... [truncated]"))
	assert.Len(t, got.Messages[1].Content, 2450+len("... [truncated]"))
}

func TestRecorder_SaveCallReportMissingData(t *testing.T) {
	rec, _ := newRecorder(t)
	ctx := context.Background()

	_, err := rec.SaveCallReport(ctx, Report{Transcript: "hello"})
	assert.ErrorIs(t, err, ErrMissingData)

	_, err = rec.SaveCallReport(ctx, Report{Phone: "4065551234"})
	assert.ErrorIs(t, err, ErrMissingData)
}

func TestRecorder_History(t *testing.T) {
	rec, _ := newRecorder(t)
	ctx := context.Background()

	h, err := rec.History(ctx, "4065551234")
	require.NoError(t, err)
	assert.False(t, h.IsReturningCaller)
	assert.Equal(t, "First time caller - no previous conversation history.", h.Summary)

	_, err = rec.SaveCallReport(ctx, Report{
		CallID: "call-1",
		Phone:  "406-555-1234",
		Turns: []Turn{
			{Role: "user", Text: "Do you take copper?"},
			{Role: "assistant", Text: strings.Repeat("b", 150)},
		},
	})
	require.NoError(t, err)

	h, err = rec.History(ctx, "+14065551234")
	require.NoError(t, err)
	assert.True(t, h.IsReturningCaller)
	assert.Equal(t, "Recent exchange: Customer: Do you take copper? | Agent: "+strings.Repeat("b", 100), h.Summary)
	assert.NotEmpty(t, h.LastConversation)
}

func TestRecorder_HistoryPrefersSummary(t *testing.T) {
	rec, _ := newRecorder(t)
	ctx := context.Background()

	_, err := rec.SaveCallReport(ctx, Report{
		Phone:      "4065559999",
		Transcript: "User: brass?",
		Summary:    "Asked about brass prices.",
	})
	require.NoError(t, err)

	h, err := rec.History(ctx, "4065559999")
	require.NoError(t, err)
	assert.Equal(t, "Previous conversation: Asked about brass prices.", h.Summary)
}
