package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ConversationRepository handles logged calls and their messages.
type ConversationRepository struct {
	db DB
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, call_id, phone_number, phone_key, start_time, call_duration,
	issue_category, resolution_status, satisfaction_score, summary, transcript`

// Create inserts a conversation and its messages in one transaction when the
// underlying DB supports it.
func (r *ConversationRepository) Create(ctx context.Context, c *Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = newID()
	}
	if c.StartTime.IsZero() {
		c.StartTime = now()
	}
	if c.ResolutionStatus == "" {
		c.ResolutionStatus = "pending"
	}

	write := func(db DB) error {
		query := `
			INSERT INTO conversations (` + conversationColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			c.ID.String(), c.CallID, c.PhoneNumber, c.PhoneKey, c.StartTime, c.CallDuration,
			c.IssueCategory, c.ResolutionStatus, nullInt(c.SatisfactionScore), c.Summary, c.Transcript,
		)
		if err != nil {
			return fmt.Errorf("insert conversation: %w", err)
		}

		for i := range c.Messages {
			m := &c.Messages[i]
			m.ConversationID = c.ID
			if err := insertMessage(ctx, db, m); err != nil {
				return err
			}
		}
		return nil
	}

	if tx, ok := r.db.(transactor); ok {
		return tx.InTx(ctx, write)
	}
	return write(r.db)
}

// AddMessage appends a message to an existing conversation.
func (r *ConversationRepository) AddMessage(ctx context.Context, m *Message) error {
	return insertMessage(ctx, r.db, m)
}

func insertMessage(ctx context.Context, db DB, m *Message) error {
	if m.ID == uuid.Nil {
		m.ID = newID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.ID.String(), m.ConversationID.String(), m.Sender, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// GetByID retrieves a conversation with its messages in chronological order.
func (r *ConversationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = ?`
	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	msgs, err := r.messages(ctx, `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC
	`, id.String())
	if err != nil {
		return nil, err
	}
	c.Messages = msgs
	return c, nil
}

// List returns conversations, newest first. An empty status or "all" lists everything.
func (r *ConversationRepository) List(ctx context.Context, status string) ([]*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations`
	var args []interface{}
	if status != "" && status != "all" {
		query += ` WHERE resolution_status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY start_time DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update replaces the editable review fields of a conversation.
func (r *ConversationRepository) Update(ctx context.Context, c *Conversation) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET issue_category = ?, resolution_status = ?, satisfaction_score = ?, summary = ?
		WHERE id = ?
	`, c.IssueCategory, c.ResolutionStatus, nullInt(c.SatisfactionScore), c.Summary, c.ID.String())
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return requireAffected(res)
}

// LatestByPhone returns the most recent conversation for a normalized phone key.
func (r *ConversationRepository) LatestByPhone(ctx context.Context, key string) (*Conversation, error) {
	if key == "" {
		return nil, ErrNotFound
	}
	query := `SELECT ` + conversationColumns + ` FROM conversations
		WHERE phone_key = ? ORDER BY start_time DESC, id DESC LIMIT 1`
	c, err := scanConversation(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// RecentMessages returns up to n of the latest messages of a conversation, oldest first.
func (r *ConversationRepository) RecentMessages(ctx context.Context, conversationID uuid.UUID, n int) ([]Message, error) {
	msgs, err := r.messages(ctx, `
		SELECT id, conversation_id, sender, content, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC LIMIT `+strconv.Itoa(n),
		conversationID.String())
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Counts returns total conversations and those marked resolved.
func (r *ConversationRepository) Counts(ctx context.Context) (total, resolved int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN resolution_status = ? THEN 1 ELSE 0 END), 0) FROM conversations`
	if err := r.db.QueryRowContext(ctx, query, "resolved").Scan(&total, &resolved); err != nil {
		return 0, 0, fmt.Errorf("count conversations: %w", err)
	}
	return total, resolved, nil
}

func (r *ConversationRepository) messages(ctx context.Context, query string, args ...interface{}) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var id, convID string
		if err := rows.Scan(&id, &convID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse message id: %w", err)
		}
		if m.ConversationID, err = uuid.Parse(convID); err != nil {
			return nil, fmt.Errorf("parse conversation id: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanConversation(s scanner) (*Conversation, error) {
	c := &Conversation{}
	var id string
	var score sql.NullInt64
	err := s.Scan(
		&id, &c.CallID, &c.PhoneNumber, &c.PhoneKey, &c.StartTime, &c.CallDuration,
		&c.IssueCategory, &c.ResolutionStatus, &score, &c.Summary, &c.Transcript,
	)
	if err != nil {
		return nil, err
	}
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse conversation id: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		c.SatisfactionScore = &v
	}
	return c, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

// ResolutionRepository persists cascade outcomes for the dashboard.
type ResolutionRepository struct {
	db DB
}

// NewResolutionRepository creates a new resolution repository.
func NewResolutionRepository(db DB) *ResolutionRepository {
	return &ResolutionRepository{db: db}
}

// Record inserts a resolution outcome.
func (r *ResolutionRepository) Record(ctx context.Context, rec *ResolutionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = newID()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resolution_events (id, query, stage, source, fact_id, matched, latency_ms, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID.String(), rec.Query, rec.Stage, rec.Source, rec.FactID, rec.Matched, rec.LatencyMS, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert resolution event: %w", err)
	}
	return nil
}

// StageCounts returns the number of resolutions per stage.
func (r *ResolutionRepository) StageCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT stage, COUNT(*) FROM resolution_events GROUP BY stage`)
	if err != nil {
		return nil, fmt.Errorf("query stage counts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		out[stage] = n
	}
	return out, rows.Err()
}

// StatsRepository assembles dashboard counters across tables.
type StatsRepository struct {
	knowledge     *EntryRepository
	materials     *MaterialRepository
	conversations *ConversationRepository
	callbacks     *CallbackRepository
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db DB) *StatsRepository {
	return &StatsRepository{
		knowledge:     NewKnowledgeRepository(db),
		materials:     NewMaterialRepository(db),
		conversations: NewConversationRepository(db),
		callbacks:     NewCallbackRepository(db),
	}
}

// Get returns the dashboard counters.
func (r *StatsRepository) Get(ctx context.Context) (*Stats, error) {
	s := &Stats{}
	var err error

	if s.TotalMaterials, s.ActiveMaterials, err = r.materials.Count(ctx); err != nil {
		return nil, err
	}
	if s.TotalKnowledge, s.ActiveKnowledge, err = r.knowledge.Count(ctx); err != nil {
		return nil, err
	}
	if s.TotalCalls, s.ResolvedCalls, err = r.conversations.Counts(ctx); err != nil {
		return nil, err
	}
	if s.OpenCallbacks, err = r.callbacks.CountByStatus(ctx, CallbackStatusPending); err != nil {
		return nil, err
	}
	return s, nil
}
