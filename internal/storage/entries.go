package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Fact table names.
const (
	TablePricing   = "material_pricing"
	TableKnowledge = "recycle_knowledge"
	TableMaterials = "recycling_materials"
)

// EntryRepository handles the curated answer tables. Pricing and knowledge share a
// layout; only knowledge carries tags.
type EntryRepository struct {
	db      DB
	table   string
	hasTags bool
}

// NewPricingRepository creates a repository over material_pricing.
func NewPricingRepository(db DB) *EntryRepository {
	return &EntryRepository{db: db, table: TablePricing}
}

// NewKnowledgeRepository creates a repository over recycle_knowledge.
func NewKnowledgeRepository(db DB) *EntryRepository {
	return &EntryRepository{db: db, table: TableKnowledge, hasTags: true}
}

// Table returns the backing table name.
func (r *EntryRepository) Table() string { return r.table }

func (r *EntryRepository) searchable() map[string]string {
	cols := map[string]string{
		"question":     "question",
		"intent":       "intent",
		"answer_voice": "answer_voice",
		"answer_long":  "answer_long",
		"category":     "category",
	}
	if r.hasTags {
		cols["tags"] = "tags"
	}
	return cols
}

func (r *EntryRepository) columns() string {
	return "id, question, intent, answer_voice, answer_long, category, tags, priority, active, last_updated"
}

// Create inserts a new entry.
func (r *EntryRepository) Create(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = newID()
	}
	e.LastUpdated = now()

	tags, err := r.encodeTags(e.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO ` + r.table + ` (` + r.columns() + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		e.ID.String(), e.Question, e.Intent, e.AnswerVoice, e.AnswerLong,
		e.Category, tags, e.Priority, e.Active, e.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

// GetByID retrieves an entry by ID.
func (r *EntryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	query := `SELECT ` + r.columns() + ` FROM ` + r.table + ` WHERE id = ?`
	e, err := r.scan(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// List returns every entry, highest priority first.
func (r *EntryRepository) List(ctx context.Context) ([]*Entry, error) {
	query := `SELECT ` + r.columns() + ` FROM ` + r.table + ` ORDER BY priority DESC, id ASC`
	return r.query(ctx, query)
}

// ListActive returns every active entry in priority order. This is the
// scan-all path used where SQL filtering is impractical (tag matching).
func (r *EntryRepository) ListActive(ctx context.Context) ([]*Entry, error) {
	query := `SELECT ` + r.columns() + ` FROM ` + r.table + ` WHERE active = ? ORDER BY priority DESC, id ASC`
	return r.query(ctx, query, true)
}

// Match returns active entries where any term is a substring of any column.
func (r *EntryRepository) Match(ctx context.Context, m TextMatch) ([]*Entry, error) {
	pred, args, err := m.where(r.searchable())
	if err != nil {
		return nil, err
	}
	if pred == "" {
		return nil, nil
	}

	query := `SELECT ` + r.columns() + ` FROM ` + r.table +
		` WHERE active = ? AND ` + pred +
		` ORDER BY priority DESC, id ASC LIMIT ` + strconv.Itoa(m.limit())

	return r.query(ctx, query, append([]interface{}{true}, args...)...)
}

// Update replaces the editable fields of an entry and stamps last_updated.
func (r *EntryRepository) Update(ctx context.Context, e *Entry) error {
	e.LastUpdated = now()

	tags, err := r.encodeTags(e.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE ` + r.table + `
		SET question = ?, intent = ?, answer_voice = ?, answer_long = ?, category = ?,
			tags = ?, priority = ?, active = ?, last_updated = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		e.Question, e.Intent, e.AnswerVoice, e.AnswerLong, e.Category,
		tags, e.Priority, e.Active, e.LastUpdated, e.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update %s: %w", r.table, err)
	}
	return requireAffected(res)
}

// Delete removes an entry.
func (r *EntryRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete %s: %w", r.table, err)
	}
	return requireAffected(res)
}

// Count returns total and active row counts.
func (r *EntryRepository) Count(ctx context.Context) (total, active int, err error) {
	return countTable(ctx, r.db, r.table)
}

// MatchSemantic calls the externally provisioned match_knowledge function.
// Only postgres deployments carry it.
func (r *EntryRepository) MatchSemantic(ctx context.Context, embedding []float32, threshold float64, count int) ([]*Entry, error) {
	s, ok := r.db.(*Store)
	if !ok || s.Driver() != DriverPostgres || !r.hasTags {
		return nil, ErrUnsupported
	}

	query := `
		SELECT k.` + strings.ReplaceAll(r.columns(), ", ", ", k.") + `
		FROM match_knowledge(?::vector, ?, ?) m
		JOIN recycle_knowledge k ON k.id = m.id
		WHERE k.active = ?
		ORDER BY m.similarity DESC, k.priority DESC, k.id ASC
	`
	return r.query(ctx, query, vectorLiteral(embedding), threshold, count, true)
}

func (r *EntryRepository) query(ctx context.Context, query string, args ...interface{}) ([]*Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.table, err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (r *EntryRepository) scan(s scanner) (*Entry, error) {
	e := &Entry{}
	var id string
	var tags sql.NullString
	err := s.Scan(
		&id, &e.Question, &e.Intent, &e.AnswerVoice, &e.AnswerLong,
		&e.Category, &tags, &e.Priority, &e.Active, &e.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if e.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse %s id: %w", r.table, err)
	}

	if r.hasTags && tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags for %s: %w", id, err)
		}
	}
	return e, nil
}

func (r *EntryRepository) encodeTags(tags []string) (string, error) {
	if !r.hasTags || len(tags) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(data), nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func countTable(ctx context.Context, db DB, table string) (total, active int, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(CASE WHEN active = ? THEN 1 ELSE 0 END), 0) FROM ` + table
	if err := db.QueryRowContext(ctx, query, true).Scan(&total, &active); err != nil {
		return 0, 0, fmt.Errorf("count %s: %w", table, err)
	}
	return total, active, nil
}

func vectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
