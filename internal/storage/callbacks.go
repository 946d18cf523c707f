package storage

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// CallbackRepository handles callback requests. Rows are append-only apart from status.
type CallbackRepository struct {
	db DB
}

// NewCallbackRepository creates a new callback repository.
func NewCallbackRepository(db DB) *CallbackRepository {
	return &CallbackRepository{db: db}
}

const callbackColumns = "id, caller_name, caller_phone, phone_key, material_description, notes, status, created_at"

// Create inserts a callback request.
func (r *CallbackRepository) Create(ctx context.Context, cb *CallbackRequest) error {
	if cb.ID == uuid.Nil {
		cb.ID = newID()
	}
	if cb.Status == "" {
		cb.Status = CallbackStatusPending
	}
	cb.CreatedAt = now()

	query := `
		INSERT INTO callback_requests (` + callbackColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		cb.ID.String(), cb.CallerName, cb.CallerPhone, cb.PhoneKey,
		cb.MaterialDescription, cb.Notes, string(cb.Status), cb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert callback: %w", err)
	}
	return nil
}

// FindByPhone returns callbacks for a caller, most recent first. A row matches on
// its stored key, or when either the key or the raw input is a substring of the
// stored phone.
func (r *CallbackRepository) FindByPhone(ctx context.Context, key, raw string, limit int) ([]*CallbackRequest, error) {
	if key == "" && raw == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}

	query := `
		SELECT ` + callbackColumns + ` FROM callback_requests
		WHERE (phone_key = ? AND phone_key <> '')
			OR caller_phone LIKE ? ESCAPE '\'
			OR caller_phone LIKE ? ESCAPE '\'
		ORDER BY created_at DESC, id DESC
		LIMIT ` + strconv.Itoa(limit)

	keyPattern := "%" + escapeLike(key) + "%"
	if key == "" {
		keyPattern = ""
	}
	rawPattern := "%" + escapeLike(raw) + "%"
	if raw == "" {
		rawPattern = ""
	}

	return r.query(ctx, query, key, keyPattern, rawPattern)
}

// List returns callbacks, newest first, optionally filtered by status.
func (r *CallbackRepository) List(ctx context.Context, status CallbackStatus) ([]*CallbackRequest, error) {
	if status == "" {
		return r.query(ctx, `SELECT `+callbackColumns+` FROM callback_requests ORDER BY created_at DESC, id DESC`)
	}
	return r.query(ctx,
		`SELECT `+callbackColumns+` FROM callback_requests WHERE status = ? ORDER BY created_at DESC, id DESC`,
		string(status))
}

// UpdateStatus moves a callback to a new status.
func (r *CallbackRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status CallbackStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE callback_requests SET status = ? WHERE id = ?`, string(status), id.String())
	if err != nil {
		return fmt.Errorf("update callback status: %w", err)
	}
	return requireAffected(res)
}

// CountByStatus counts callbacks in a status.
func (r *CallbackRepository) CountByStatus(ctx context.Context, status CallbackStatus) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM callback_requests WHERE status = ?`, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count callbacks: %w", err)
	}
	return n, nil
}

// Count counts all callbacks.
func (r *CallbackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM callback_requests`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count callbacks: %w", err)
	}
	return n, nil
}

func (r *CallbackRepository) query(ctx context.Context, query string, args ...interface{}) ([]*CallbackRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query callbacks: %w", err)
	}
	defer rows.Close()

	var out []*CallbackRequest
	for rows.Next() {
		cb := &CallbackRequest{}
		var id, status string
		if err := rows.Scan(
			&id, &cb.CallerName, &cb.CallerPhone, &cb.PhoneKey,
			&cb.MaterialDescription, &cb.Notes, &status, &cb.CreatedAt,
		); err != nil {
			return nil, err
		}
		if cb.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse callback id: %w", err)
		}
		cb.Status = CallbackStatus(status)
		out = append(out, cb)
	}
	return out, rows.Err()
}

// CustomerMessageRepository handles messages left for staff.
type CustomerMessageRepository struct {
	db DB
}

// NewCustomerMessageRepository creates a new customer message repository.
func NewCustomerMessageRepository(db DB) *CustomerMessageRepository {
	return &CustomerMessageRepository{db: db}
}

// Create inserts a customer message.
func (r *CustomerMessageRepository) Create(ctx context.Context, m *CustomerMessage) error {
	if m.ID == uuid.Nil {
		m.ID = newID()
	}
	if m.Status == "" {
		m.Status = "new"
	}
	m.CreatedAt = now()

	query := `
		INSERT INTO customer_messages (id, customer_name, customer_phone, message, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(), m.CustomerName, m.CustomerPhone, m.Message, m.Status, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert customer message: %w", err)
	}
	return nil
}

// List returns messages, newest first.
func (r *CustomerMessageRepository) List(ctx context.Context) ([]*CustomerMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_phone, message, status, created_at
		FROM customer_messages ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query customer messages: %w", err)
	}
	defer rows.Close()

	var out []*CustomerMessage
	for rows.Next() {
		m := &CustomerMessage{}
		var id string
		if err := rows.Scan(&id, &m.CustomerName, &m.CustomerPhone, &m.Message, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		if m.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse message id: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
