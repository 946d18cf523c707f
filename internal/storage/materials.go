package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// MaterialRepository handles the material catalog.
type MaterialRepository struct {
	db DB
}

// NewMaterialRepository creates a new material repository.
func NewMaterialRepository(db DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

var materialSearchable = map[string]string{
	"material_name": "material_name",
	"description":   "description",
	"category":      "category",
}

const materialColumns = "id, material_name, description, category, current_price, price_unit, priority, active, last_updated"

// Create inserts a new material.
func (r *MaterialRepository) Create(ctx context.Context, m *Material) error {
	if m.ID == uuid.Nil {
		m.ID = newID()
	}
	m.LastUpdated = now()

	query := `
		INSERT INTO recycling_materials (` + materialColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID.String(), m.MaterialName, m.Description, m.Category,
		nullFloat(m.CurrentPrice), m.PriceUnit, m.Priority, m.Active, m.LastUpdated,
	)
	if err != nil {
		return fmt.Errorf("insert material: %w", err)
	}
	return nil
}

// GetByID retrieves a material by ID.
func (r *MaterialRepository) GetByID(ctx context.Context, id uuid.UUID) (*Material, error) {
	query := `SELECT ` + materialColumns + ` FROM recycling_materials WHERE id = ?`
	m, err := scanMaterial(r.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// GetByName retrieves a material by case-insensitive name.
func (r *MaterialRepository) GetByName(ctx context.Context, name string) (*Material, error) {
	query := `SELECT ` + materialColumns + ` FROM recycling_materials WHERE LOWER(material_name) = ? ORDER BY id ASC LIMIT 1`
	m, err := scanMaterial(r.db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(name))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns every material, highest priority first.
func (r *MaterialRepository) List(ctx context.Context) ([]*Material, error) {
	query := `SELECT ` + materialColumns + ` FROM recycling_materials ORDER BY priority DESC, id ASC`
	return r.query(ctx, query)
}

// Match returns active materials where any term is a substring of any column.
func (r *MaterialRepository) Match(ctx context.Context, m TextMatch) ([]*Material, error) {
	pred, args, err := m.where(materialSearchable)
	if err != nil {
		return nil, err
	}
	if pred == "" {
		return nil, nil
	}

	query := `SELECT ` + materialColumns + ` FROM recycling_materials WHERE active = ? AND ` + pred +
		` ORDER BY priority DESC, id ASC LIMIT ` + strconv.Itoa(m.limit())

	return r.query(ctx, query, append([]interface{}{true}, args...)...)
}

// Update replaces the editable fields of a material and stamps last_updated.
func (r *MaterialRepository) Update(ctx context.Context, m *Material) error {
	m.LastUpdated = now()

	query := `
		UPDATE recycling_materials
		SET material_name = ?, description = ?, category = ?, current_price = ?,
			price_unit = ?, priority = ?, active = ?, last_updated = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		m.MaterialName, m.Description, m.Category, nullFloat(m.CurrentPrice),
		m.PriceUnit, m.Priority, m.Active, m.LastUpdated, m.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("update material: %w", err)
	}
	return requireAffected(res)
}

// Upsert updates the material with the same name, or creates it. Reports whether it was created.
func (r *MaterialRepository) Upsert(ctx context.Context, m *Material) (bool, error) {
	existing, err := r.GetByName(ctx, m.MaterialName)
	if errors.Is(err, ErrNotFound) {
		return true, r.Create(ctx, m)
	}
	if err != nil {
		return false, err
	}

	m.ID = existing.ID
	return false, r.Update(ctx, m)
}

// Delete removes a material.
func (r *MaterialRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM recycling_materials WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete material: %w", err)
	}
	return requireAffected(res)
}

// Count returns total and active row counts.
func (r *MaterialRepository) Count(ctx context.Context) (total, active int, err error) {
	return countTable(ctx, r.db, TableMaterials)
}

func (r *MaterialRepository) query(ctx context.Context, query string, args ...interface{}) ([]*Material, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query materials: %w", err)
	}
	defer rows.Close()

	var out []*Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMaterial(s scanner) (*Material, error) {
	m := &Material{}
	var id string
	var price sql.NullFloat64
	err := s.Scan(
		&id, &m.MaterialName, &m.Description, &m.Category,
		&price, &m.PriceUnit, &m.Priority, &m.Active, &m.LastUpdated,
	)
	if err != nil {
		return nil, err
	}

	if m.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse material id: %w", err)
	}
	if price.Valid {
		p := price.Float64
		m.CurrentPrice = &p
	}
	return m, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
