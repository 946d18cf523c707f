// Package importer loads facts into the store from YAML fixture files and
// spreadsheet price sheets.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// Fixtures is the YAML seed file layout.
type Fixtures struct {
	Pricing   []EntryFixture    `yaml:"pricing"`
	Knowledge []EntryFixture    `yaml:"knowledge"`
	Materials []MaterialFixture `yaml:"materials"`
}

// EntryFixture is one pricing or knowledge row.
type EntryFixture struct {
	Question    string   `yaml:"question"`
	Intent      string   `yaml:"intent"`
	AnswerVoice string   `yaml:"answer_voice"`
	AnswerLong  string   `yaml:"answer_long"`
	Category    string   `yaml:"category"`
	Tags        []string `yaml:"tags"`
	Priority    int      `yaml:"priority"`
	Active      *bool    `yaml:"active"` // defaults to true
}

// MaterialFixture is one catalog row.
type MaterialFixture struct {
	Name         string   `yaml:"material_name"`
	Description  string   `yaml:"description"`
	Category     string   `yaml:"category"`
	CurrentPrice *float64 `yaml:"current_price"`
	PriceUnit    string   `yaml:"price_unit"`
	Priority     int      `yaml:"priority"`
	Active       *bool    `yaml:"active"`
}

// Total returns the number of rows in the file.
func (f *Fixtures) Total() int {
	return len(f.Pricing) + len(f.Knowledge) + len(f.Materials)
}

// Summary reports what an import wrote.
type Summary struct {
	Pricing          int `json:"pricing"`
	Knowledge        int `json:"knowledge"`
	MaterialsCreated int `json:"materials_created"`
	MaterialsUpdated int `json:"materials_updated"`
}

// LoadFixtures parses a YAML seed file. Entries without a question and
// materials without a name are rejected.
func LoadFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}

	for i, e := range f.Pricing {
		if e.Question == "" {
			return nil, fmt.Errorf("pricing[%d]: question is required", i)
		}
	}
	for i, e := range f.Knowledge {
		if e.Question == "" {
			return nil, fmt.Errorf("knowledge[%d]: question is required", i)
		}
	}
	for i, m := range f.Materials {
		if m.Name == "" {
			return nil, fmt.Errorf("materials[%d]: material_name is required", i)
		}
	}
	return &f, nil
}

// Apply writes the fixtures. Entries are inserted; materials are upserted by
// name. onRow, when set, is called after every row.
func Apply(ctx context.Context, db storage.DB, f *Fixtures, onRow func()) (*Summary, error) {
	if onRow == nil {
		onRow = func() {}
	}
	s := &Summary{}

	pricing := storage.NewPricingRepository(db)
	for _, e := range f.Pricing {
		if err := pricing.Create(ctx, e.entry()); err != nil {
			return s, fmt.Errorf("pricing %q: %w", e.Question, err)
		}
		s.Pricing++
		onRow()
	}

	knowledge := storage.NewKnowledgeRepository(db)
	for _, e := range f.Knowledge {
		if err := knowledge.Create(ctx, e.entry()); err != nil {
			return s, fmt.Errorf("knowledge %q: %w", e.Question, err)
		}
		s.Knowledge++
		onRow()
	}

	materials := storage.NewMaterialRepository(db)
	for _, m := range f.Materials {
		created, err := materials.Upsert(ctx, m.material())
		if err != nil {
			return s, fmt.Errorf("material %q: %w", m.Name, err)
		}
		if created {
			s.MaterialsCreated++
		} else {
			s.MaterialsUpdated++
		}
		onRow()
	}

	return s, nil
}

func (e EntryFixture) entry() *storage.Entry {
	return &storage.Entry{
		Question:    e.Question,
		Intent:      e.Intent,
		AnswerVoice: e.AnswerVoice,
		AnswerLong:  e.AnswerLong,
		Category:    e.Category,
		Tags:        e.Tags,
		Priority:    e.Priority,
		Active:      active(e.Active),
	}
}

func (m MaterialFixture) material() *storage.Material {
	return &storage.Material{
		MaterialName: m.Name,
		Description:  m.Description,
		Category:     m.Category,
		CurrentPrice: m.CurrentPrice,
		PriceUnit:    m.PriceUnit,
		Priority:     m.Priority,
		Active:       active(m.Active),
	}
}

func active(v *bool) bool {
	return v == nil || *v
}
