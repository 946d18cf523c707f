package retrieval

import (
	"context"
	"fmt"

	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// Source names.
const (
	SourcePricing   = "pricing"
	SourceKnowledge = "knowledge"
	SourceCatalog   = "catalog"
)

// Field names a searchable text column of a fact source.
type Field string

const (
	FieldQuestion    Field = "question"
	FieldIntent      Field = "intent"
	FieldAnswerVoice Field = "answer_voice"
	FieldAnswerLong  Field = "answer_long"
	FieldCategory    Field = "category"
	FieldName        Field = "material_name"
	FieldDescription Field = "description"
)

// Fact is the uniform view of a record from any fact source. Catalog facts
// carry MaterialName, Description and price fields instead of curated answers.
type Fact struct {
	ID           string
	Source       string
	Question     string
	Intent       string
	AnswerVoice  string
	AnswerLong   string
	Category     string
	Tags         []string
	Priority     int
	Active       bool
	MaterialName string
	Description  string
	CurrentPrice *float64
	PriceUnit    string
}

// Query is a case-insensitive substring search: a record matches when any term
// is contained in any of the fields.
type Query struct {
	Terms  []string
	Fields []Field
	Limit  int
}

// Source is one queryable fact table. Results are active records only, highest
// priority first, ties in a stable store-defined order. No match is an empty
// slice, never an error.
type Source interface {
	Name() string
	Find(ctx context.Context, q Query) ([]Fact, error)
}

// KnowledgeSource additionally exposes the scan-all path used for tag matching.
type KnowledgeSource interface {
	Source
	ListActive(ctx context.Context) ([]Fact, error)
}

// SemanticSource resolves an embedding through the store's similarity function.
type SemanticSource interface {
	MatchSemantic(ctx context.Context, embedding []float32, threshold float64, count int) ([]Fact, error)
}

// Counter reports how many records a source holds. Used by the diagnostic branch.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// EntrySource adapts a pricing or knowledge repository.
type EntrySource struct {
	name string
	repo *storage.EntryRepository
}

// NewPricingSource creates the pricing fact source.
func NewPricingSource(db storage.DB) *EntrySource {
	return &EntrySource{name: SourcePricing, repo: storage.NewPricingRepository(db)}
}

// NewKnowledgeSource creates the knowledge fact source.
func NewKnowledgeSource(db storage.DB) *EntrySource {
	return &EntrySource{name: SourceKnowledge, repo: storage.NewKnowledgeRepository(db)}
}

// Name returns the source name.
func (s *EntrySource) Name() string { return s.name }

// Find runs a substring search.
func (s *EntrySource) Find(ctx context.Context, q Query) ([]Fact, error) {
	entries, err := s.repo.Match(ctx, storage.TextMatch{
		Terms:   q.Terms,
		Columns: fieldNames(q.Fields),
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return s.facts(entries), nil
}

// ListActive returns every active record in priority order.
func (s *EntrySource) ListActive(ctx context.Context) ([]Fact, error) {
	entries, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return s.facts(entries), nil
}

// MatchSemantic delegates to the store similarity function.
func (s *EntrySource) MatchSemantic(ctx context.Context, embedding []float32, threshold float64, count int) ([]Fact, error) {
	entries, err := s.repo.MatchSemantic(ctx, embedding, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.name, err)
	}
	return s.facts(entries), nil
}

// Count returns the number of rows in the table.
func (s *EntrySource) Count(ctx context.Context) (int, error) {
	total, _, err := s.repo.Count(ctx)
	return total, err
}

func (s *EntrySource) facts(entries []*storage.Entry) []Fact {
	out := make([]Fact, 0, len(entries))
	for _, e := range entries {
		out = append(out, Fact{
			ID:          e.ID.String(),
			Source:      s.name,
			Question:    e.Question,
			Intent:      e.Intent,
			AnswerVoice: e.AnswerVoice,
			AnswerLong:  e.AnswerLong,
			Category:    e.Category,
			Tags:        e.Tags,
			Priority:    e.Priority,
			Active:      e.Active,
		})
	}
	return out
}

// CatalogSource adapts the material catalog.
type CatalogSource struct {
	repo *storage.MaterialRepository
}

// NewCatalogSource creates the catalog fact source.
func NewCatalogSource(db storage.DB) *CatalogSource {
	return &CatalogSource{repo: storage.NewMaterialRepository(db)}
}

// Name returns the source name.
func (s *CatalogSource) Name() string { return SourceCatalog }

// Find runs a substring search over the catalog.
func (s *CatalogSource) Find(ctx context.Context, q Query) ([]Fact, error) {
	materials, err := s.repo.Match(ctx, storage.TextMatch{
		Terms:   q.Terms,
		Columns: fieldNames(q.Fields),
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", SourceCatalog, err)
	}

	out := make([]Fact, 0, len(materials))
	for _, m := range materials {
		out = append(out, Fact{
			ID:           m.ID.String(),
			Source:       SourceCatalog,
			Intent:       m.MaterialName,
			Category:     m.Category,
			Priority:     m.Priority,
			Active:       m.Active,
			MaterialName: m.MaterialName,
			Description:  m.Description,
			CurrentPrice: m.CurrentPrice,
			PriceUnit:    m.PriceUnit,
		})
	}
	return out, nil
}

func fieldNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

// Sources groups the fact sources the cascade consults.
type Sources struct {
	Pricing   Source
	Knowledge KnowledgeSource
	Catalog   Source
	Semantic  SemanticSource
}

// NewStoreSources wires all fact sources to one store.
func NewStoreSources(db storage.DB) Sources {
	knowledge := NewKnowledgeSource(db)
	return Sources{
		Pricing:   NewPricingSource(db),
		Knowledge: knowledge,
		Catalog:   NewCatalogSource(db),
		Semantic:  knowledge,
	}
}
