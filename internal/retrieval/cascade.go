// Package retrieval resolves spoken caller questions to a single curated answer
// by running an ordered cascade of matching strategies over the fact sources.
package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/embedding"
	"github.com/axmen-recycling/voice-agent/internal/observability"
)

// ErrMissingQuery is returned when the caller supplied no query text.
var ErrMissingQuery = errors.New("missing query")

// Stage identifies the cascade strategy that produced an answer.
type Stage string

const (
	StageDiagnostic Stage = "diagnostic"
	StageExact      Stage = "exact"
	StageKeyword    Stage = "keyword"
	StageTag        Stage = "tag"
	StageNormalized Stage = "normalized"
	StageCatalog    Stage = "catalog"
	StageSemantic   Stage = "semantic"
	StageFallback   Stage = "fallback"
)

// Stages lists every stage in evaluation order.
var Stages = []Stage{
	StageDiagnostic, StageExact, StageKeyword, StageTag,
	StageNormalized, StageCatalog, StageSemantic, StageFallback,
}

var (
	exactFields      = []Field{FieldQuestion, FieldIntent}
	keywordFields    = []Field{FieldQuestion, FieldAnswerVoice, FieldIntent, FieldCategory}
	normalizedFields = []Field{FieldQuestion, FieldAnswerVoice}
	catalogFields    = []Field{FieldName, FieldDescription, FieldCategory}
)

// Resolution is the outcome of resolving one query.
type Resolution struct {
	Query      string        `json:"query"`
	Answer     string        `json:"answer"`
	Stage      Stage         `json:"stage"`
	Source     string        `json:"source,omitempty"`
	Fact       *Fact         `json:"fact,omitempty"`
	Keywords   []string      `json:"keywords,omitempty"`
	Normalized string        `json:"normalized,omitempty"`
	Cached     bool          `json:"cached"`
	Degraded   bool          `json:"degraded"`
	Latency    time.Duration `json:"latency"`
}

// Matched reports whether a fact record produced the answer.
func (r *Resolution) Matched() bool {
	return r.Fact != nil
}

// Observer is notified after every resolution.
type Observer interface {
	ObserveResolution(ctx context.Context, res *Resolution)
}

// Config holds cascade configuration.
type Config struct {
	ResultWindow       int
	StageTimeout       time.Duration
	Budget             time.Duration
	DiagnosticSentinel string
	FallbackAnswer     string
	BusinessPhone      string
	CacheTTL           time.Duration
	Semantic           SemanticConfig
}

// SemanticConfig controls the embedding-backed stage.
type SemanticConfig struct {
	Enabled    bool
	Threshold  float64
	MatchCount int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		ResultWindow:       5,
		StageTimeout:       time.Second,
		Budget:             3 * time.Second,
		DiagnosticSentinel: "TEST",
		BusinessPhone:      "406-543-1905",
		CacheTTL:           5 * time.Minute,
		Semantic: SemanticConfig{
			Threshold:  0.78,
			MatchCount: 3,
		},
	}
}

// Cascade runs the resolution strategies in confidence order and stops at the
// first hit. Stages run sequentially; each issues at most one store query per source.
type Cascade struct {
	sources  Sources
	cfg      Config
	logger   *observability.Logger
	cache    cache.Client
	embedder embedding.Embedder
	observer Observer
}

// Option configures a Cascade.
type Option func(*Cascade)

// WithCache enables the answer cache.
func WithCache(c cache.Client) Option {
	return func(cs *Cascade) { cs.cache = c }
}

// WithEmbedder enables the semantic stage when the config allows it.
func WithEmbedder(e embedding.Embedder) Option {
	return func(cs *Cascade) { cs.embedder = e }
}

// WithObserver registers a resolution observer.
func WithObserver(o Observer) Option {
	return func(cs *Cascade) { cs.observer = o }
}

// NewCascade creates a new resolution cascade.
func NewCascade(sources Sources, cfg Config, logger *observability.Logger, opts ...Option) *Cascade {
	if cfg.ResultWindow < 1 || cfg.ResultWindow > 5 {
		cfg.ResultWindow = 5
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = time.Second
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultConfig().Budget
	}
	if cfg.BusinessPhone == "" {
		cfg.BusinessPhone = DefaultConfig().BusinessPhone
	}
	if cfg.FallbackAnswer == "" {
		cfg.FallbackAnswer = FallbackAnswer(cfg.BusinessPhone)
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	c := &Cascade{
		sources: sources,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FallbackAnswer is the sentence spoken when nothing matched.
func FallbackAnswer(phone string) string {
	return fmt.Sprintf("I don't have specific information about that. Please call us at %s and our team will be happy to help you.", phone)
}

// Resolve maps a raw spoken query to exactly one answer. It fails only with
// ErrMissingQuery; store faults degrade the affected stage to "no match".
// All store work shares cfg.Budget; stages left when it runs out are skipped.
func (c *Cascade) Resolve(ctx context.Context, rawQuery string) (*Resolution, error) {
	start := time.Now()
	query := strings.ToLower(strings.TrimSpace(rawQuery))
	if query == "" {
		return nil, ErrMissingQuery
	}

	logger := c.logger.WithContext(ctx).WithOperation("resolve")

	budgetCtx, cancel := context.WithTimeout(ctx, c.cfg.Budget)
	defer cancel()

	if c.isDiagnostic(rawQuery) {
		res := c.diagnostic(budgetCtx, query, logger)
		res.Latency = time.Since(start)
		c.observe(ctx, res)
		return res, nil
	}

	if res := c.cached(budgetCtx, query); res != nil {
		res.Latency = time.Since(start)
		logger.Debug().Str("stage", string(res.Stage)).Msg("answer served from cache")
		c.observe(ctx, res)
		return res, nil
	}

	res := c.run(budgetCtx, query, logger)
	res.Latency = time.Since(start)

	logger.Info().
		Str("stage", string(res.Stage)).
		Str("source", res.Source).
		Strs("keywords", res.Keywords).
		Bool("degraded", res.Degraded).
		Dur("latency", res.Latency).
		Msg("query resolved")

	if !res.Degraded {
		c.store(budgetCtx, query, res)
	}
	c.observe(ctx, res)
	return res, nil
}

func (c *Cascade) run(ctx context.Context, query string, logger *observability.Logger) *Resolution {
	res := &Resolution{Query: query}
	res.Keywords = ExtractKeywords(query)
	res.Normalized = Normalize(query)

	window := c.cfg.ResultWindow

	// exact: raw query against the primary text columns, pricing before knowledge
	for _, src := range []Source{c.sources.Pricing, c.sources.Knowledge} {
		if f := c.first(ctx, res, logger, StageExact, src, Query{Terms: []string{query}, Fields: exactFields, Limit: window}); f != nil {
			return c.answer(res, StageExact, f)
		}
	}

	// keyword: any keyword in any answer column
	if len(res.Keywords) > 0 {
		for _, src := range []Source{c.sources.Pricing, c.sources.Knowledge} {
			if f := c.first(ctx, res, logger, StageKeyword, src, Query{Terms: res.Keywords, Fields: keywordFields, Limit: window}); f != nil {
				return c.answer(res, StageKeyword, f)
			}
		}
	}

	// tag: in-process scan of active knowledge
	if len(res.Keywords) > 0 && c.sources.Knowledge != nil {
		if f := c.tagMatch(ctx, res, logger); f != nil {
			return c.answer(res, StageTag, f)
		}
	}

	// normalized: the canonical phrasing against knowledge
	if res.Normalized != "" && res.Normalized != query {
		if f := c.first(ctx, res, logger, StageNormalized, c.sources.Knowledge, Query{Terms: []string{res.Normalized}, Fields: normalizedFields, Limit: window}); f != nil {
			return c.answer(res, StageNormalized, f)
		}
	}

	// catalog: raw query or any keyword against the material catalog, one query
	terms := append([]string{query}, res.Keywords...)
	if f := c.first(ctx, res, logger, StageCatalog, c.sources.Catalog, Query{Terms: terms, Fields: catalogFields, Limit: window}); f != nil {
		return c.answer(res, StageCatalog, f)
	}

	if f := c.semantic(ctx, res, logger); f != nil {
		return c.answer(res, StageSemantic, f)
	}

	res.Stage = StageFallback
	res.Answer = c.cfg.FallbackAnswer
	return res
}

// first returns the highest-ranked active fact, or nil on no match or fault.
func (c *Cascade) first(ctx context.Context, res *Resolution, logger *observability.Logger, stage Stage, src Source, q Query) *Fact {
	if src == nil {
		return nil
	}
	if c.exhausted(ctx, res, logger, stage) {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	facts, err := src.Find(stageCtx, q)
	if err != nil {
		res.Degraded = true
		logger.Warn().Err(err).Str("stage", string(stage)).Str("source", src.Name()).Msg("stage query failed, continuing")
		return nil
	}

	return firstActive(facts)
}

// tagMatch picks the active knowledge record whose tags match the most
// keywords. A keyword matches a tag when either contains the other. Ties keep
// the first record in source order.
func (c *Cascade) tagMatch(ctx context.Context, res *Resolution, logger *observability.Logger) *Fact {
	if c.exhausted(ctx, res, logger, StageTag) {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	facts, err := c.sources.Knowledge.ListActive(stageCtx)
	if err != nil {
		res.Degraded = true
		logger.Warn().Err(err).Str("stage", string(StageTag)).Msg("tag scan failed, continuing")
		return nil
	}

	return bestTagMatch(facts, res.Keywords)
}

// exhausted reports whether the resolution budget is spent. The stage counts
// as degraded so the fallback is not cached.
func (c *Cascade) exhausted(ctx context.Context, res *Resolution, logger *observability.Logger, stage Stage) bool {
	if ctx.Err() == nil {
		return false
	}
	res.Degraded = true
	logger.Warn().Err(ctx.Err()).Str("stage", string(stage)).Msg("resolution budget spent, skipping stage")
	return true
}

func bestTagMatch(facts []Fact, keywords []string) *Fact {
	var best *Fact
	bestCount := 0
	for i := range facts {
		f := &facts[i]
		if !f.Active {
			continue
		}
		if n := tagMatchCount(f.Tags, keywords); n > bestCount {
			best, bestCount = f, n
		}
	}
	return best
}

func tagMatchCount(tags, keywords []string) int {
	count := 0
	for _, k := range keywords {
		for _, tag := range tags {
			t := strings.ToLower(strings.TrimSpace(tag))
			if t == "" {
				continue
			}
			if strings.Contains(t, k) || strings.Contains(k, t) {
				count++
				break
			}
		}
	}
	return count
}

func (c *Cascade) semantic(ctx context.Context, res *Resolution, logger *observability.Logger) *Fact {
	if !c.cfg.Semantic.Enabled || c.embedder == nil || c.sources.Semantic == nil {
		return nil
	}
	if c.exhausted(ctx, res, logger, StageSemantic) {
		return nil
	}

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	vec, err := c.embedder.EmbedSingle(stageCtx, res.Query)
	if err != nil {
		logger.Warn().Err(err).Str("stage", string(StageSemantic)).Msg("embedding failed, skipping stage")
		return nil
	}

	facts, err := c.sources.Semantic.MatchSemantic(stageCtx, vec, c.cfg.Semantic.Threshold, c.cfg.Semantic.MatchCount)
	if err != nil {
		logger.Warn().Err(err).Str("stage", string(StageSemantic)).Msg("similarity search failed, skipping stage")
		return nil
	}
	return firstActive(facts)
}

func firstActive(facts []Fact) *Fact {
	for i := range facts {
		if facts[i].Active {
			f := facts[i]
			return &f
		}
	}
	return nil
}

func (c *Cascade) answer(res *Resolution, stage Stage, f *Fact) *Resolution {
	res.Stage = stage
	res.Source = f.Source
	res.Fact = f
	res.Answer = AnswerText(f, c.cfg.BusinessPhone)
	return res
}

func (c *Cascade) isDiagnostic(raw string) bool {
	sentinel := strings.ToUpper(strings.TrimSpace(c.cfg.DiagnosticSentinel))
	return sentinel != "" && strings.Contains(strings.ToUpper(raw), sentinel)
}

// diagnostic reports row counts instead of resolving. It is an operational probe.
func (c *Cascade) diagnostic(ctx context.Context, query string, logger *observability.Logger) *Resolution {
	pricing := c.count(ctx, c.sources.Pricing, logger)
	knowledge := c.count(ctx, c.sources.Knowledge, logger)

	logger.Info().Int("pricing_rows", pricing).Int("knowledge_rows", knowledge).Msg("diagnostic query")

	return &Resolution{
		Query:  query,
		Stage:  StageDiagnostic,
		Answer: fmt.Sprintf("Test mode: Found %d pricing rows and %d knowledge rows.", pricing, knowledge),
	}
}

func (c *Cascade) count(ctx context.Context, src Source, logger *observability.Logger) int {
	counter, ok := src.(Counter)
	if !ok {
		return 0
	}

	stageCtx, cancel := context.WithTimeout(ctx, c.cfg.StageTimeout)
	defer cancel()

	n, err := counter.Count(stageCtx)
	if err != nil {
		logger.Warn().Err(err).Str("source", src.Name()).Msg("diagnostic count failed")
		return 0
	}
	return n
}

func (c *Cascade) cached(ctx context.Context, query string) *Resolution {
	if c.cache == nil {
		return nil
	}

	data, err := c.cache.Get(ctx, cache.AnswerKey(query))
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn().Err(err).Msg("answer cache read failed")
		}
		return nil
	}

	var res Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil
	}
	res.Cached = true
	return &res
}

func (c *Cascade) store(ctx context.Context, query string, res *Resolution) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cache.AnswerKey(query), data, c.cfg.CacheTTL); err != nil {
		c.logger.Warn().Err(err).Msg("answer cache write failed")
	}
}

func (c *Cascade) observe(ctx context.Context, res *Resolution) {
	if c.observer != nil {
		c.observer.ObserveResolution(ctx, res)
	}
}

// InvalidateAnswers drops every cached answer. Called after fact edits.
func InvalidateAnswers(ctx context.Context, c cache.Client) error {
	if c == nil {
		return nil
	}
	return c.DeleteByPrefix(ctx, cache.AnswerPrefix)
}
