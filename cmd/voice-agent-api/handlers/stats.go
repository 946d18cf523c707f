package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// StatsHandler serves dashboard counters and store diagnostics.
type StatsHandler struct {
	base
	store       *storage.Store
	stats       *storage.StatsRepository
	resolutions *storage.ResolutionRepository
	pricing     *storage.EntryRepository
	knowledge   *storage.EntryRepository
	materials   *storage.MaterialRepository
	service     string
	now         func() time.Time
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(logger *observability.Logger, store *storage.Store, service string) *StatsHandler {
	return &StatsHandler{
		base:        base{logger: logger},
		store:       store,
		stats:       storage.NewStatsRepository(store),
		resolutions: storage.NewResolutionRepository(store),
		pricing:     storage.NewPricingRepository(store),
		knowledge:   storage.NewKnowledgeRepository(store),
		materials:   storage.NewMaterialRepository(store),
		service:     service,
		now:         time.Now,
	}
}

// Root answers GET / with the API banner.
func (h *StatsHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Axmen Recycling Admin API",
		"version": "1.0.0",
	})
}

// Health reports liveness.
func (h *StatsHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   h.service,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Ready reports whether the store answers.
func (h *StatsHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.WithContext(ctx).Warn().Err(err).Msg("Readiness check failed")
		h.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// Stats returns the dashboard counters.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.Get(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch stats")
		return
	}
	h.writeJSON(w, http.StatusOK, s)
}

// ResolutionStats returns how many questions each cascade stage answered.
func (h *StatsHandler) ResolutionStats(w http.ResponseWriter, r *http.Request) {
	counts, err := h.resolutions.StageCounts(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch resolution stats")
		return
	}

	stages := make(map[string]int, len(retrieval.Stages))
	total := 0
	for _, s := range retrieval.Stages {
		stages[string(s)] = counts[string(s)]
		total += counts[string(s)]
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":  total,
		"stages": stages,
	})
}

type tableProbe struct {
	TotalRows int         `json:"total_rows"`
	Error     *string     `json:"error"`
	Sample    interface{} `json:"sample"`
}

// TestDatabase reads every fact table and reports row counts with a sample row.
// Per-table failures are reported in the body rather than failing the request.
func (h *StatsHandler) TestDatabase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.WithContext(ctx).WithOperation("test-database")

	tests := map[string]tableProbe{
		h.pricing.Table(): probe(func() (int, interface{}, error) {
			rows, err := h.pricing.List(ctx)
			return len(rows), firstOf(rows), err
		}),
		h.knowledge.Table(): probe(func() (int, interface{}, error) {
			rows, err := h.knowledge.List(ctx)
			return len(rows), firstOf(rows), err
		}),
		storage.TableMaterials: probe(func() (int, interface{}, error) {
			rows, err := h.materials.List(ctx)
			return len(rows), firstOf(rows), err
		}),
	}

	for table, p := range tests {
		ev := logger.Info()
		if p.Error != nil {
			ev = logger.Warn().Str("error", *p.Error)
		}
		ev.Str("table", table).Int("rows", p.TotalRows).Msg("Table probe")
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"tests":   tests,
	})
}

func probe(fn func() (int, interface{}, error)) tableProbe {
	n, sample, err := fn()
	if err != nil {
		msg := err.Error()
		return tableProbe{Error: &msg}
	}
	return tableProbe{TotalRows: n, Sample: sample}
}

func firstOf[T any](rows []*T) interface{} {
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}
