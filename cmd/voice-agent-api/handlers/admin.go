package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/axmen-recycling/voice-agent/internal/cache"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/retrieval"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// EntryHandler serves CRUD for a question/answer table.
type EntryHandler struct {
	base
	repo    *storage.EntryRepository
	answers cache.Client
	noun    string
	deleted string
}

// NewPricingHandler creates a handler for the pricing table.
func NewPricingHandler(logger *observability.Logger, repo *storage.EntryRepository, answers cache.Client) *EntryHandler {
	return &EntryHandler{
		base:    base{logger: logger},
		repo:    repo,
		answers: answers,
		noun:    "pricing",
		deleted: "Material deleted successfully",
	}
}

// NewKnowledgeHandler creates a handler for the knowledge table.
func NewKnowledgeHandler(logger *observability.Logger, repo *storage.EntryRepository, answers cache.Client) *EntryHandler {
	return &EntryHandler{
		base:    base{logger: logger},
		repo:    repo,
		answers: answers,
		noun:    "knowledge",
		deleted: "Knowledge entry deleted successfully",
	}
}

// List returns every entry, highest priority first.
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch "+h.noun+" data")
		return
	}
	if entries == nil {
		entries = []*storage.Entry{}
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// Get returns one entry.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch "+h.noun+" data")
		return
	}
	h.writeJSON(w, http.StatusOK, e)
}

// Create inserts an entry.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	e := &storage.Entry{Active: true}
	if !h.decode(w, r, e) {
		return
	}
	if strings.TrimSpace(e.Question) == "" {
		h.writeError(w, http.StatusBadRequest, "question is required", "")
		return
	}
	e.ID = uuid.Nil

	if err := h.repo.Create(r.Context(), e); err != nil {
		h.fail(w, r, err, "Failed to create "+h.noun+" data")
		return
	}
	h.invalidate(r.Context())
	h.writeJSON(w, http.StatusCreated, e)
}

// Update applies the request body over the stored entry.
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	e, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to update "+h.noun+" data")
		return
	}
	if !h.decode(w, r, e) {
		return
	}
	e.ID = id

	if err := h.repo.Update(r.Context(), e); err != nil {
		h.fail(w, r, err, "Failed to update "+h.noun+" data")
		return
	}
	h.invalidate(r.Context())
	h.writeJSON(w, http.StatusOK, e)
}

// Delete removes an entry.
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err, "Failed to delete "+h.noun+" data")
		return
	}
	h.invalidate(r.Context())
	h.writeJSON(w, http.StatusOK, map[string]string{"message": h.deleted})
}

func (h *EntryHandler) invalidate(ctx context.Context) {
	invalidateAnswers(ctx, h.logger, h.answers)
}

// MaterialHandler serves CRUD for the material catalog.
type MaterialHandler struct {
	base
	repo    *storage.MaterialRepository
	answers cache.Client
}

// NewMaterialHandler creates a new catalog handler.
func NewMaterialHandler(logger *observability.Logger, repo *storage.MaterialRepository, answers cache.Client) *MaterialHandler {
	return &MaterialHandler{
		base:    base{logger: logger},
		repo:    repo,
		answers: answers,
	}
}

// List returns the catalog, highest priority first.
func (h *MaterialHandler) List(w http.ResponseWriter, r *http.Request) {
	materials, err := h.repo.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch materials")
		return
	}
	if materials == nil {
		materials = []*storage.Material{}
	}
	h.writeJSON(w, http.StatusOK, materials)
}

// Get returns one material.
func (h *MaterialHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	m, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch materials")
		return
	}
	h.writeJSON(w, http.StatusOK, m)
}

// Create inserts a material.
func (h *MaterialHandler) Create(w http.ResponseWriter, r *http.Request) {
	m := &storage.Material{Active: true}
	if !h.decode(w, r, m) {
		return
	}
	if strings.TrimSpace(m.MaterialName) == "" {
		h.writeError(w, http.StatusBadRequest, "material_name is required", "")
		return
	}
	m.ID = uuid.Nil

	if err := h.repo.Create(r.Context(), m); err != nil {
		h.fail(w, r, err, "Failed to create material")
		return
	}
	invalidateAnswers(r.Context(), h.logger, h.answers)
	h.writeJSON(w, http.StatusCreated, m)
}

// Update applies the request body over the stored material.
func (h *MaterialHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	m, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to update material")
		return
	}
	if !h.decode(w, r, m) {
		return
	}
	m.ID = id

	if err := h.repo.Update(r.Context(), m); err != nil {
		h.fail(w, r, err, "Failed to update material")
		return
	}
	invalidateAnswers(r.Context(), h.logger, h.answers)
	h.writeJSON(w, http.StatusOK, m)
}

// Delete removes a material.
func (h *MaterialHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err, "Failed to delete material")
		return
	}
	invalidateAnswers(r.Context(), h.logger, h.answers)
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Material deleted successfully"})
}

// fail maps a store error to a response. Missing rows are 404, everything
// else is a 500 carrying errMsg.
func (b base) fail(w http.ResponseWriter, r *http.Request, err error, errMsg string) {
	if errors.Is(err, storage.ErrNotFound) {
		b.writeError(w, http.StatusNotFound, "Not found", "")
		return
	}
	b.logger.WithContext(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg(errMsg)
	b.writeError(w, http.StatusInternalServerError, errMsg, "")
}

// invalidateAnswers drops cached answers after a fact edit. A failure leaves
// stale answers until their TTL runs out, so it is logged rather than returned.
func invalidateAnswers(ctx context.Context, logger *observability.Logger, answers cache.Client) {
	if err := retrieval.InvalidateAnswers(ctx, answers); err != nil {
		logger.WithContext(ctx).Warn().Err(err).Msg("Failed to invalidate cached answers")
	}
}
