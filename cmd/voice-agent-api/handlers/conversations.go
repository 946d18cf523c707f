package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/axmen-recycling/voice-agent/internal/caller"
	"github.com/axmen-recycling/voice-agent/internal/observability"
	"github.com/axmen-recycling/voice-agent/internal/storage"
)

// ConversationHandler serves the call log.
type ConversationHandler struct {
	base
	repo *storage.ConversationRepository
}

// NewConversationHandler creates a new call log handler.
func NewConversationHandler(logger *observability.Logger, repo *storage.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{
		base: base{logger: logger},
		repo: repo,
	}
}

// List returns conversations, newest first. ?status= filters by resolution
// status unless it is "all".
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.repo.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, r, err, "Failed to fetch conversations")
		return
	}
	if convs == nil {
		convs = []*storage.Conversation{}
	}
	h.writeJSON(w, http.StatusOK, convs)
}

// Get returns a conversation with its messages in order.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch conversation details")
		return
	}
	if c.Messages == nil {
		c.Messages = []storage.Message{}
	}
	h.writeJSON(w, http.StatusOK, c)
}

// Create logs a call. This route is public so the voice platform can post to it.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	c := &storage.Conversation{}
	if !h.decode(w, r, c) {
		return
	}
	c.ID = uuid.Nil
	c.PhoneKey = caller.NormalizePhone(c.PhoneNumber)
	for i := range c.Messages {
		c.Messages[i].ID = uuid.Nil
	}

	if err := h.repo.Create(r.Context(), c); err != nil {
		h.fail(w, r, err, "Failed to create conversation")
		return
	}
	h.writeJSON(w, http.StatusCreated, c)
}

// Update applies review fields (category, status, score, summary).
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	c, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.fail(w, r, err, "Failed to update conversation")
		return
	}
	if !h.decode(w, r, c) {
		return
	}
	c.ID = id

	if err := h.repo.Update(r.Context(), c); err != nil {
		h.fail(w, r, err, "Failed to update conversation")
		return
	}
	h.writeJSON(w, http.StatusOK, c)
}

// CallbackHandler serves callback requests and customer messages for staff.
type CallbackHandler struct {
	base
	callbacks *storage.CallbackRepository
	messages  *storage.CustomerMessageRepository
}

// NewCallbackHandler creates a new callback handler.
func NewCallbackHandler(logger *observability.Logger, callbacks *storage.CallbackRepository, messages *storage.CustomerMessageRepository) *CallbackHandler {
	return &CallbackHandler{
		base:      base{logger: logger},
		callbacks: callbacks,
		messages:  messages,
	}
}

// List returns callback requests, newest first, optionally filtered by ?status=.
func (h *CallbackHandler) List(w http.ResponseWriter, r *http.Request) {
	status := storage.CallbackStatus(r.URL.Query().Get("status"))
	if status == "all" {
		status = ""
	}
	if status != "" && !status.Valid() {
		h.writeError(w, http.StatusBadRequest, "Invalid status", string(status))
		return
	}

	cbs, err := h.callbacks.List(r.Context(), status)
	if err != nil {
		h.fail(w, r, err, "Failed to fetch callbacks")
		return
	}
	if cbs == nil {
		cbs = []*storage.CallbackRequest{}
	}
	h.writeJSON(w, http.StatusOK, cbs)
}

type statusUpdate struct {
	Status storage.CallbackStatus `json:"status"`
}

// UpdateStatus moves a callback to pending, completed or cancelled.
func (h *CallbackHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}
	var req statusUpdate
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		h.writeError(w, http.StatusBadRequest, "Invalid status", string(req.Status))
		return
	}

	if err := h.callbacks.UpdateStatus(r.Context(), id, req.Status); err != nil {
		h.fail(w, r, err, "Failed to update callback")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"id": id.String(), "status": string(req.Status)})
}

// Messages returns customer messages, newest first.
func (h *CallbackHandler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.List(r.Context())
	if err != nil {
		h.fail(w, r, err, "Failed to fetch messages")
		return
	}
	if msgs == nil {
		msgs = []*storage.CustomerMessage{}
	}
	h.writeJSON(w, http.StatusOK, msgs)
}
