package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"chatrelay/internal/store"
)

// ConversationHandler serves the conversation CRUD and send-message
// endpoints.
type ConversationHandler struct {
	store *store.Store
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(s *store.Store) *ConversationHandler {
	return &ConversationHandler{store: s}
}

// RegisterRoutes registers conversation routes.
func (h *ConversationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
		r.Post("/{id}/messages", h.SendMessage)
	})
}

type createRequest struct {
	Title    string            `json:"title,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type sendRequest struct {
	Message         string                 `json:"message"`
	SamplingOptions *store.SamplingOptions `json:"sampling_options,omitempty"`
}

// Create allocates a new conversation.
func (h *ConversationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	// An empty body is fine; title is optional.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	conv := h.store.Create(req.Title, req.Metadata)
	JSON(w, http.StatusCreated, conv)
}

// Get returns a single conversation with its full history.
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	conv, err := h.store.Get(id)
	if err != nil {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	JSON(w, http.StatusOK, conv)
}

// List returns conversation summaries, most recently active first.
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	summaries, total := h.store.List(limit)
	JSON(w, http.StatusOK, map[string]interface{}{
		"conversations": summaries,
		"total":         total,
	})
}

// Delete removes a conversation.
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(id); err != nil {
		Error(w, http.StatusNotFound, "conversation not found")
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SendMessage appends a user message, runs inference, and returns the
// exchange. A sidecar failure is not an HTTP error: the response still
// carries an assistant message, flagged as a fallback.
func (h *ConversationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.store.SendMessage(r.Context(), id, req.Message, req.SamplingOptions)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyMessage):
			Error(w, http.StatusBadRequest, "message cannot be empty")
		case errors.Is(err, store.ErrNotFound):
			Error(w, http.StatusNotFound, "conversation not found")
		default:
			slog.Error("send message failed", "conversation_id", id, "error", err)
			Error(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id":   id,
		"user_message":      result.UserMessage,
		"assistant_message": result.AssistantMessage,
		"message_count":     result.MessageCount,
	})
}
