package session

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes conversation lifecycle over HTTP.
type Handler struct {
	manager *Manager
}

// NewHandler creates the conversation HTTP handler.
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// Routes returns the conversation sub-router, mounted at
// /api/conversations.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/inbound", h.handleInbound)
	r.Post("/outbound", h.handleOutbound)
	r.Post("/{id}/close", h.handleClose)
	r.Post("/sweep", h.handleSweep)
	return r
}

func (h *Handler) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	res, err := h.manager.RecordInbound(r.Context(), req.Phone, req.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleOutbound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID int64  `json:"conversation_id"`
		Content        string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	msgID, err := h.manager.RecordOutbound(r.Context(), req.ConversationID, req.Content)
	if errors.Is(err, ErrUnknownConversation) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"message_id": msgID})
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid conversation id"})
		return
	}

	err = h.manager.Close(r.Context(), id)
	if errors.Is(err, ErrUnknownConversation) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		log.Printf("closing conversation %d: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "finalized"})
}

func (h *Handler) handleSweep(w http.ResponseWriter, r *http.Request) {
	swept, err := h.manager.SweepStale(r.Context())
	if err != nil {
		log.Printf("sweeping conversations: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"finalized": swept})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}
