package analyzer

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"salesbot/internal/catalog"
	"salesbot/internal/interest"
	"salesbot/internal/session"
)

// Handler runs conversation analysis over HTTP and records the
// resulting interest signals.
type Handler struct {
	client    *Client
	sessions  *session.Manager
	interests *interest.Store
	catalog   *catalog.Extractor
}

// NewHandler creates the analysis HTTP handler.
func NewHandler(client *Client, sessions *session.Manager, interests *interest.Store, cat *catalog.Extractor) *Handler {
	return &Handler{client: client, sessions: sessions, interests: interests, catalog: cat}
}

// Routes returns the analysis sub-router, mounted at /api/analysis.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", h.handleMessage)
	r.Post("/conversation", h.handleConversation)
	return r
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone and message are required"})
		return
	}

	products, err := h.catalog.ActiveProductNames(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	signals, err := h.client.AnalyzeMessage(r.Context(), req.Message, products)
	if err != nil {
		log.Printf("message analysis failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	h.apply(w, r, req.Phone, signals)
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone         string `json:"phone"`
		Conversations int    `json:"conversations"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "phone is required"})
		return
	}

	customerID, err := h.sessions.CustomerIDByPhone(r.Context(), req.Phone)
	if errors.Is(err, session.ErrUnknownCustomer) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	transcript, err := h.sessions.RecentMessages(r.Context(), customerID, req.Conversations)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if len(transcript) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{"signals": 0, "report": interest.Report{}})
		return
	}

	products, err := h.catalog.ActiveProductNames(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	signals, err := h.client.AnalyzeTranscript(r.Context(), transcript, products)
	if err != nil {
		log.Printf("conversation analysis failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	h.apply(w, r, req.Phone, signals)
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, phone string, signals []interest.Signal) {
	customerID, err := h.interests.CustomerIDByPhone(r.Context(), phone)
	if errors.Is(err, interest.ErrUnknownCustomer) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	report, err := h.interests.ApplySignals(r.Context(), customerID, signals)
	if err != nil {
		log.Printf("recording analysis signals: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"signals": len(signals), "report": report})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}
