package interest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes customer interests over HTTP.
type Handler struct {
	store *Store
}

// NewHandler creates the interest HTTP handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Routes returns the customer interest sub-router, mounted at
// /api/customers.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{phone}/interests", h.handleList)
	r.Post("/{phone}/interests", h.handleApply)
	return r
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID, err := h.store.CustomerIDByPhone(r.Context(), chi.URLParam(r, "phone"))
	if errors.Is(err, ErrUnknownCustomer) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	entries, err := h.store.ActiveByCustomer(r.Context(), customerID)
	if err != nil {
		log.Printf("listing interests: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interests": entries})
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Signals []struct {
			Kind     string `json:"kind"`
			EntityID int64  `json:"entity_id"`
			Level    string `json:"level"`
		} `json:"signals"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	customerID, err := h.store.CustomerIDByPhone(r.Context(), chi.URLParam(r, "phone"))
	if errors.Is(err, ErrUnknownCustomer) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// Unparseable kinds and levels become zero-valued signals, which
	// ApplySignals counts as rejected.
	signals := make([]Signal, 0, len(req.Signals))
	for _, raw := range req.Signals {
		var sig Signal
		sig.EntityID = raw.EntityID
		if k, err := ParseKind(raw.Kind); err == nil {
			sig.Kind = k
		}
		if l, err := ParseLevel(raw.Level); err == nil {
			sig.Level = l
		}
		signals = append(signals, sig)
	}

	report, err := h.store.ApplySignals(r.Context(), customerID, signals)
	if err != nil {
		log.Printf("applying interest signals: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}
