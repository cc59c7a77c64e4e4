package retrieval

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// Handler exposes corpus search over HTTP.
type Handler struct {
	index    *Index
	defaultK int
}

// NewHandler creates the search HTTP handler. defaultK is used when
// the request does not set k.
func NewHandler(index *Index, defaultK int) *Handler {
	return &Handler{index: index, defaultK: defaultK}
}

// Routes returns the search sub-router, mounted at /api/search.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleSearch)
	return r
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter q"})
		return
	}

	k := h.defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must be a positive integer"})
			return
		}
		k = parsed
	}
	typeFilter := r.URL.Query().Get("type")

	results, err := h.index.Search(r.Context(), query, k, typeFilter)
	if err != nil {
		if errors.Is(err, ErrEmptyIndex) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "knowledge corpus is empty, rebuild it first"})
			return
		}
		log.Printf("search failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": results,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}
