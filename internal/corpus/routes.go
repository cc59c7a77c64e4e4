package corpus

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Reloader refreshes the in-memory search index after a rebuild.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Handler exposes corpus management over HTTP.
type Handler struct {
	sync     *Synchronizer
	store    *Store
	reloader Reloader
}

// NewHandler creates the corpus HTTP handler. reloader may be nil when
// no search index is attached.
func NewHandler(sync *Synchronizer, store *Store, reloader Reloader) *Handler {
	return &Handler{sync: sync, store: store, reloader: reloader}
}

// Routes returns the corpus sub-router, mounted at /api/corpus.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/rebuild", h.handleRebuild)
	r.Get("/status", h.handleStatus)
	return r
}

func (h *Handler) handleRebuild(w http.ResponseWriter, r *http.Request) {
	report, err := h.sync.Rebuild(r.Context())
	if err != nil {
		log.Printf("corpus rebuild failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if h.reloader != nil {
		if err := h.reloader.Reload(r.Context()); err != nil {
			log.Printf("index reload after rebuild failed: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "index reload failed: " + err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts, err := h.store.CountByType(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     h.sync.State().String(),
		"documents": total,
		"by_type":   counts,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}
