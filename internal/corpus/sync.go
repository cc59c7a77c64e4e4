package corpus

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"salesbot/internal/catalog"
	"salesbot/internal/db"
	"salesbot/internal/embeddings"
)

// ErrEmbeddingFailed marks a document whose vector could not be
// computed. Rebuild skips the record and moves on.
var ErrEmbeddingFailed = errors.New("embedding failed")

// State describes whether the corpus has been populated.
type State int

const (
	// StateCold means the corpus is empty or has never been checked.
	StateCold State = iota
	// StateWarm means documents are persisted and ready to serve.
	StateWarm
)

func (s State) String() string {
	if s == StateWarm {
		return "warm"
	}
	return "cold"
}

// TypeReport counts rebuild outcomes for one entity type.
type TypeReport struct {
	Attempted int `json:"attempted"`
	Persisted int `json:"persisted"`
}

// Report summarizes one rebuild run.
type Report struct {
	Types    map[string]TypeReport `json:"types"`
	Total    int                   `json:"total"`
	Skipped  int                   `json:"skipped"`
	Duration time.Duration         `json:"duration"`
}

// Synchronizer rebuilds the knowledge corpus from the catalog. A
// rebuild is one transaction: clear, re-extract, re-embed, re-insert.
// Readers either see the full old corpus or the full new one.
type Synchronizer struct {
	db           *db.DB
	store        *Store
	embedder     embeddings.Embedder
	embedTimeout time.Duration

	mu    sync.Mutex
	state State
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(d *db.DB, store *Store, embedder embeddings.Embedder, embedTimeout time.Duration) *Synchronizer {
	return &Synchronizer{
		db:           d,
		store:        store,
		embedder:     embedder,
		embedTimeout: embedTimeout,
	}
}

// State returns the last observed corpus state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// EnsureFresh rebuilds the corpus only when it is empty. A populated
// corpus is trusted as-is; use Rebuild to force a refresh.
func (s *Synchronizer) EnsureFresh(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateWarm {
		return StateWarm, nil
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		return StateCold, err
	}
	if n > 0 {
		s.state = StateWarm
		return StateWarm, nil
	}

	log.Println("knowledge corpus is empty, rebuilding")
	if _, err := s.rebuildLocked(ctx); err != nil {
		return StateCold, err
	}
	return s.state, nil
}

// Rebuild regenerates the whole corpus from the current catalog.
func (s *Synchronizer) Rebuild(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx)
}

func (s *Synchronizer) rebuildLocked(ctx context.Context) (Report, error) {
	start := time.Now()
	report := Report{Types: make(map[string]TypeReport)}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.DeleteAllTx(ctx, tx); err != nil {
			return err
		}
		ext := catalog.NewExtractor(tx)

		// An extraction failure skips that type; the others still sync.
		if products, err := ext.Products(ctx); err != nil {
			log.Printf("corpus: extracting products: %v", err)
		} else {
			s.syncProducts(ctx, tx, products, &report)
		}
		if promos, err := ext.Promotions(ctx); err != nil {
			log.Printf("corpus: extracting promotions: %v", err)
		} else {
			s.syncPromotions(ctx, tx, promos, &report)
		}
		if cols, err := ext.Collections(ctx); err != nil {
			log.Printf("corpus: extracting collections: %v", err)
		} else {
			s.syncCollections(ctx, tx, cols, &report)
		}
		if branches, err := ext.Branches(ctx); err != nil {
			log.Printf("corpus: extracting branches: %v", err)
		} else {
			s.syncBranches(ctx, tx, branches, &report)
		}
		return nil
	})
	if err != nil {
		return Report{}, fmt.Errorf("rebuilding corpus: %w", err)
	}

	s.state = StateWarm
	report.Duration = time.Since(start)
	log.Printf("corpus rebuilt: %d documents persisted, %d skipped in %s",
		report.Total, report.Skipped, report.Duration.Round(time.Millisecond))
	return report, nil
}

func (s *Synchronizer) syncProducts(ctx context.Context, tx *sql.Tx, records []catalog.ProductRecord, report *Report) {
	tr := TypeReport{Attempted: len(records)}
	for _, r := range records {
		meta := Metadata{
			Type:     string(catalog.TypeProduct),
			EntityID: r.ID,
			Name:     r.Name,
			Code:     r.Code,
			Price:    r.BasePrice,
			Stock:    r.GlobalStock,
		}
		if s.persist(ctx, tx, catalog.TypeProduct, catalog.RenderProduct(r), meta, report) {
			tr.Persisted++
		}
	}
	report.Types[string(catalog.TypeProduct)] = tr
}

func (s *Synchronizer) syncPromotions(ctx context.Context, tx *sql.Tx, records []catalog.PromotionRecord, report *Report) {
	tr := TypeReport{Attempted: len(records)}
	for _, r := range records {
		meta := Metadata{
			Type:          string(catalog.TypePromotion),
			EntityID:      r.ID,
			Name:          r.Name,
			DiscountType:  r.DiscountType,
			DiscountValue: r.DiscountValue,
			StartDate:     r.StartDate,
			EndDate:       r.EndDate,
		}
		if s.persist(ctx, tx, catalog.TypePromotion, catalog.RenderPromotion(r), meta, report) {
			tr.Persisted++
		}
	}
	report.Types[string(catalog.TypePromotion)] = tr
}

func (s *Synchronizer) syncCollections(ctx context.Context, tx *sql.Tx, records []catalog.CollectionRecord, report *Report) {
	tr := TypeReport{Attempted: len(records)}
	for _, r := range records {
		meta := Metadata{
			Type:         string(catalog.TypeCollection),
			EntityID:     r.ID,
			Name:         r.Name,
			ProductCount: len(r.Products),
			TotalStock:   r.TotalStock,
			AvgPrice:     r.AvgPrice,
			MinPrice:     r.MinPrice,
			MaxPrice:     r.MaxPrice,
		}
		if s.persist(ctx, tx, catalog.TypeCollection, catalog.RenderCollection(r), meta, report) {
			tr.Persisted++
		}
	}
	report.Types[string(catalog.TypeCollection)] = tr
}

func (s *Synchronizer) syncBranches(ctx context.Context, tx *sql.Tx, records []catalog.BranchRecord, report *Report) {
	tr := TypeReport{Attempted: len(records)}
	for _, r := range records {
		meta := Metadata{
			Type:           string(catalog.TypeBranch),
			EntityID:       r.ID,
			Name:           r.Name,
			Address:        r.Address,
			WarehouseCount: len(r.Warehouses),
			ProductCount:   r.ProductCount,
			TotalStock:     r.TotalStock,
		}
		if s.persist(ctx, tx, catalog.TypeBranch, catalog.RenderBranch(r), meta, report) {
			tr.Persisted++
		}
	}
	report.Types[string(catalog.TypeBranch)] = tr
}

// persist embeds and inserts one document. Embedding and insert
// failures both count as skips; the rest of the rebuild continues.
func (s *Synchronizer) persist(ctx context.Context, tx *sql.Tx, typ catalog.EntityType, content string, meta Metadata, report *Report) bool {
	vec, err := s.embedOne(ctx, content)
	if err != nil {
		log.Printf("corpus: skipping %s %q: %v", typ, meta.Name, err)
		report.Skipped++
		return false
	}
	doc := Document{
		ID:         uuid.NewString(),
		EntityType: string(typ),
		Content:    content,
		Embedding:  vec,
		Metadata:   meta,
	}
	if err := s.store.InsertTx(ctx, tx, doc); err != nil {
		log.Printf("corpus: skipping %s %q: %v", typ, meta.Name, err)
		report.Skipped++
		return false
	}
	report.Total++
	return true
}

func (s *Synchronizer) embedOne(ctx context.Context, text string) ([]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vecs, err := s.embedder.Embed(ectx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for one text", ErrEmbeddingFailed, len(vecs))
	}
	return vecs[0], nil
}
