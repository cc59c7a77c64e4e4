package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"salesbot/internal/corpus"
)

// ErrEmptyIndex is returned when a search runs against an index with
// no documents.
var ErrEmptyIndex = errors.New("search index is empty")

const defaultLimit = 5

// Result is one search hit.
type Result struct {
	Content    string          `json:"content"`
	Metadata   corpus.Metadata `json:"metadata"`
	Similarity float32         `json:"similarity"`
}

// Index serves similarity search over the persisted corpus. Documents
// are loaded into an in-memory chromem collection with their stored
// embeddings; only query texts are embedded at search time. Reload
// swaps the whole collection, so searches never see a half-built one.
type Index struct {
	store     *corpus.Store
	embedFunc chromem.EmbeddingFunc

	mu         sync.RWMutex
	collection *chromem.Collection
	meta       map[string]corpus.Metadata
	byType     map[string]int
	total      int
}

// NewIndex creates an Index over the given store. embedFunc embeds
// query texts.
func NewIndex(store *corpus.Store, embedFunc chromem.EmbeddingFunc) *Index {
	return &Index{store: store, embedFunc: embedFunc}
}

// Reload rebuilds the in-memory collection from the persisted corpus.
func (idx *Index) Reload(ctx context.Context) error {
	docs, err := idx.store.All(ctx)
	if err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}

	col, err := chromem.NewDB().GetOrCreateCollection("knowledge", nil, idx.embedFunc)
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	meta := make(map[string]corpus.Metadata, len(docs))
	byType := make(map[string]int)
	if len(docs) > 0 {
		entries := make([]chromem.Document, len(docs))
		for i, doc := range docs {
			entries[i] = chromem.Document{
				ID:        doc.ID,
				Metadata:  map[string]string{"type": doc.EntityType},
				Embedding: doc.Embedding,
				Content:   doc.Content,
			}
			meta[doc.ID] = doc.Metadata
			byType[doc.EntityType]++
		}
		if err := col.AddDocuments(ctx, entries, 1); err != nil {
			return fmt.Errorf("indexing documents: %w", err)
		}
	}

	idx.mu.Lock()
	idx.collection = col
	idx.meta = meta
	idx.byType = byType
	idx.total = len(docs)
	idx.mu.Unlock()

	log.Printf("search index loaded with %d documents", len(docs))
	return nil
}

// Search returns up to k documents most similar to the query,
// optionally restricted to one entity type. k defaults to 5 when not
// positive and is capped by the number of eligible documents.
func (idx *Index) Search(ctx context.Context, query string, k int, typeFilter string) ([]Result, error) {
	if k <= 0 {
		k = defaultLimit
	}

	idx.mu.RLock()
	if idx.collection == nil {
		idx.mu.RUnlock()
		if err := idx.Reload(ctx); err != nil {
			return nil, err
		}
		idx.mu.RLock()
	}
	col := idx.collection
	meta := idx.meta
	total := idx.total
	available := total
	if typeFilter != "" {
		available = idx.byType[typeFilter]
	}
	idx.mu.RUnlock()

	if total == 0 {
		return nil, ErrEmptyIndex
	}
	if available == 0 {
		return []Result{}, nil
	}
	if k > available {
		k = available
	}

	var where map[string]string
	if typeFilter != "" {
		where = map[string]string{"type": typeFilter}
	}
	hits, err := col.Query(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			Content:    hit.Content,
			Metadata:   meta[hit.ID],
			Similarity: hit.Similarity,
		})
	}
	return results, nil
}

// Size returns the number of indexed documents.
func (idx *Index) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.total
}
