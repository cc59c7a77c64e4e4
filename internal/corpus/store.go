package corpus

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"salesbot/internal/db"
)

// Document is one knowledge corpus entry: the rendered text for an
// entity, its embedding vector and the structured metadata carried
// alongside search results.
type Document struct {
	ID         string
	EntityType string
	Content    string
	Embedding  []float32
	Metadata   Metadata
}

// Metadata travels with a document from sync to search results.
// Fields are per entity type; unused ones are omitted from the JSON.
type Metadata struct {
	Type     string `json:"type"`
	EntityID int64  `json:"entity_id"`
	Name     string `json:"name"`

	Code  string  `json:"code,omitempty"`
	Price float64 `json:"price,omitempty"`
	Stock int     `json:"stock,omitempty"`

	DiscountType  string  `json:"discount_type,omitempty"`
	DiscountValue float64 `json:"discount_value,omitempty"`
	StartDate     string  `json:"start_date,omitempty"`
	EndDate       string  `json:"end_date,omitempty"`

	ProductCount int     `json:"product_count,omitempty"`
	TotalStock   int     `json:"total_stock,omitempty"`
	AvgPrice     float64 `json:"avg_price,omitempty"`
	MinPrice     float64 `json:"min_price,omitempty"`
	MaxPrice     float64 `json:"max_price,omitempty"`

	Address        string `json:"address,omitempty"`
	WarehouseCount int    `json:"warehouse_count,omitempty"`
}

// Store persists corpus documents in the knowledge_documents table.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(d *db.DB) *Store {
	return &Store{db: d}
}

// Count returns the number of persisted documents.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_documents`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// CountByType returns per-entity-type document counts.
func (s *Store) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, COUNT(*) FROM knowledge_documents GROUP BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("counting documents by type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// All loads every document, with decoded embeddings and metadata.
func (s *Store) All(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_type, content, embedding, metadata
		FROM knowledge_documents ORDER BY entity_type, id`)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		var blob []byte
		var meta string
		if err := rows.Scan(&doc.ID, &doc.EntityType, &doc.Content, &blob, &meta); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		doc.Embedding, err = decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", doc.ID, err)
		}
		if err := json.Unmarshal([]byte(meta), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// DeleteAllTx removes every document inside an existing transaction.
func (s *Store) DeleteAllTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM knowledge_documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}
	return nil
}

// InsertTx persists one document inside an existing transaction.
func (s *Store) InsertTx(ctx context.Context, tx *sql.Tx, doc Document) error {
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO knowledge_documents (id, entity_type, content, embedding, metadata)
		VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.EntityType, doc.Content, encodeVector(doc.Embedding), string(meta))
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

// encodeVector packs float32 components little-endian for BLOB storage.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d not a multiple of 4", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v, nil
}
