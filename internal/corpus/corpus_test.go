package corpus

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"salesbot/internal/db"
)

type mockEmbedder struct {
	calls  int
	failOn string
}

func (m *mockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if m.failOn != "" && strings.Contains(text, m.failOn) {
			return nil, errors.New("mock embedder failure")
		}
		vec := make([]float32, 8)
		for j, r := range text {
			vec[j%8] += float32(r)
		}
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int { return 8 }
func (m *mockEmbedder) Name() string    { return "mock" }

func setupCorpus(t *testing.T) (*db.DB, *Store) {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	stmts := []string{
		`INSERT INTO products (id, name, code, base_price, global_stock) VALUES
			(1, 'Botella Acero', 'BOT-001', 349.50, 40),
			(2, 'Taza Cerámica', 'TAZ-002', 120.00, 12)`,
		`INSERT INTO promotions (id, name, discount_type, discount_value, start_date, end_date) VALUES
			(1, 'Verano', 'porcentaje', 15, '2000-01-01', '2999-12-31')`,
		`INSERT INTO promotion_products (promotion_id, product_id) VALUES (1, 1)`,
		`INSERT INTO collections (id, name, description) VALUES (1, 'Hogar', 'Artículos para el hogar')`,
		`INSERT INTO product_collections (product_id, collection_id) VALUES (1, 1), (2, 1)`,
		`INSERT INTO branches (id, name, address) VALUES (1, 'Sucursal Centro', 'Av. Juárez 100')`,
		`INSERT INTO warehouses (id, branch_id, name) VALUES (1, 1, 'Almacén A')`,
		`INSERT INTO warehouse_stock (warehouse_id, product_id, quantity) VALUES (1, 1, 25)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Exec(stmt); err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	return d, NewStore(d)
}

func TestRebuildPersistsAllTypes(t *testing.T) {
	d, store := setupCorpus(t)
	emb := &mockEmbedder{}
	sync := NewSynchronizer(d, store, emb, time.Second)

	report, err := sync.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if report.Total != 5 || report.Skipped != 0 {
		t.Fatalf("report = %+v, want 5 persisted and 0 skipped", report)
	}
	for typ, want := range map[string]int{"product": 2, "promotion": 1, "collection": 1, "branch": 1} {
		tr := report.Types[typ]
		if tr.Attempted != want || tr.Persisted != want {
			t.Errorf("%s report = %+v, want %d/%d", typ, tr, want, want)
		}
	}
	if sync.State() != StateWarm {
		t.Errorf("state = %s, want warm", sync.State())
	}

	docs, err := store.All(context.Background())
	if err != nil {
		t.Fatalf("loading documents: %v", err)
	}
	if len(docs) != 5 {
		t.Fatalf("persisted %d documents, want 5", len(docs))
	}
	for _, doc := range docs {
		if len(doc.Embedding) != 8 {
			t.Errorf("document %s has %d-dim embedding", doc.ID, len(doc.Embedding))
		}
		if doc.Metadata.Name == "" || doc.Metadata.Type != doc.EntityType {
			t.Errorf("document %s has inconsistent metadata %+v", doc.ID, doc.Metadata)
		}
	}
}

func TestRebuildSkipsFailedEmbeddings(t *testing.T) {
	d, store := setupCorpus(t)
	emb := &mockEmbedder{failOn: "TAZ-002"}
	sync := NewSynchronizer(d, store, emb, time.Second)

	report, err := sync.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	// Taza appears in its own document and in the Hogar collection doc.
	if report.Skipped != 2 {
		t.Errorf("skipped = %d, want 2", report.Skipped)
	}
	if tr := report.Types["product"]; tr.Attempted != 2 || tr.Persisted != 1 {
		t.Errorf("product report = %+v, want 2 attempted 1 persisted", tr)
	}
}

func TestRebuildWithEmptyCatalogSection(t *testing.T) {
	d, store := setupCorpus(t)
	if _, err := d.Exec(`UPDATE promotions SET active = 0`); err != nil {
		t.Fatal(err)
	}
	sync := NewSynchronizer(d, store, &mockEmbedder{}, time.Second)

	report, err := sync.Rebuild(context.Background())
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if tr := report.Types["promotion"]; tr.Attempted != 0 {
		t.Errorf("promotion report = %+v, want empty", tr)
	}
	if report.Total != 4 {
		t.Errorf("total = %d, want 4", report.Total)
	}
}

func TestRebuildIsAtomic(t *testing.T) {
	d, store := setupCorpus(t)
	sync := NewSynchronizer(d, store, &mockEmbedder{}, time.Second)

	if _, err := sync.Rebuild(context.Background()); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sync.Rebuild(cancelled); err == nil {
		t.Fatal("expected rebuild with cancelled context to fail")
	}

	// The failed rebuild must not have cleared the previous corpus.
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("document count after failed rebuild = %d, want 5", n)
	}
}

func TestEnsureFreshRebuildsOnlyWhenEmpty(t *testing.T) {
	d, store := setupCorpus(t)
	emb := &mockEmbedder{}
	sync := NewSynchronizer(d, store, emb, time.Second)

	state, err := sync.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("first EnsureFresh: %v", err)
	}
	if state != StateWarm {
		t.Fatalf("state = %s, want warm", state)
	}
	callsAfterFirst := emb.calls
	if callsAfterFirst == 0 {
		t.Fatal("expected the cold corpus to trigger a rebuild")
	}

	if _, err := sync.EnsureFresh(context.Background()); err != nil {
		t.Fatalf("second EnsureFresh: %v", err)
	}
	if emb.calls != callsAfterFirst {
		t.Error("warm corpus triggered another rebuild")
	}

	// A fresh synchronizer over the populated store trusts it as-is.
	other := NewSynchronizer(d, store, emb, time.Second)
	state, err = other.EnsureFresh(context.Background())
	if err != nil {
		t.Fatalf("EnsureFresh over populated store: %v", err)
	}
	if state != StateWarm || emb.calls != callsAfterFirst {
		t.Error("populated store should not be re-embedded")
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0, 1.5, -3.25, 1e-7}
	out, err := decodeVector(encodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
