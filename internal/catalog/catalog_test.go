package catalog

import (
	"context"
	"strings"
	"testing"

	"salesbot/internal/db"
)

func setupCatalog(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	stmts := []string{
		`INSERT INTO products (id, name, description, code, base_price, global_stock, active) VALUES
			(1, 'Botella Acero', 'Botella térmica de acero inoxidable', 'BOT-001', 349.50, 40, 1),
			(2, 'Taza Cerámica', 'Taza artesanal', 'TAZ-002', 120.00, 0, 1),
			(3, 'Producto Viejo', 'Descatalogado', 'OLD-003', 10.00, 5, 0)`,
		`INSERT INTO branches (id, name, address, active) VALUES
			(1, 'Sucursal Centro', 'Av. Juárez 100', 1),
			(2, 'Sucursal Cerrada', 'Calle Falsa 1', 0)`,
		`INSERT INTO warehouses (id, branch_id, name, active) VALUES
			(1, 1, 'Almacén A', 1),
			(2, 1, 'Almacén B', 1),
			(3, 2, 'Almacén Cerrado', 1)`,
		`INSERT INTO warehouse_stock (warehouse_id, product_id, quantity) VALUES
			(1, 1, 25), (2, 1, 15), (1, 2, 0), (3, 1, 99)`,
		`INSERT INTO collections (id, name, description, active) VALUES
			(1, 'Hogar', 'Artículos para el hogar', 1),
			(2, 'Oculta', 'No visible', 0)`,
		`INSERT INTO product_collections (product_id, collection_id) VALUES
			(1, 1), (2, 1), (1, 2)`,
		`INSERT INTO promotions (id, name, description, discount_type, discount_value, start_date, end_date, active) VALUES
			(1, 'Verano', 'Descuento de temporada', 'porcentaje', 15, '2000-01-01', '2999-12-31', 1),
			(2, 'Expirada', 'Ya terminó', 'porcentaje', 50, '2000-01-01', '2000-12-31', 1),
			(3, 'Monto Fijo', 'Descuento directo', 'monto', 50, '2000-01-01', '2999-12-31', 1)`,
		`INSERT INTO promotion_products (promotion_id, product_id) VALUES
			(1, 1), (2, 1), (3, 2)`,
		`INSERT INTO promotion_collections (promotion_id, collection_id) VALUES (1, 1)`,
		`INSERT INTO price_lists (id, name, active) VALUES (1, 'Mayoreo', 1), (2, 'Inactiva', 0)`,
		`INSERT INTO product_prices (product_id, list_id, price) VALUES (1, 1, 299.00), (1, 2, 1.00)`,
	}
	for _, stmt := range stmts {
		if _, err := d.Exec(stmt); err != nil {
			t.Fatalf("seeding catalog: %v\n%s", err, stmt)
		}
	}
	return d
}

func TestProductsAggregation(t *testing.T) {
	d := setupCatalog(t)
	ext := NewExtractor(d)

	products, err := ext.Products(context.Background())
	if err != nil {
		t.Fatalf("extracting products: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 active products, got %d", len(products))
	}

	p := products[0]
	if p.Name != "Botella Acero" {
		t.Fatalf("unexpected first product %q", p.Name)
	}
	// Warehouse under the inactive branch must not contribute a location.
	if len(p.Locations) != 2 {
		t.Fatalf("expected 2 locations, got %d: %+v", len(p.Locations), p.Locations)
	}
	if p.Locations[0].Branch != "Sucursal Centro" || p.Locations[0].Warehouse != "Almacén A" {
		t.Errorf("unexpected first location %+v", p.Locations[0])
	}
	// Membership in the inactive collection is dropped.
	if len(p.Collections) != 1 || p.Collections[0].Name != "Hogar" {
		t.Errorf("expected only Hogar collection, got %+v", p.Collections)
	}
	// The expired promotion is outside its validity window.
	if len(p.Promotions) != 1 || p.Promotions[0].Name != "Verano" {
		t.Errorf("expected only Verano promotion, got %+v", p.Promotions)
	}
	// Prices from inactive lists are dropped.
	if len(p.SpecialPrices) != 1 || p.SpecialPrices[0].List != "Mayoreo" {
		t.Errorf("expected only Mayoreo price, got %+v", p.SpecialPrices)
	}
}

func TestPromotionsAggregation(t *testing.T) {
	d := setupCatalog(t)
	ext := NewExtractor(d)

	promos, err := ext.Promotions(context.Background())
	if err != nil {
		t.Fatalf("extracting promotions: %v", err)
	}
	// All three are active; expiry only matters for the product view.
	if len(promos) != 3 {
		t.Fatalf("expected 3 promotions, got %d", len(promos))
	}
	for _, pr := range promos {
		if pr.Name != "Verano" {
			continue
		}
		if len(pr.Products) != 1 || pr.Products[0].Name != "Botella Acero" {
			t.Errorf("Verano products = %+v", pr.Products)
		}
		if len(pr.Collections) != 1 || pr.Collections[0].Name != "Hogar" {
			t.Errorf("Verano collections = %+v", pr.Collections)
		}
	}
}

func TestCollectionsStats(t *testing.T) {
	d := setupCatalog(t)
	ext := NewExtractor(d)

	cols, err := ext.Collections(context.Background())
	if err != nil {
		t.Fatalf("extracting collections: %v", err)
	}
	if len(cols) != 1 {
		t.Fatalf("expected 1 active collection, got %d", len(cols))
	}

	c := cols[0]
	if len(c.Products) != 2 {
		t.Fatalf("expected 2 products in Hogar, got %d", len(c.Products))
	}
	if c.TotalStock != 40 {
		t.Errorf("TotalStock = %d, want 40", c.TotalStock)
	}
	if want := (349.50 + 120.00) / 2; c.AvgPrice != want {
		t.Errorf("AvgPrice = %f, want %f", c.AvgPrice, want)
	}
	if c.MinPrice != 120.00 || c.MaxPrice != 349.50 {
		t.Errorf("price range = %f-%f", c.MinPrice, c.MaxPrice)
	}
}

func TestBranchesAggregation(t *testing.T) {
	d := setupCatalog(t)
	ext := NewExtractor(d)

	branches, err := ext.Branches(context.Background())
	if err != nil {
		t.Fatalf("extracting branches: %v", err)
	}
	if len(branches) != 1 {
		t.Fatalf("expected 1 active branch, got %d", len(branches))
	}

	b := branches[0]
	if len(b.Warehouses) != 2 {
		t.Errorf("expected 2 warehouses, got %v", b.Warehouses)
	}
	// Zero-quantity rows are excluded from inventory.
	if len(b.Inventory) != 2 {
		t.Fatalf("expected 2 inventory items, got %+v", b.Inventory)
	}
	if b.Inventory[0].Quantity != 25 {
		t.Errorf("inventory not ordered by quantity: %+v", b.Inventory)
	}
	if b.ProductCount != 1 {
		t.Errorf("ProductCount = %d, want 1", b.ProductCount)
	}
	if b.TotalStock != 40 {
		t.Errorf("TotalStock = %d, want 40", b.TotalStock)
	}
	if len(b.Collections) != 1 || b.Collections[0] != "Hogar" {
		t.Errorf("Collections = %v", b.Collections)
	}
}

func TestActiveProductNames(t *testing.T) {
	d := setupCatalog(t)
	ext := NewExtractor(d)

	names, err := ext.ActiveProductNames(context.Background())
	if err != nil {
		t.Fatalf("extracting product names: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
	if names["Botella Acero"] != 1 {
		t.Errorf("names[Botella Acero] = %d", names["Botella Acero"])
	}
	if _, ok := names["Producto Viejo"]; ok {
		t.Error("inactive product included in names")
	}
}

func TestRenderProductDeterministic(t *testing.T) {
	r := ProductRecord{
		ID: 1, Name: "Botella Acero", Description: "Botella térmica",
		Code: "BOT-001", BasePrice: 349.5, GlobalStock: 40,
		Locations: []StockLocation{
			{Branch: "Sucursal Centro", Address: "Av. Juárez 100", Warehouse: "Almacén A", Quantity: 25},
		},
		Promotions: []PromotionRef{
			{Name: "Verano", DiscountType: "porcentaje", DiscountValue: 15, StartDate: "2026-06-01", EndDate: "2026-08-31"},
		},
	}

	first := RenderProduct(r)
	second := RenderProduct(r)
	if first != second {
		t.Fatal("renderer output not deterministic")
	}

	for _, want := range []string{
		"TIPO: PRODUCTO",
		"PRECIO BASE: $349.50",
		"- Sucursal Centro (Av. Juárez 100) - Almacén: Almacén A - Stock: 25 unidades",
		"- Verano: 15% (Vigente: 2026-06-01 a 2026-08-31)",
		"DISPONIBILIDAD: Disponible",
	} {
		if !strings.Contains(first, want) {
			t.Errorf("output missing %q:\n%s", want, first)
		}
	}
	// Empty aggregates keep their section with a placeholder line.
	if !strings.Contains(first, "COLECCIONES:\nSin datos registrados") {
		t.Errorf("missing placeholder for empty collections:\n%s", first)
	}
}

func TestRenderProductOutOfStock(t *testing.T) {
	out := RenderProduct(ProductRecord{Name: "Taza", Code: "TAZ-002", GlobalStock: 0})
	if !strings.Contains(out, "DISPONIBILIDAD: Sin stock") {
		t.Errorf("expected out-of-stock marker:\n%s", out)
	}
}

func TestRenderPromotionDiscountFormats(t *testing.T) {
	pct := RenderPromotion(PromotionRecord{Name: "Verano", DiscountType: "porcentaje", DiscountValue: 15})
	if !strings.Contains(pct, "DESCUENTO: 15%") {
		t.Errorf("percentage discount misformatted:\n%s", pct)
	}
	flat := RenderPromotion(PromotionRecord{Name: "Fijo", DiscountType: "monto", DiscountValue: 50})
	if !strings.Contains(flat, "DESCUENTO: 50.00 pesos") {
		t.Errorf("flat discount misformatted:\n%s", flat)
	}
}

func TestRenderCollectionTruncatesDescriptions(t *testing.T) {
	long := strings.Repeat("á", 60)
	out := RenderCollection(CollectionRecord{
		Name:     "Hogar",
		Products: []ProductRef{{Name: "Botella", Code: "B1", Price: 10, Stock: 1, Description: long}},
	})
	if strings.Contains(out, long) {
		t.Error("long description not truncated")
	}
	if !strings.Contains(out, strings.Repeat("á", 50)+"...") {
		t.Errorf("expected 50-rune truncation with ellipsis:\n%s", out)
	}
}

func TestRenderBranch(t *testing.T) {
	out := RenderBranch(BranchRecord{
		Name: "Sucursal Centro", Address: "Av. Juárez 100",
		Warehouses:   []string{"Almacén A"},
		Inventory:    []InventoryItem{{Product: "Botella", Code: "B1", Quantity: 25, Price: 349.5, Warehouse: "Almacén A"}},
		ProductCount: 1, TotalStock: 40,
		Collections: []string{"Hogar"},
	})
	for _, want := range []string{
		"TIPO: SUCURSAL",
		"DIRECCIÓN: Av. Juárez 100",
		"- Botella (B1): 25 unidades - $349.50 - Almacén: Almacén A",
		"- Productos distintos: 1",
		"- Stock total: 40 unidades",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
