package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// The extractor runs against either, so the corpus synchronizer can
// read the catalog inside its rebuild transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Extractor denormalizes the relational catalog into typed records,
// one per active entity, with all multi-valued joins flattened into
// nested slices. Each aggregate comes from its own bucketed query to
// avoid row multiplication.
type Extractor struct {
	q Querier
}

// NewExtractor creates an Extractor over the given database or transaction.
func NewExtractor(q Querier) *Extractor {
	return &Extractor{q: q}
}

// Products returns all active products with locations, collection
// memberships, currently valid promotions and special price lists.
func (e *Extractor) Products(ctx context.Context) ([]ProductRecord, error) {
	rows, err := e.q.QueryContext(ctx, `
		SELECT id, name, description, code, base_price, global_stock, image
		FROM products WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer rows.Close()

	var records []ProductRecord
	index := make(map[int64]int)
	for rows.Next() {
		var r ProductRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Code, &r.BasePrice, &r.GlobalStock, &r.Image); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = e.forEachRow(ctx, `
		SELECT ws.product_id, b.name, b.address, w.name, ws.quantity
		FROM warehouse_stock ws
		JOIN warehouses w ON w.id = ws.warehouse_id AND w.active = 1
		JOIN branches b ON b.id = w.branch_id AND b.active = 1
		ORDER BY ws.product_id, b.name, w.name`,
		func(rows *sql.Rows) error {
			var id int64
			var loc StockLocation
			if err := rows.Scan(&id, &loc.Branch, &loc.Address, &loc.Warehouse, &loc.Quantity); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Locations = append(records[i].Locations, loc)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying product locations: %w", err)
	}

	err = e.forEachRow(ctx, `
		SELECT pc.product_id, c.name, c.description
		FROM product_collections pc
		JOIN collections c ON c.id = pc.collection_id AND c.active = 1
		ORDER BY pc.product_id, c.name`,
		func(rows *sql.Rows) error {
			var id int64
			var ref CollectionRef
			if err := rows.Scan(&id, &ref.Name, &ref.Description); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Collections = append(records[i].Collections, ref)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying product collections: %w", err)
	}

	// Only promotions inside their validity window count for products.
	err = e.forEachRow(ctx, `
		SELECT pp.product_id, pr.name, pr.description, pr.discount_type,
		       pr.discount_value, pr.start_date, pr.end_date
		FROM promotion_products pp
		JOIN promotions pr ON pr.id = pp.promotion_id
		WHERE pr.active = 1 AND pr.start_date <= date('now') AND pr.end_date >= date('now')
		ORDER BY pp.product_id, pr.name`,
		func(rows *sql.Rows) error {
			var id int64
			var ref PromotionRef
			if err := rows.Scan(&id, &ref.Name, &ref.Description, &ref.DiscountType,
				&ref.DiscountValue, &ref.StartDate, &ref.EndDate); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Promotions = append(records[i].Promotions, ref)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying product promotions: %w", err)
	}

	err = e.forEachRow(ctx, `
		SELECT pp.product_id, l.name, pp.price
		FROM product_prices pp
		JOIN price_lists l ON l.id = pp.list_id AND l.active = 1
		ORDER BY pp.product_id, l.name`,
		func(rows *sql.Rows) error {
			var id int64
			var entry PriceEntry
			if err := rows.Scan(&id, &entry.List, &entry.Price); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].SpecialPrices = append(records[i].SpecialPrices, entry)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying special prices: %w", err)
	}

	return records, nil
}

// Promotions returns all active promotions with their applied products
// and collections.
func (e *Extractor) Promotions(ctx context.Context) ([]PromotionRecord, error) {
	rows, err := e.q.QueryContext(ctx, `
		SELECT id, name, description, discount_type, discount_value, start_date, end_date, image
		FROM promotions WHERE active = 1 ORDER BY start_date DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying promotions: %w", err)
	}
	defer rows.Close()

	var records []PromotionRecord
	index := make(map[int64]int)
	for rows.Next() {
		var r PromotionRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.DiscountType,
			&r.DiscountValue, &r.StartDate, &r.EndDate, &r.Image); err != nil {
			return nil, fmt.Errorf("scanning promotion: %w", err)
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = e.forEachRow(ctx, `
		SELECT pp.promotion_id, p.name, p.code, p.base_price, p.global_stock
		FROM promotion_products pp
		JOIN products p ON p.id = pp.product_id AND p.active = 1
		ORDER BY pp.promotion_id, p.name`,
		func(rows *sql.Rows) error {
			var id int64
			var ref ProductRef
			if err := rows.Scan(&id, &ref.Name, &ref.Code, &ref.Price, &ref.Stock); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Products = append(records[i].Products, ref)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying promotion products: %w", err)
	}

	err = e.forEachRow(ctx, `
		SELECT pc.promotion_id, c.name, c.description
		FROM promotion_collections pc
		JOIN collections c ON c.id = pc.collection_id AND c.active = 1
		ORDER BY pc.promotion_id, c.name`,
		func(rows *sql.Rows) error {
			var id int64
			var ref CollectionRef
			if err := rows.Scan(&id, &ref.Name, &ref.Description); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Collections = append(records[i].Collections, ref)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying promotion collections: %w", err)
	}

	return records, nil
}

// Collections returns all active collections with member products,
// associated active promotions and price statistics computed over the
// member products.
func (e *Extractor) Collections(ctx context.Context) ([]CollectionRecord, error) {
	rows, err := e.q.QueryContext(ctx, `
		SELECT id, name, description, image
		FROM collections WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying collections: %w", err)
	}
	defer rows.Close()

	var records []CollectionRecord
	index := make(map[int64]int)
	for rows.Next() {
		var r CollectionRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.Image); err != nil {
			return nil, fmt.Errorf("scanning collection: %w", err)
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = e.forEachRow(ctx, `
		SELECT pc.collection_id, p.name, p.code, p.base_price, p.global_stock, p.description
		FROM product_collections pc
		JOIN products p ON p.id = pc.product_id AND p.active = 1
		ORDER BY pc.collection_id, p.name`,
		func(rows *sql.Rows) error {
			var id int64
			var ref ProductRef
			if err := rows.Scan(&id, &ref.Name, &ref.Code, &ref.Price, &ref.Stock, &ref.Description); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Products = append(records[i].Products, ref)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying collection products: %w", err)
	}

	// Active promotions regardless of validity window, matching the
	// collection view of the catalog.
	err = e.forEachRow(ctx, `
		SELECT pc.collection_id, pr.name, pr.description, pr.discount_type,
		       pr.discount_value, pr.start_date, pr.end_date
		FROM promotion_collections pc
		JOIN promotions pr ON pr.id = pc.promotion_id AND pr.active = 1
		ORDER BY pc.collection_id, pr.name`,
		func(rows *sql.Rows) error {
			var id int64
			var ref PromotionRef
			if err := rows.Scan(&id, &ref.Name, &ref.Description, &ref.DiscountType,
				&ref.DiscountValue, &ref.StartDate, &ref.EndDate); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Promotions = append(records[i].Promotions, ref)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying collection promotions: %w", err)
	}

	for i := range records {
		computeCollectionStats(&records[i])
	}

	return records, nil
}

func computeCollectionStats(r *CollectionRecord) {
	if len(r.Products) == 0 {
		return
	}
	var sum float64
	r.MinPrice = r.Products[0].Price
	r.MaxPrice = r.Products[0].Price
	for _, p := range r.Products {
		r.TotalStock += p.Stock
		sum += p.Price
		if p.Price < r.MinPrice {
			r.MinPrice = p.Price
		}
		if p.Price > r.MaxPrice {
			r.MaxPrice = p.Price
		}
	}
	r.AvgPrice = sum / float64(len(r.Products))
}

// branchInventoryCap limits how many inventory lines a branch document
// carries, keeping embedding texts bounded for large branches.
const branchInventoryCap = 20

// Branches returns all active branches with their warehouses, top
// stocked inventory and available collections.
func (e *Extractor) Branches(ctx context.Context) ([]BranchRecord, error) {
	rows, err := e.q.QueryContext(ctx, `
		SELECT id, name, address FROM branches WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying branches: %w", err)
	}
	defer rows.Close()

	var records []BranchRecord
	index := make(map[int64]int)
	for rows.Next() {
		var r BranchRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Address); err != nil {
			return nil, fmt.Errorf("scanning branch: %w", err)
		}
		index[r.ID] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = e.forEachRow(ctx, `
		SELECT branch_id, name FROM warehouses WHERE active = 1 ORDER BY branch_id, name`,
		func(rows *sql.Rows) error {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Warehouses = append(records[i].Warehouses, name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying branch warehouses: %w", err)
	}

	seen := make(map[int64]map[string]bool)
	err = e.forEachRow(ctx, `
		SELECT w.branch_id, p.name, p.code, ws.quantity, p.base_price, w.name
		FROM warehouses w
		JOIN warehouse_stock ws ON ws.warehouse_id = w.id AND ws.quantity > 0
		JOIN products p ON p.id = ws.product_id AND p.active = 1
		WHERE w.active = 1
		ORDER BY w.branch_id, ws.quantity DESC, p.name`,
		func(rows *sql.Rows) error {
			var id int64
			var item InventoryItem
			if err := rows.Scan(&id, &item.Product, &item.Code, &item.Quantity, &item.Price, &item.Warehouse); err != nil {
				return err
			}
			i, ok := index[id]
			if !ok {
				return nil
			}
			if seen[id] == nil {
				seen[id] = make(map[string]bool)
			}
			if !seen[id][item.Code] {
				seen[id][item.Code] = true
				records[i].ProductCount++
			}
			if len(records[i].Inventory) < branchInventoryCap {
				records[i].Inventory = append(records[i].Inventory, item)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying branch inventory: %w", err)
	}

	err = e.forEachRow(ctx, `
		SELECT w.branch_id, COALESCE(SUM(ws.quantity), 0)
		FROM warehouses w
		JOIN warehouse_stock ws ON ws.warehouse_id = w.id
		WHERE w.active = 1
		GROUP BY w.branch_id`,
		func(rows *sql.Rows) error {
			var id int64
			var total int
			if err := rows.Scan(&id, &total); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].TotalStock = total
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying branch stock totals: %w", err)
	}

	err = e.forEachRow(ctx, `
		SELECT DISTINCT w.branch_id, c.name
		FROM warehouses w
		JOIN warehouse_stock ws ON ws.warehouse_id = w.id AND ws.quantity > 0
		JOIN products p ON p.id = ws.product_id AND p.active = 1
		JOIN product_collections pc ON pc.product_id = p.id
		JOIN collections c ON c.id = pc.collection_id AND c.active = 1
		WHERE w.active = 1
		ORDER BY w.branch_id, c.name`,
		func(rows *sql.Rows) error {
			var id int64
			var name string
			if err := rows.Scan(&id, &name); err != nil {
				return err
			}
			if i, ok := index[id]; ok {
				records[i].Collections = append(records[i].Collections, name)
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("querying branch collections: %w", err)
	}

	return records, nil
}

// ActiveProductNames returns the active product name -> id map used to
// match analyzer output against the catalog.
func (e *Extractor) ActiveProductNames(ctx context.Context) (map[string]int64, error) {
	rows, err := e.q.QueryContext(ctx, `
		SELECT id, name FROM products WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying product names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning product name: %w", err)
		}
		names[name] = id
	}
	return names, rows.Err()
}

// forEachRow runs a query and invokes scan for every row.
func (e *Extractor) forEachRow(ctx context.Context, query string, scan func(*sql.Rows) error) error {
	rows, err := e.q.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
