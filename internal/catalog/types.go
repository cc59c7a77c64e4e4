package catalog

// EntityType tags the four catalog entity kinds that feed the
// knowledge corpus.
type EntityType string

const (
	TypeProduct    EntityType = "product"
	TypePromotion  EntityType = "promotion"
	TypeCollection EntityType = "collection"
	TypeBranch     EntityType = "branch"
)

// EntityTypes lists all corpus entity types in rebuild order.
var EntityTypes = []EntityType{TypeProduct, TypePromotion, TypeCollection, TypeBranch}

// StockLocation is one warehouse holding stock of a product, with its
// parent branch.
type StockLocation struct {
	Branch    string
	Address   string
	Warehouse string
	Quantity  int
}

// CollectionRef is a lightweight reference to a collection.
type CollectionRef struct {
	Name        string
	Description string
}

// PromotionRef is a lightweight reference to a promotion and its
// discount parameters.
type PromotionRef struct {
	Name          string
	Description   string
	DiscountType  string
	DiscountValue float64
	StartDate     string
	EndDate       string
}

// ProductRef is a lightweight reference to a product inside another
// entity's aggregate.
type ProductRef struct {
	Name        string
	Code        string
	Price       float64
	Stock       int
	Description string
}

// PriceEntry is a special price from a named price list.
type PriceEntry struct {
	List  string
	Price float64
}

// InventoryItem is one stocked product inside a branch warehouse.
type InventoryItem struct {
	Product   string
	Code      string
	Quantity  int
	Price     float64
	Warehouse string
}

// ProductRecord is a product with all its joined relationships,
// denormalized for rendering.
type ProductRecord struct {
	ID            int64
	Name          string
	Description   string
	Code          string
	BasePrice     float64
	GlobalStock   int
	Image         string
	Locations     []StockLocation
	Collections   []CollectionRef
	Promotions    []PromotionRef
	SpecialPrices []PriceEntry
}

// PromotionRecord is a promotion with its applied products and
// collections.
type PromotionRecord struct {
	ID            int64
	Name          string
	Description   string
	DiscountType  string
	DiscountValue float64
	StartDate     string
	EndDate       string
	Image         string
	Products      []ProductRef
	Collections   []CollectionRef
}

// CollectionRecord is a collection with its products, promotions and
// computed price statistics.
type CollectionRecord struct {
	ID          int64
	Name        string
	Description string
	Image       string
	Products    []ProductRef
	Promotions  []PromotionRef
	TotalStock  int
	AvgPrice    float64
	MinPrice    float64
	MaxPrice    float64
}

// BranchRecord is a branch with its warehouses and top inventory.
type BranchRecord struct {
	ID           int64
	Name         string
	Address      string
	Warehouses   []string
	Inventory    []InventoryItem
	ProductCount int
	TotalStock   int
	Collections  []string
}
