package catalog

import (
	"fmt"
	"strings"
)

// noData fills sections whose aggregate came back empty, so every
// document keeps the same section structure.
const noData = "Sin datos registrados"

const descriptionLimit = 50

// RenderProduct produces the embedding text for a product. Output is
// deterministic for a given record.
func RenderProduct(r ProductRecord) string {
	var b strings.Builder
	b.WriteString("TIPO: PRODUCTO\n")
	fmt.Fprintf(&b, "NOMBRE: %s\n", r.Name)
	fmt.Fprintf(&b, "DESCRIPCIÓN: %s\n", orNoData(r.Description))
	fmt.Fprintf(&b, "CÓDIGO: %s\n", r.Code)
	fmt.Fprintf(&b, "PRECIO BASE: $%.2f\n", r.BasePrice)
	fmt.Fprintf(&b, "STOCK GLOBAL: %d unidades\n", r.GlobalStock)

	b.WriteString("UBICACIONES Y STOCK:\n")
	if len(r.Locations) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, loc := range r.Locations {
		fmt.Fprintf(&b, "- %s (%s) - Almacén: %s - Stock: %d unidades\n",
			loc.Branch, loc.Address, loc.Warehouse, loc.Quantity)
	}

	b.WriteString("COLECCIONES:\n")
	if len(r.Collections) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, c := range r.Collections {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, orNoData(c.Description))
	}

	b.WriteString("PROMOCIONES VIGENTES:\n")
	if len(r.Promotions) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, p := range r.Promotions {
		fmt.Fprintf(&b, "- %s: %s (Vigente: %s a %s)\n",
			p.Name, formatDiscount(p.DiscountType, p.DiscountValue), p.StartDate, p.EndDate)
	}

	b.WriteString("PRECIOS ESPECIALES:\n")
	if len(r.SpecialPrices) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, sp := range r.SpecialPrices {
		fmt.Fprintf(&b, "- %s: $%.2f\n", sp.List, sp.Price)
	}

	if r.GlobalStock > 0 {
		b.WriteString("DISPONIBILIDAD: Disponible\n")
	} else {
		b.WriteString("DISPONIBILIDAD: Sin stock\n")
	}
	return b.String()
}

// RenderPromotion produces the embedding text for a promotion.
func RenderPromotion(r PromotionRecord) string {
	var b strings.Builder
	b.WriteString("TIPO: PROMOCIÓN\n")
	fmt.Fprintf(&b, "NOMBRE: %s\n", r.Name)
	fmt.Fprintf(&b, "DESCRIPCIÓN: %s\n", orNoData(r.Description))
	fmt.Fprintf(&b, "DESCUENTO: %s\n", formatDiscount(r.DiscountType, r.DiscountValue))
	fmt.Fprintf(&b, "VIGENCIA: %s a %s\n", r.StartDate, r.EndDate)

	b.WriteString("PRODUCTOS EN PROMOCIÓN:\n")
	if len(r.Products) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, p := range r.Products {
		fmt.Fprintf(&b, "- %s (%s): $%.2f - Stock: %d\n", p.Name, p.Code, p.Price, p.Stock)
	}

	b.WriteString("COLECCIONES EN PROMOCIÓN:\n")
	if len(r.Collections) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, c := range r.Collections {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, orNoData(c.Description))
	}
	return b.String()
}

// RenderCollection produces the embedding text for a collection.
func RenderCollection(r CollectionRecord) string {
	var b strings.Builder
	b.WriteString("TIPO: COLECCIÓN\n")
	fmt.Fprintf(&b, "NOMBRE: %s\n", r.Name)
	fmt.Fprintf(&b, "DESCRIPCIÓN: %s\n", orNoData(r.Description))

	b.WriteString("PRODUCTOS:\n")
	if len(r.Products) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, p := range r.Products {
		fmt.Fprintf(&b, "- %s (%s): $%.2f - Stock: %d - %s\n",
			p.Name, p.Code, p.Price, p.Stock, truncate(orNoData(p.Description), descriptionLimit))
	}

	b.WriteString("PROMOCIONES ASOCIADAS:\n")
	if len(r.Promotions) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, p := range r.Promotions {
		fmt.Fprintf(&b, "- %s: %s (Vigente: %s a %s)\n",
			p.Name, formatDiscount(p.DiscountType, p.DiscountValue), p.StartDate, p.EndDate)
	}

	b.WriteString("ESTADÍSTICAS:\n")
	fmt.Fprintf(&b, "- Total de productos: %d\n", len(r.Products))
	fmt.Fprintf(&b, "- Stock total: %d unidades\n", r.TotalStock)
	fmt.Fprintf(&b, "- Precio promedio: $%.2f\n", r.AvgPrice)
	fmt.Fprintf(&b, "- Rango de precios: $%.2f - $%.2f\n", r.MinPrice, r.MaxPrice)
	return b.String()
}

// RenderBranch produces the embedding text for a branch.
func RenderBranch(r BranchRecord) string {
	var b strings.Builder
	b.WriteString("TIPO: SUCURSAL\n")
	fmt.Fprintf(&b, "NOMBRE: %s\n", r.Name)
	fmt.Fprintf(&b, "DIRECCIÓN: %s\n", orNoData(r.Address))

	b.WriteString("ALMACENES:\n")
	if len(r.Warehouses) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, w := range r.Warehouses {
		fmt.Fprintf(&b, "- %s\n", w)
	}

	b.WriteString("INVENTARIO DESTACADO:\n")
	if len(r.Inventory) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, item := range r.Inventory {
		fmt.Fprintf(&b, "- %s (%s): %d unidades - $%.2f - Almacén: %s\n",
			item.Product, item.Code, item.Quantity, item.Price, item.Warehouse)
	}

	b.WriteString("COLECCIONES DISPONIBLES:\n")
	if len(r.Collections) == 0 {
		b.WriteString(noData + "\n")
	}
	for _, c := range r.Collections {
		fmt.Fprintf(&b, "- %s\n", c)
	}

	b.WriteString("ESTADÍSTICAS:\n")
	fmt.Fprintf(&b, "- Productos distintos: %d\n", r.ProductCount)
	fmt.Fprintf(&b, "- Stock total: %d unidades\n", r.TotalStock)
	return b.String()
}

// formatDiscount renders a discount value, percentage or flat amount.
func formatDiscount(discountType string, value float64) string {
	if discountType == "porcentaje" {
		return fmt.Sprintf("%g%%", value)
	}
	return fmt.Sprintf("%.2f pesos", value)
}

func orNoData(s string) string {
	if strings.TrimSpace(s) == "" {
		return noData
	}
	return s
}

// truncate limits a string to n runes, appending an ellipsis when cut.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
