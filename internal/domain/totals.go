package domain

import "github.com/shopspring/decimal"

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
}

// CategoryGroup aggregates the lines of one category for a discount query.
type CategoryGroup struct {
	CategoryID int64
	Quantity   int
	Subtotal   decimal.Decimal
}

// GroupByCategory groups items by category in order of first appearance.
// Items without a category are skipped; they never qualify for a discount.
func GroupByCategory(items []CartItem) []CategoryGroup {
	index := make(map[int64]int)
	var groups []CategoryGroup
	for _, item := range items {
		if item.CategoryID == nil {
			continue
		}
		id := *item.CategoryID
		i, ok := index[id]
		if !ok {
			i = len(groups)
			index[id] = i
			groups = append(groups, CategoryGroup{CategoryID: id, Subtotal: decimal.Zero})
		}
		groups[i].Quantity += item.Quantity
		groups[i].Subtotal = groups[i].Subtotal.Add(item.Subtotal())
	}
	return groups
}

// Subtotal sums price*quantity over items.
func Subtotal(items []CartItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// ComputeTotals is pure: final = subtotal + shipping - sum(discounts).
func ComputeTotals(items []CartItem, shipping decimal.Decimal, discounts map[int64]decimal.Decimal) Totals {
	discount := decimal.Zero
	for _, d := range discounts {
		discount = discount.Add(d)
	}
	subtotal := Subtotal(items)
	return Totals{
		Subtotal: subtotal,
		Shipping: shipping,
		Discount: discount,
		Final:    subtotal.Add(shipping).Sub(discount),
	}
}
