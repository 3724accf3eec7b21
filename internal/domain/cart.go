package domain

import (
	"github.com/shopspring/decimal"
)

// DefaultImageURL is shown for cart lines whose product record could not be fetched.
const DefaultImageURL = "/assets/default-product.png"

type CartItem struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"imageUrl"`
	CategoryID  *int64          `json:"categoryId"`
}

// Subtotal is price times quantity for the line
func (i CartItem) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Valid reports whether the line can be submitted as part of an order.
func (i CartItem) Valid() bool {
	return i.ProductID > 0 && i.Quantity > 0
}

// Cart is the session's view of the shopping cart. Items keep insertion order.
// FinalPrice is derived by ApplyTotals and never set directly.
type Cart struct {
	ID              int64           `json:"id,omitempty"`
	UserID          string          `json:"userId,omitempty"`
	Items           []CartItem      `json:"cartItems"`
	DeliveryCost    decimal.Decimal `json:"deliveryCost"`
	DiscountApplied decimal.Decimal `json:"discountApplied"`
	TotalPrice      decimal.Decimal `json:"totalPrice"`
	FinalPrice      decimal.Decimal `json:"finalPrice"`
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) indexOf(itemID int64) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

// Item returns the line with the given cart item id.
func (c *Cart) Item(itemID int64) (CartItem, bool) {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return CartItem{}, false
	}
	return c.Items[idx], true
}

// ItemByProduct returns the line holding the given product.
func (c *Cart) ItemByProduct(productID int64) (CartItem, bool) {
	for _, item := range c.Items {
		if item.ProductID == productID {
			return item, true
		}
	}
	return CartItem{}, false
}

// AddProduct increments the line holding product or appends a new line with quantity 1.
// lineID is used only when a new line is appended.
func (c *Cart) AddProduct(p Product, lineID int64) CartItem {
	for i := range c.Items {
		if c.Items[i].ProductID == p.ID {
			c.Items[i].Quantity++
			return c.Items[i]
		}
	}

	item := CartItem{
		ID:          lineID,
		ProductID:   p.ID,
		ProductName: p.Name,
		Price:       p.Price,
		Quantity:    1,
		ImageURL:    p.ImageURL,
	}
	if p.CategoryID > 0 {
		categoryID := p.CategoryID
		item.CategoryID = &categoryID
	}
	if item.ImageURL == "" {
		item.ImageURL = DefaultImageURL
	}
	c.Items = append(c.Items, item)
	return item
}

// RemoveItem drops the line with the given id. Unknown ids leave the cart unchanged.
func (c *Cart) RemoveItem(itemID int64) bool {
	idx := c.indexOf(itemID)
	if idx < 0 {
		return false
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return true
}

// SetQuantity replaces the quantity of a line in place. Quantities below 1 are rejected.
func (c *Cart) SetQuantity(itemID int64, quantity int) bool {
	if quantity < 1 {
		return false
	}
	idx := c.indexOf(itemID)
	if idx < 0 {
		return false
	}
	c.Items[idx].Quantity = quantity
	return true
}

// ApplyTotals copies computed totals onto the cart.
func (c *Cart) ApplyTotals(t Totals) {
	c.TotalPrice = t.Subtotal
	c.DeliveryCost = t.Shipping
	c.DiscountApplied = t.Discount
	c.FinalPrice = t.Final
}

// Totals returns the totals currently stored on the cart.
func (c *Cart) Totals() Totals {
	return Totals{
		Subtotal: c.TotalPrice,
		Shipping: c.DeliveryCost,
		Discount: c.DiscountApplied,
		Final:    c.FinalPrice,
	}
}

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	out := *c
	out.Items = make([]CartItem, len(c.Items))
	for i, item := range c.Items {
		if item.CategoryID != nil {
			id := *item.CategoryID
			item.CategoryID = &id
		}
		out.Items[i] = item
	}
	return &out
}

// Reset empties the cart and zeroes every total but keeps the server id.
func (c *Cart) Reset() {
	c.Items = nil
	c.ApplyTotals(ComputeTotals(nil, decimal.Zero, nil))
}
