package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CategoryID  int64           `json:"categoryId"`
	ImageURL    string          `json:"imageUrl"`
	Description string          `json:"description"`
}

// Available reports whether the product can be added to a cart.
func (p Product) Available() bool {
	return p.Stock > 0
}

// Favorite projects the product into a favorites entry.
func (p Product) Favorite() FavoriteItem {
	return FavoriteItem{
		ID:       p.ID,
		Name:     p.Name,
		Price:    p.Price,
		ImageURL: p.ImageURL,
	}
}

type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// ProductDetails is a product together with the name of its category.
type ProductDetails struct {
	Product
	CategoryName string `json:"categoryName"`
}

type Tracking struct {
	Status                string `json:"status"`
	EstimatedDeliveryTime string `json:"estimatedDeliveryTime"`
}
