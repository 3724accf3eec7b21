package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type OrderRequest struct {
	UserID string             `json:"userId"`
	Items  []domain.OrderLine `json:"items"`
	Region domain.Region      `json:"region"`
}

// CreateOrder posts the order. Unlike other calls, any non-JSON answer is an
// error even on 2xx, and the body is surfaced verbatim.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*domain.Order, error) {
	query := url.Values{"region": []string{req.Region.String()}}

	var order domain.Order
	if err := c.do(ctx, "order.create", http.MethodPost, "/Order/Create", query, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
