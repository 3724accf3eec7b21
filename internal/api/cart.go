package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type addItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type updateItemRequest struct {
	UserID    string `json:"userId"`
	ProductID int64  `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func deliveryQuery(region domain.Region) url.Values {
	return url.Values{"delivery": []string{region.String()}}
}

// GetCartByUser returns ErrCartNotFound when the user has no server cart yet.
func (c *Client) GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := c.do(ctx, "cart.get", http.MethodGet, "/Cart/GetByUser/"+url.PathEscape(userID), nil, nil, &cart)
	if IsNotFound(err) {
		return nil, ErrCartNotFound
	}
	if err != nil {
		return nil, err
	}
	if cart.ID == 0 {
		return nil, ErrCartNotFound
	}
	return &cart, nil
}

func (c *Client) CreateCart(ctx context.Context, userID string, region domain.Region) (*domain.Cart, error) {
	var cart domain.Cart
	path := "/Cart/Create/" + url.PathEscape(userID)
	if err := c.do(ctx, "cart.create", http.MethodPost, path, deliveryQuery(region), nil, &cart); err != nil {
		return nil, err
	}
	if cart.ID == 0 {
		return nil, fmt.Errorf("%w: created cart has no id", ErrMalformedResponse)
	}
	return &cart, nil
}

// AddItem returns the server cart after the add. Backends that answer with a
// bare acknowledgement yield a cart without items.
func (c *Client) AddItem(ctx context.Context, cartID int64, region domain.Region, productID int64, quantity int) (*domain.Cart, error) {
	var cart domain.Cart
	path := fmt.Sprintf("/Cart/AddItem/%d", cartID)
	body := addItemRequest{ProductID: productID, Quantity: quantity}
	if err := c.do(ctx, "cart.add_item", http.MethodPost, path, deliveryQuery(region), body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (c *Client) RemoveItem(ctx context.Context, cartID, cartItemID int64) error {
	path := fmt.Sprintf("/Cart/RemoveItem/%d/%d", cartID, cartItemID)
	return c.do(ctx, "cart.remove_item", http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) UpdateItem(ctx context.Context, userID string, productID int64, quantity int) error {
	body := updateItemRequest{UserID: userID, ProductID: productID, Quantity: quantity}
	return c.do(ctx, "cart.update_item", http.MethodPut, "/Cart/Update", nil, body, nil)
}

func (c *Client) Tracking(ctx context.Context, cartID int64) (*domain.Tracking, error) {
	var tracking domain.Tracking
	path := fmt.Sprintf("/Cart/%d/tracking", cartID)
	if err := c.do(ctx, "cart.tracking", http.MethodGet, path, nil, nil, &tracking); err != nil {
		return nil, err
	}
	return &tracking, nil
}
