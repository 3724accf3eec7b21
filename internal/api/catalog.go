package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

func (c *Client) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	if err := c.do(ctx, "product.list", http.MethodGet, "/Product", nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	if err := c.do(ctx, "product.get", http.MethodGet, fmt.Sprintf("/Product/%d", id), nil, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) RecommendedProducts(ctx context.Context, userID string, categoryID int64) ([]domain.Product, error) {
	var products []domain.Product
	path := fmt.Sprintf("/Product/Recommended/%s/%d", url.PathEscape(userID), categoryID)
	if err := c.do(ctx, "product.recommended", http.MethodGet, path, nil, nil, &products); err != nil {
		return nil, err
	}
	return products, nil
}

func (c *Client) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var category domain.Category
	if err := c.do(ctx, "category.get", http.MethodGet, fmt.Sprintf("/Category/GetById/%d", id), nil, nil, &category); err != nil {
		return nil, err
	}
	return &category, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	if err := c.do(ctx, "category.list", http.MethodGet, "/Category/AllCategories", nil, nil, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}
