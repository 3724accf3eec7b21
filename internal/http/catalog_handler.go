package http

import (
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/service"
)

// ListProducts handles GET /api/v1/products?category_id=&search=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	var filter service.ProductFilter
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_category_id", "category_id must be a positive integer")
			return
		}
		filter.CategoryID = id
	}
	filter.Search = r.URL.Query().Get("search")

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	products, err := h.storefront.Catalog().ListProducts(ctx, filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, products)
}

// GetProduct handles GET /api/v1/products/{product_id}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := positiveIDParam(w, r, "product_id")
	if !ok {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	details, err := h.storefront.Catalog().ProductDetails(ctx, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, details)
}

// SimilarProducts handles GET /api/v1/products/{product_id}/similar
func (h *Handler) SimilarProducts(w http.ResponseWriter, r *http.Request) {
	productID, ok := positiveIDParam(w, r, "product_id")
	if !ok {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	catalog := h.storefront.Catalog()
	product, err := catalog.Product(ctx, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	similar, err := catalog.SimilarProducts(ctx, getUserID(r.Context()), product.CategoryID, product.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, similar)
}

// ListCategories handles GET /api/v1/categories
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	categories, err := h.storefront.Catalog().Categories(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, categories)
}
