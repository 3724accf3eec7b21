package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Handler serves the storefront's local API on top of service.Storefront.
type Handler struct {
	storefront      *service.Storefront
	bus             *events.Bus
	timeout         time.Duration
	trustUserHeader bool
	log             *zap.Logger
}

func NewHandler(storefront *service.Storefront, bus *events.Bus, timeout time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		storefront:      storefront,
		bus:             bus,
		timeout:         timeout,
		trustUserHeader: true,
		log:             log,
	}
}

// TrustUserHeader sets whether X-User-ID may override the identity stored for
// the session. The header is not authenticated; turn it off unless a gateway
// in front of the storefront sets it.
func (h *Handler) TrustUserHeader(trust bool) *Handler {
	h.trustUserHeader = trust
	return h
}

func (h *Handler) withTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

func (h *Handler) cart(r *http.Request) *service.CartManager {
	return h.storefront.Cart(getSessionID(r.Context()), getUserID(r.Context()))
}

// Request/Response DTOs

type AddItemRequest struct {
	ProductID int64 `json:"product_id"`
	Region    int   `json:"region"`
}

type UpdateQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type CartItemResponse struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	ImageURL    string          `json:"image_url"`
	CategoryID  *int64          `json:"category_id,omitempty"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type CartResponse struct {
	CartID        int64              `json:"cart_id,omitempty"`
	Items         []CartItemResponse `json:"items"`
	TotalItems    int                `json:"total_items"`
	DeliveryCost  decimal.Decimal    `json:"delivery_cost"`
	Discount      decimal.Decimal    `json:"discount"`
	TotalPrice    decimal.Decimal    `json:"total_price"`
	FinalPrice    decimal.Decimal    `json:"final_price"`
	LoginRequired bool               `json:"login_required"`
}

type TotalsResponse struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Discount decimal.Decimal `json:"discount"`
	Final    decimal.Decimal `json:"final"`
}

func toCartResponse(cart *domain.Cart, synced bool) CartResponse {
	resp := CartResponse{
		CartID:        cart.ID,
		Items:         make([]CartItemResponse, 0, len(cart.Items)),
		DeliveryCost:  cart.DeliveryCost,
		Discount:      cart.DiscountApplied,
		TotalPrice:    cart.TotalPrice,
		FinalPrice:    cart.FinalPrice,
		LoginRequired: !synced,
	}
	for _, item := range cart.Items {
		resp.Items = append(resp.Items, CartItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			ImageURL:    item.ImageURL,
			CategoryID:  item.CategoryID,
			Subtotal:    item.Subtotal(),
		})
		resp.TotalItems += item.Quantity
	}
	return resp
}

// GetCart handles GET /api/v1/cart
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	m := h.cart(r)
	cart, err := m.Load(ctx)
	if err != nil {
		// a failed load still leaves the last known cart in place
		h.log.Warn("cart load failed", zap.String("session_id", getSessionID(r.Context())), zap.Error(err))
		if cart == nil {
			handleServiceError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart, m.Synced()))
}

// AddItem handles POST /api/v1/cart/items
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	product, err := h.storefront.Catalog().Product(ctx, req.ProductID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	m := h.cart(r)
	cart, err := m.AddItem(ctx, *product, domain.Region(req.Region))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toCartResponse(cart, m.Synced()))
}

// UpdateQuantity handles PUT /api/v1/cart/items/{item_id}
func (h *Handler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID, ok := positiveIDParam(w, r, "item_id")
	if !ok {
		return
	}
	var req UpdateQuantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	m := h.cart(r)
	cart, err := m.UpdateQuantity(ctx, itemID, req.Quantity)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart, m.Synced()))
}

// RemoveItem handles DELETE /api/v1/cart/items/{item_id}
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, ok := positiveIDParam(w, r, "item_id")
	if !ok {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	m := h.cart(r)
	cart, err := m.RemoveItem(ctx, itemID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCartResponse(cart, m.Synced()))
}

// RecomputeTotals handles POST /api/v1/cart/totals
func (h *Handler) RecomputeTotals(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	t := h.cart(r).RecomputeTotals(ctx)
	respondJSON(w, http.StatusOK, TotalsResponse{
		Subtotal: t.Subtotal,
		Shipping: t.Shipping,
		Discount: t.Discount,
		Final:    t.Final,
	})
}
