package http

import (
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/service"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type IdentityResponse struct {
	UserID        string `json:"user_id,omitempty"`
	UserName      string `json:"user_name,omitempty"`
	Authenticated bool   `json:"authenticated"`
}

type ToggleFavoriteRequest struct {
	ProductID int64 `json:"product_id"`
}

type FavoritesResponse struct {
	Items []domain.FavoriteItem `json:"items"`
	Added *bool                 `json:"added,omitempty"`
}

func toFavoritesResponse(favs domain.Favorites) FavoritesResponse {
	if favs == nil {
		favs = domain.Favorites{}
	}
	return FavoritesResponse{Items: favs}
}

// Login handles POST /api/v1/account/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, err := h.storefront.Accounts(getSessionID(r.Context())).Login(ctx, req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, IdentityResponse{
		UserID:        id.UserID,
		UserName:      id.UserName,
		Authenticated: true,
	})
}

// Register handles POST /api/v1/account/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if !decodeJSON(w, r, &user) {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.storefront.Accounts(getSessionID(r.Context())).Register(ctx, user); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Logout handles POST /api/v1/account/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.storefront.Logout(ctx, getSessionID(r.Context()), getUserID(r.Context())); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WhoAmI handles GET /api/v1/account
func (h *Handler) WhoAmI(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	id, err := h.storefront.Accounts(getSessionID(r.Context())).Identity(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, IdentityResponse{
		UserID:        id.UserID,
		UserName:      id.UserName,
		Authenticated: id.Authenticated(),
	})
}

// GetProfile handles GET /api/v1/account/profile
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	user, err := h.storefront.Accounts(getSessionID(r.Context())).Profile(ctx, getUserID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /api/v1/account/profile
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if !decodeJSON(w, r, &user) {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	if err := h.storefront.Accounts(getSessionID(r.Context())).UpdateProfile(ctx, getUserID(r.Context()), user); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Tracking handles GET /api/v1/orders/tracking
func (h *Handler) Tracking(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	tracking, err := h.storefront.Tracking(ctx, getUserID(r.Context()))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, tracking)
}

// ListFavorites handles GET /api/v1/favorites
func (h *Handler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	favs, err := h.favorites(r).List(ctx)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFavoritesResponse(favs))
}

// ToggleFavorite handles POST /api/v1/favorites
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var req ToggleFavoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if getUserID(r.Context()) == "" {
		handleServiceError(w, service.ErrLoginRequired)
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	product, err := h.storefront.Catalog().Product(ctx, req.ProductID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	favs, added, err := h.favorites(r).Toggle(ctx, product.Favorite())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	resp := toFavoritesResponse(favs)
	resp.Added = &added
	respondJSON(w, http.StatusOK, resp)
}

// RemoveFavorite handles DELETE /api/v1/favorites/{product_id}
func (h *Handler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	productID, ok := positiveIDParam(w, r, "product_id")
	if !ok {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	favs, err := h.favorites(r).Remove(ctx, productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toFavoritesResponse(favs))
}
