package http

import (
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func (h *Handler) favorites(r *http.Request) *service.Favorites {
	return h.storefront.Favorites(getSessionID(r.Context()), getUserID(r.Context()))
}

// NewRouter mounts the local API. metricsHandler may be nil.
func NewRouter(h *Handler, metricsHandler http.Handler, maxBodyBytes int64, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(h.storefront, h.trustUserHeader, log))

		// the event stream outlives the request timeout
		r.Get("/events/checkout", h.CheckoutEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(h.timeout))
			r.Use(middleware.Compress(5))

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.GetCart)
				r.Post("/totals", h.RecomputeTotals)
				r.Post("/items", h.AddItem)
				r.Put("/items/{item_id}", h.UpdateQuantity)
				r.Delete("/items/{item_id}", h.RemoveItem)
			})

			r.Route("/checkout", func(r chi.Router) {
				r.Get("/", h.GetCheckout)
				r.Post("/", h.BeginCheckout)
				r.Post("/region", h.SelectRegion)
				r.Post("/submit", h.SubmitCheckout)
				r.Post("/ack", h.AcknowledgeCheckout)
				r.Post("/cancel", h.CancelCheckout)
			})

			r.Post("/orders", h.PlaceOrder)
			r.Get("/orders/tracking", h.Tracking)

			r.Get("/products", h.ListProducts)
			r.Get("/products/{product_id}", h.GetProduct)
			r.Get("/products/{product_id}/similar", h.SimilarProducts)
			r.Get("/categories", h.ListCategories)

			r.Route("/favorites", func(r chi.Router) {
				r.Get("/", h.ListFavorites)
				r.Post("/", h.ToggleFavorite)
				r.Delete("/{product_id}", h.RemoveFavorite)
			})

			r.Route("/account", func(r chi.Router) {
				r.Get("/", h.WhoAmI)
				r.Post("/login", h.Login)
				r.Post("/register", h.Register)
				r.Post("/logout", h.Logout)
				r.Get("/profile", h.GetProfile)
				r.Put("/profile", h.UpdateProfile)
			})
		})
	})

	return r
}
