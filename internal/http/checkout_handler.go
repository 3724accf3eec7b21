package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"go.uber.org/zap"
)

type SelectRegionRequest struct {
	Region int `json:"region"`
}

type PlaceOrderRequest struct {
	Region int `json:"region"`
}

type CheckoutResponse struct {
	Status  string `json:"status"`
	Region  int    `json:"region,omitempty"`
	OrderID string `json:"order_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

type OrderResponse struct {
	OrderID string `json:"order_id"`
}

func toCheckoutResponse(s domain.CheckoutState) CheckoutResponse {
	return CheckoutResponse{
		Status:  s.Status.String(),
		Region:  int(s.Region),
		OrderID: string(s.OrderID),
		Error:   s.Error,
	}
}

// GetCheckout handles GET /api/v1/checkout
func (h *Handler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toCheckoutResponse(h.cart(r).CheckoutState()))
}

// BeginCheckout handles POST /api/v1/checkout
func (h *Handler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	state, err := h.cart(r).BeginCheckout()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(state))
}

// SelectRegion handles POST /api/v1/checkout/region
func (h *Handler) SelectRegion(w http.ResponseWriter, r *http.Request) {
	var req SelectRegionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	state, err := h.cart(r).SelectRegion(domain.Region(req.Region))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(state))
}

// SubmitCheckout handles POST /api/v1/checkout/submit. A backend failure is
// reported through the FAILED state, not as an error status.
func (h *Handler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.withTimeout(r)
	defer cancel()

	state, err := h.cart(r).SubmitCheckout(ctx)
	if err != nil && state.Status != domain.CheckoutStatusFailed {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(state))
}

// AcknowledgeCheckout handles POST /api/v1/checkout/ack
func (h *Handler) AcknowledgeCheckout(w http.ResponseWriter, r *http.Request) {
	state, err := h.cart(r).AcknowledgeCheckout()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(state))
}

// CancelCheckout handles POST /api/v1/checkout/cancel
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	state, err := h.cart(r).CancelCheckout()
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCheckoutResponse(state))
}

// PlaceOrder handles POST /api/v1/orders, a one-shot checkout.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := h.withTimeout(r)
	defer cancel()

	orderID, err := h.cart(r).Checkout(ctx, domain.Region(req.Region))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, OrderResponse{OrderID: string(orderID)})
}

// CheckoutEvents handles GET /api/v1/events/checkout. It streams the user's
// completed checkouts as server-sent events until the client goes away.
func (h *Handler) CheckoutEvents(w http.ResponseWriter, r *http.Request) {
	userID := getUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "login required")
		return
	}
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.log.Warn("could not lift write deadline for event stream", zap.Error(err))
	}

	completed := make(chan events.CheckoutCompleted, 8)
	unsubscribe := h.bus.Subscribe(func(e events.CheckoutCompleted) {
		if e.UserID != userID {
			return
		}
		select {
		case completed <- e:
		default:
			h.log.Warn("dropping checkout event for slow stream", zap.String("checkout_id", e.CheckoutID))
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.log.Warn("event stream not flushable", zap.Error(err))
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-completed:
			data, err := json.Marshal(e)
			if err != nil {
				h.log.Error("failed to encode checkout event", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", events.TypeCheckoutCompleted, data)
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
