package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleServiceError converts service and backend errors to HTTP answers.
func handleServiceError(w http.ResponseWriter, err error) {
	var (
		validation *service.ValidationError
		malformed  *api.MalformedResponseError
		status     *api.StatusError
	)

	switch {
	case errors.As(err, &validation):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   validation.Message,
			Code:    "validation_failed",
			Details: validation.Field,
		})
	case errors.Is(err, service.ErrLoginRequired):
		respondError(w, http.StatusUnauthorized, "unauthorized", "login required")
	case errors.Is(err, service.ErrOutOfStock):
		respondError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, service.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	case errors.Is(err, service.ErrCheckoutPending):
		respondError(w, http.StatusConflict, "checkout_pending", err.Error())
	case errors.Is(err, api.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "not_found", "cart not found")
	case errors.As(err, &malformed):
		respondJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   malformed.Error(),
			Code:    "malformed_response",
			Details: malformed.ContentType,
		})
	case errors.As(err, &status):
		switch {
		case status.StatusCode == http.StatusNotFound:
			respondError(w, http.StatusNotFound, "not_found", service.UserMessage(err))
		case status.StatusCode == http.StatusUnauthorized || status.StatusCode == http.StatusForbidden:
			respondError(w, status.StatusCode, "unauthenticated", service.UserMessage(err))
		case status.IsBusinessRejection():
			respondError(w, http.StatusUnprocessableEntity, "rejected", service.UserMessage(err))
		default:
			respondError(w, http.StatusBadGateway, "backend_error", service.UserMessage(err))
		}
	case errors.Is(err, api.ErrTransport):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "backend unavailable, try again later")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

// positiveIDParam reads a positive integer URL parameter and answers 400 otherwise.
func positiveIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}
