package service

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/api"
)

var (
	ErrIllegalTransition = errors.New("illegal transition of checkout status")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrLoginRequired     = errors.New("login required")
	ErrCheckoutPending   = errors.New("line belongs to an unfinished checkout, retry the checkout first")
)

// ValidationError is a local rejection raised before any network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// UserMessage is the text to show for err. Server explanations and
// non-JSON bodies are passed through unchanged.
func UserMessage(err error) string {
	var malformed *api.MalformedResponseError
	if errors.As(err, &malformed) {
		return malformed.Error()
	}
	var status *api.StatusError
	if errors.As(err, &status) && status.Message != "" {
		return status.Message
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return validation.Message
	}
	return err.Error()
}
