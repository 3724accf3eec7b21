package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/saga"
)

const TypeCheckoutCompleted = "CheckoutCompleted"

type CheckoutCompleted struct {
	CheckoutID  string             `json:"checkout_id"`
	UserID      string             `json:"user_id"`
	OrderID     domain.ID          `json:"order_id"`
	Region      domain.Region      `json:"region"`
	Items       []domain.OrderLine `json:"items"`
	CompletedAt time.Time          `json:"completed_at"`
}

func NewCheckoutCompleted(c *saga.Checkout, completedAt time.Time) CheckoutCompleted {
	items := make([]domain.OrderLine, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, domain.OrderLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return CheckoutCompleted{
		CheckoutID:  c.ID,
		UserID:      c.UserID,
		OrderID:     c.OrderID,
		Region:      c.Region,
		Items:       items,
		CompletedAt: completedAt,
	}
}

func (e CheckoutCompleted) Marshal() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checkout payload: %w", err)
	}
	return payload, nil
}
