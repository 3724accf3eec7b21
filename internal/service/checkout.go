package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/saga"
	"go.uber.org/zap"
)

func (m *CartManager) CheckoutState() domain.CheckoutState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkout
}

func (m *CartManager) transition(to domain.CheckoutStatus, update func(*domain.CheckoutState)) (domain.CheckoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := m.checkout.Status
	if !domain.CanTransitionTo(from, to) {
		return m.checkout, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	m.checkout.Status = to
	if update != nil {
		update(&m.checkout)
	}
	return m.checkout, nil
}

// BeginCheckout opens region selection. After a failure the previous region is kept.
func (m *CartManager) BeginCheckout() (domain.CheckoutState, error) {
	if state := m.CheckoutState(); state.Status == domain.CheckoutStatusRegionSelection {
		return state, nil
	}
	return m.transition(domain.CheckoutStatusRegionSelection, func(s *domain.CheckoutState) {
		if !s.Region.Valid() {
			s.Region = m.defaultRegion
		}
		s.OrderID = ""
		s.Error = ""
	})
}

func (m *CartManager) SelectRegion(region domain.Region) (domain.CheckoutState, error) {
	if !region.Valid() {
		return m.CheckoutState(), invalid("region", "select a delivery region")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.checkout.Status != domain.CheckoutStatusRegionSelection {
		return m.checkout, fmt.Errorf("%w: region can only change during region selection", ErrIllegalTransition)
	}
	m.checkout.Region = region
	return m.checkout, nil
}

// SubmitCheckout places the order for the selected region. Validation
// failures leave the flow in region selection; backend failures move it to
// Failed with a message for the user.
func (m *CartManager) SubmitCheckout(ctx context.Context) (domain.CheckoutState, error) {
	m.op.Lock()
	defer m.op.Unlock()
	m.hydrate(ctx)

	state := m.CheckoutState()
	if state.Status != domain.CheckoutStatusRegionSelection {
		return state, fmt.Errorf("%w: submit from %s", ErrIllegalTransition, state.Status)
	}
	if err := m.validateCheckout(m.Cart(), state.Region); err != nil {
		return state, err
	}
	if _, err := m.transition(domain.CheckoutStatusSubmitting, nil); err != nil {
		return state, err
	}

	orderID, err := m.checkoutLocked(ctx, state.Region)
	if err != nil {
		m.metrics.CheckoutOutcome("failed")
		failed, _ := m.transition(domain.CheckoutStatusFailed, func(s *domain.CheckoutState) {
			s.Error = UserMessage(err)
		})
		return failed, err
	}

	m.metrics.CheckoutOutcome("succeeded")
	return m.transition(domain.CheckoutStatusSucceeded, func(s *domain.CheckoutState) {
		s.OrderID = orderID
		s.Error = ""
	})
}

// AcknowledgeCheckout returns a finished checkout to Idle.
func (m *CartManager) AcknowledgeCheckout() (domain.CheckoutState, error) {
	if state := m.CheckoutState(); !state.Status.IsTerminal() {
		return state, fmt.Errorf("%w: nothing to acknowledge in %s", ErrIllegalTransition, state.Status)
	}
	return m.transition(domain.CheckoutStatusIdle, func(s *domain.CheckoutState) {
		s.OrderID = ""
		s.Error = ""
	})
}

// CancelCheckout leaves region selection or a failed checkout.
func (m *CartManager) CancelCheckout() (domain.CheckoutState, error) {
	if m.CheckoutState().Status == domain.CheckoutStatusSucceeded {
		return m.CheckoutState(), fmt.Errorf("%w: acknowledge a completed checkout instead", ErrIllegalTransition)
	}
	return m.transition(domain.CheckoutStatusIdle, func(s *domain.CheckoutState) {
		s.Error = ""
	})
}

// Checkout places the order for the current cart without going through the
// state machine. Nothing is sent when validation fails.
func (m *CartManager) Checkout(ctx context.Context, region domain.Region) (domain.ID, error) {
	m.op.Lock()
	defer m.op.Unlock()
	m.hydrate(ctx)

	m.mu.RLock()
	err := m.validateCheckout(m.cart, region)
	m.mu.RUnlock()
	if err != nil {
		return "", err
	}

	orderID, err := m.checkoutLocked(ctx, region)
	if err != nil {
		m.metrics.CheckoutOutcome("failed")
		return "", err
	}
	m.metrics.CheckoutOutcome("succeeded")
	return orderID, nil
}

func (m *CartManager) validateCheckout(cart *domain.Cart, region domain.Region) error {
	if !m.Synced() {
		return ErrLoginRequired
	}
	if cart.IsEmpty() {
		return invalid("cart", "cart is empty, nothing to checkout")
	}
	for _, item := range cart.Items {
		if !item.Valid() {
			return invalid("items", fmt.Sprintf("invalid line %d: product %d quantity %d", item.ID, item.ProductID, item.Quantity))
		}
	}
	if !region.Valid() {
		return invalid("region", "select a delivery region")
	}
	return nil
}

// checkoutLocked runs the order saga: create the order once, delete every
// server line, then record completion. Each step is journaled so a retry
// after a partial failure resumes with the remaining deletes. Caller holds op.
func (m *CartManager) checkoutLocked(ctx context.Context, region domain.Region) (domain.ID, error) {
	log := logger.WithContext(ctx, m.log).With(zap.String("user_id", m.userID))

	c, err := m.journal.Pending(ctx, m.userID)
	switch {
	case errors.Is(err, saga.ErrNoPending):
		c, err = m.placeOrder(ctx, m.Cart(), region)
		if err != nil {
			return "", err
		}
		log.Info("order created", zap.String("checkout_id", c.ID), zap.String("order_id", string(c.OrderID)))
	case err != nil:
		return "", fmt.Errorf("read checkout journal: %w", err)
	default:
		log.Info("resuming checkout",
			zap.String("checkout_id", c.ID), zap.Int("remaining_lines", len(c.Remaining)))
	}

	for _, line := range c.Remaining {
		err := m.backend.RemoveItem(ctx, c.CartID, line.ItemID)
		if err != nil && !api.IsNotFound(err) {
			return "", fmt.Errorf("clear cart line %d: %w", line.ItemID, err)
		}
		if err := m.journal.MarkDeleted(ctx, c.ID, line.ItemID); err != nil {
			return "", err
		}
	}

	event := events.NewCheckoutCompleted(c, m.now())
	payload, err := event.Marshal()
	if err != nil {
		return "", err
	}
	err = m.journal.Complete(ctx, c.ID, events.TypeCheckoutCompleted, payload)
	switch {
	case errors.Is(err, saga.ErrAlreadyCompleted):
		log.Info("checkout already completed by recovery", zap.String("checkout_id", c.ID))
	case err != nil:
		return "", err
	}

	m.settle(ctx, c)
	m.events.Publish(event)
	log.Info("checkout completed", zap.String("checkout_id", c.ID))
	return c.OrderID, nil
}

// settle drops the ordered lines from the local cart. Lines added after the
// order was created were not part of it and stay for the next checkout.
func (m *CartManager) settle(ctx context.Context, c *saga.Checkout) {
	ordered := make(map[int64]bool, len(c.Lines))
	for _, l := range c.Lines {
		ordered[l.ItemID] = true
	}

	next := m.Cart()
	kept := make([]domain.CartItem, 0, len(next.Items))
	for _, item := range next.Items {
		if !ordered[item.ID] {
			kept = append(kept, item)
		}
	}

	if len(kept) > 0 {
		next.Items = kept
		next.ApplyTotals(m.pricer.Totals(ctx, next.Items, next.DeliveryCost))
		m.commit(ctx, next)
		return
	}

	next.Reset()
	m.mu.Lock()
	m.generation++
	m.cart = next
	m.mu.Unlock()
	if err := m.store.ClearCart(ctx, m.userID); err != nil {
		logger.WithContext(ctx, m.log).Warn("cart snapshots not cleared", zap.String("user_id", m.userID), zap.Error(err))
	}
}

// guardOrdered refuses changes to a line that an unfinished checkout already
// ordered; the retry deletes that line whatever its quantity.
func (m *CartManager) guardOrdered(ctx context.Context, itemID int64) error {
	if !m.Synced() {
		return nil
	}
	c, err := m.journal.Pending(ctx, m.userID)
	if errors.Is(err, saga.ErrNoPending) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checkout journal: %w", err)
	}
	for _, l := range c.Lines {
		if l.ItemID == itemID {
			return ErrCheckoutPending
		}
	}
	return nil
}

func (m *CartManager) placeOrder(ctx context.Context, cart *domain.Cart, region domain.Region) (*saga.Checkout, error) {
	orderLines := make([]domain.OrderLine, 0, len(cart.Items))
	journalLines := make([]saga.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		orderLines = append(orderLines, domain.OrderLine{ProductID: item.ProductID, Quantity: item.Quantity})
		journalLines = append(journalLines, saga.Line{ItemID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity})
	}

	order, err := m.backend.CreateOrder(ctx, api.OrderRequest{
		UserID: m.userID,
		Items:  orderLines,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	c := &saga.Checkout{
		ID:        m.newID(),
		UserID:    m.userID,
		CartID:    cart.ID,
		Region:    region,
		OrderID:   order.ID,
		Remaining: journalLines,
	}
	if err := m.journal.RecordOrder(ctx, c); err != nil {
		return nil, fmt.Errorf("record order %s: %w", order.ID, err)
	}
	return c, nil
}
