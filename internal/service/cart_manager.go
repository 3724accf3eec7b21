package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/logger"
	"github.com/fjod/go_cart/storefront/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const enrichConcurrency = 8

// CartManager owns the cart of one user on one device. Mutations are
// serialized by op and applied locally only after the backend accepted them.
// An empty userID is an anonymous session that never talks to the cart API.
type CartManager struct {
	*deps
	userID string
	store  SnapshotStore

	op sync.Mutex

	mu         sync.RWMutex
	cart       *domain.Cart
	hydrated   bool
	generation uint64
	checkout   domain.CheckoutState
}

func newCartManager(d *deps, snapshots SnapshotStore, userID string) *CartManager {
	return &CartManager{
		deps:     d,
		userID:   userID,
		store:    snapshots,
		cart:     &domain.Cart{UserID: userID, Items: []domain.CartItem{}},
		checkout: domain.CheckoutState{Status: domain.CheckoutStatusIdle},
	}
}

// Synced reports whether mutations reach the server cart.
func (m *CartManager) Synced() bool {
	return m.userID != ""
}

// Cart returns a copy of the current cart.
func (m *CartManager) Cart() *domain.Cart {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cart.Clone()
}

func (m *CartManager) hydrate(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hydrated {
		return
	}
	m.hydrated = true

	cart, err := m.store.LoadCart(ctx, m.userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		m.log.Warn("cart snapshot unreadable", zap.String("user_id", m.userID), zap.Error(err))
	case cart != nil:
		if cart.Items == nil {
			cart.Items = []domain.CartItem{}
		}
		m.cart = cart
	}
}

// commit installs next as the current cart and mirrors it to the session store.
func (m *CartManager) commit(ctx context.Context, next *domain.Cart) *domain.Cart {
	m.mu.Lock()
	m.generation++
	m.cart = next
	m.mu.Unlock()

	m.persist(ctx, next)
	return next.Clone()
}

func (m *CartManager) persist(ctx context.Context, cart *domain.Cart) {
	if err := m.store.SaveCart(ctx, m.userID, cart); err != nil {
		logger.WithContext(ctx, m.log).Warn("cart snapshot not saved", zap.String("user_id", m.userID), zap.Error(err))
	}
}

// Load fetches the server cart, which replaces the local one. Lines are
// enriched with their product image and category. Transport failures are only
// logged and leave an empty cart in memory; the stored snapshot is kept. A
// load overtaken by a newer load or a mutation is discarded.
func (m *CartManager) Load(ctx context.Context) (*domain.Cart, error) {
	m.hydrate(ctx)
	if !m.Synced() {
		return m.Cart(), nil
	}
	log := logger.WithContext(ctx, m.log).With(zap.String("user_id", m.userID))

	m.mu.Lock()
	m.generation++
	gen := m.generation
	m.mu.Unlock()

	remote, err := m.backend.GetCartByUser(ctx, m.userID)
	switch {
	case errors.Is(err, api.ErrCartNotFound):
		remote = &domain.Cart{UserID: m.userID}
	case err != nil:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("cart load failed, showing empty cart", zap.Error(err))
		m.mu.Lock()
		if gen == m.generation {
			m.cart = &domain.Cart{UserID: m.userID, Items: []domain.CartItem{}}
		}
		current := m.cart.Clone()
		m.mu.Unlock()
		return current, nil
	}
	if remote.Items == nil {
		remote.Items = []domain.CartItem{}
	}
	remote.UserID = m.userID

	m.enrich(ctx, remote.Items)
	remote.ApplyTotals(m.pricer.Totals(ctx, remote.Items, remote.DeliveryCost))

	m.mu.Lock()
	if gen != m.generation {
		current := m.cart.Clone()
		m.mu.Unlock()
		log.Debug("discarding stale cart load", zap.Uint64("generation", gen))
		return current, nil
	}
	m.cart = remote
	m.mu.Unlock()

	m.persist(ctx, remote)
	return remote.Clone(), nil
}

// enrich fills image and category from the product record. A failed lookup
// falls back to the default image and no category; it never fails the load.
func (m *CartManager) enrich(ctx context.Context, items []domain.CartItem) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enrichConcurrency)
	for i := range items {
		g.Go(func() error {
			item := &items[i]
			p, err := m.catalog.Product(gctx, item.ProductID)
			if err != nil {
				m.log.Debug("product lookup failed", zap.Int64("product_id", item.ProductID), zap.Error(err))
				item.ImageURL = domain.DefaultImageURL
				item.CategoryID = nil
				return nil
			}
			item.ImageURL = p.ImageURL
			if item.ImageURL == "" {
				item.ImageURL = domain.DefaultImageURL
			}
			if item.ProductName == "" {
				item.ProductName = p.Name
			}
			item.CategoryID = nil
			if p.CategoryID > 0 {
				categoryID := p.CategoryID
				item.CategoryID = &categoryID
			}
			return nil
		})
	}
	_ = g.Wait()
}

// AddItem adds one unit of product. Synced sessions make sure a server cart
// exists first and merge locally only once the backend accepted the add.
func (m *CartManager) AddItem(ctx context.Context, product domain.Product, region domain.Region) (cart *domain.Cart, err error) {
	defer func() { m.metrics.CartMutation("add", err) }()

	if product.ID <= 0 {
		return nil, invalid("product", "unknown product")
	}
	if !region.Valid() {
		return nil, invalid("region", "select a delivery region")
	}
	stock := m.catalog.Stock()
	n, known := stock.Stock(product.ID)
	if !known {
		stock.Remember(product)
		n = product.Stock
	}
	if n <= 0 {
		return nil, ErrOutOfStock
	}

	m.op.Lock()
	defer m.op.Unlock()
	m.hydrate(ctx)

	next := m.Cart()
	if line, ok := next.ItemByProduct(product.ID); ok {
		if err := m.guardOrdered(ctx, line.ID); err != nil {
			return nil, err
		}
	}
	var lineID int64
	if m.Synced() {
		lineID, err = m.addRemote(ctx, next, product, region)
		if err != nil {
			return nil, err
		}
	} else {
		lineID = nextLocalLineID(next)
	}

	next.AddProduct(product, lineID)
	next.ApplyTotals(m.pricer.Totals(ctx, next.Items, next.DeliveryCost))
	stock.Decrement(product.ID)
	return m.commit(ctx, next), nil
}

// addRemote pushes the add and returns the server id of the product's line.
// next receives the server cart id and delivery cost.
func (m *CartManager) addRemote(ctx context.Context, next *domain.Cart, product domain.Product, region domain.Region) (int64, error) {
	if next.ID == 0 {
		created, err := m.backend.CreateCart(ctx, m.userID, region)
		if err != nil {
			return 0, fmt.Errorf("create cart: %w", err)
		}
		next.ID = created.ID
		next.DeliveryCost = created.DeliveryCost
	}

	remote, err := m.backend.AddItem(ctx, next.ID, region, product.ID, 1)
	if err != nil {
		return 0, fmt.Errorf("add item: %w", err)
	}
	if !remote.DeliveryCost.IsZero() {
		next.DeliveryCost = remote.DeliveryCost
	}
	if line, ok := remote.ItemByProduct(product.ID); ok {
		return line.ID, nil
	}

	// some deployments acknowledge without echoing the cart
	refreshed, err := m.backend.GetCartByUser(ctx, m.userID)
	if err != nil {
		m.log.Warn("could not resolve cart line id", zap.Int64("product_id", product.ID), zap.Error(err))
		return 0, nil
	}
	if line, ok := refreshed.ItemByProduct(product.ID); ok {
		return line.ID, nil
	}
	return 0, nil
}

func nextLocalLineID(cart *domain.Cart) int64 {
	var highest int64
	for _, item := range cart.Items {
		if item.ID > highest {
			highest = item.ID
		}
	}
	return highest + 1
}

// RemoveItem deletes a line. Unknown ids are a no-op.
func (m *CartManager) RemoveItem(ctx context.Context, itemID int64) (cart *domain.Cart, err error) {
	m.op.Lock()
	defer m.op.Unlock()
	m.hydrate(ctx)

	next := m.Cart()
	if _, ok := next.Item(itemID); !ok {
		return next, nil
	}
	defer func() { m.metrics.CartMutation("remove", err) }()

	if m.Synced() {
		if err := m.backend.RemoveItem(ctx, next.ID, itemID); err != nil {
			return nil, fmt.Errorf("remove item: %w", err)
		}
	}

	next.RemoveItem(itemID)
	next.ApplyTotals(m.pricer.Totals(ctx, next.Items, next.DeliveryCost))
	return m.commit(ctx, next), nil
}

// UpdateQuantity sets the quantity of a line. Quantities below one and unknown
// ids are a no-op; removal only happens through RemoveItem.
func (m *CartManager) UpdateQuantity(ctx context.Context, itemID int64, quantity int) (cart *domain.Cart, err error) {
	m.op.Lock()
	defer m.op.Unlock()
	m.hydrate(ctx)

	next := m.Cart()
	item, ok := next.Item(itemID)
	if !ok || quantity < 1 {
		return next, nil
	}
	defer func() { m.metrics.CartMutation("update", err) }()

	if err := m.guardOrdered(ctx, itemID); err != nil {
		return nil, err
	}
	if m.Synced() {
		if err := m.backend.UpdateItem(ctx, m.userID, item.ProductID, quantity); err != nil {
			return nil, fmt.Errorf("update item: %w", err)
		}
	}

	next.SetQuantity(itemID, quantity)
	next.ApplyTotals(m.pricer.Totals(ctx, next.Items, next.DeliveryCost))
	return m.commit(ctx, next), nil
}

// RecomputeTotals re-runs the discount queries for the current lines.
func (m *CartManager) RecomputeTotals(ctx context.Context) domain.Totals {
	m.op.Lock()
	defer m.op.Unlock()
	m.hydrate(ctx)

	next := m.Cart()
	totals := m.pricer.Totals(ctx, next.Items, next.DeliveryCost)
	next.ApplyTotals(totals)
	m.commit(ctx, next)
	return totals
}

func (m *CartManager) now() time.Time {
	if m.clock != nil {
		return m.clock()
	}
	return time.Now()
}
