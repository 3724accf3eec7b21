package service

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pricer computes cart totals with one discount query per category.
type Pricer struct {
	offers OfferAPI
	log    *zap.Logger
}

func NewPricer(offers OfferAPI, log *zap.Logger) *Pricer {
	return &Pricer{offers: offers, log: log}
}

// Totals never fails: a category whose discount query errors gets no discount.
func (p *Pricer) Totals(ctx context.Context, items []domain.CartItem, shipping decimal.Decimal) domain.Totals {
	groups := domain.GroupByCategory(items)
	discounts := make(map[int64]decimal.Decimal, len(groups))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, group := range groups {
		g.Go(func() error {
			d, err := p.offers.ApplyDiscount(gctx, group.CategoryID, group.Quantity, group.Subtotal)
			if err != nil {
				p.log.Warn("discount query failed",
					zap.Int64("category_id", group.CategoryID), zap.Error(err))
				return nil
			}
			mu.Lock()
			discounts[group.CategoryID] = d
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return domain.ComputeTotals(items, shipping, discounts)
}
