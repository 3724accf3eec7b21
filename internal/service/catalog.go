package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const similarProductsLimit = 3

type ProductFilter struct {
	CategoryID int64
	Search     string
}

func (f ProductFilter) match(p domain.Product) bool {
	if f.CategoryID > 0 && p.CategoryID != f.CategoryID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// StockMemory remembers the last stock count the backend reported per product
// and how many units this process added to carts since. Shown availability is
// the difference, so adds are visible before the backend catches up.
type StockMemory struct {
	mu     sync.RWMutex
	counts map[int64]stockCount
}

type stockCount struct {
	server int
	taken  int
}

func NewStockMemory() *StockMemory {
	return &StockMemory{counts: make(map[int64]stockCount)}
}

// Remember records the backend counts. A changed count means the backend
// caught up, so local takes are forgotten.
func (s *StockMemory) Remember(products ...domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		if c, ok := s.counts[p.ID]; ok && c.server == p.Stock {
			continue
		}
		s.counts[p.ID] = stockCount{server: p.Stock}
	}
}

// Stock returns the available count and whether the product was ever seen.
func (s *StockMemory) Stock(productID int64) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.counts[productID]
	if !ok {
		return 0, false
	}
	return max(c.server-c.taken, 0), true
}

func (s *StockMemory) Decrement(productID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counts[productID]; ok && c.server-c.taken > 0 {
		c.taken++
		s.counts[productID] = c
	}
}

// Observe remembers the backend counts and replaces them with what is
// available locally.
func (s *StockMemory) Observe(products []domain.Product) {
	s.Remember(products...)
	for i := range products {
		if n, ok := s.Stock(products[i].ID); ok {
			products[i].Stock = n
		}
	}
}

type Catalog struct {
	api     CatalogAPI
	stock   *StockMemory
	sfg     singleflight.Group // collapses concurrent lookups of one product
	log     *zap.Logger
	shuffle func(n int, swap func(i, j int))
}

func NewCatalog(catalogAPI CatalogAPI, stock *StockMemory, log *zap.Logger) *Catalog {
	return &Catalog{
		api:     catalogAPI,
		stock:   stock,
		log:     log,
		shuffle: rand.Shuffle,
	}
}

func (c *Catalog) Stock() *StockMemory {
	return c.stock
}

func (c *Catalog) ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error) {
	products, err := c.api.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	c.stock.Observe(products)

	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if filter.match(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Catalog) Product(ctx context.Context, id int64) (*domain.Product, error) {
	v, err, _ := c.sfg.Do(fmt.Sprintf("product:%d", id), func() (interface{}, error) {
		return c.api.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("get product %d: %w", id, err)
	}
	p := []domain.Product{*v.(*domain.Product)}
	c.stock.Observe(p)
	return &p[0], nil
}

// ProductDetails adds the category name. A failed category lookup leaves it empty.
func (c *Catalog) ProductDetails(ctx context.Context, id int64) (*domain.ProductDetails, error) {
	p, err := c.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	details := &domain.ProductDetails{Product: *p}
	if p.CategoryID <= 0 {
		return details, nil
	}

	category, err := c.api.GetCategory(ctx, p.CategoryID)
	if err != nil {
		c.log.Warn("category lookup failed", zap.Int64("category_id", p.CategoryID), zap.Error(err))
		return details, nil
	}
	details.CategoryName = category.Name
	return details, nil
}

func (c *Catalog) Categories(ctx context.Context) ([]domain.Category, error) {
	categories, err := c.api.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// SimilarProducts picks up to three random recommendations other than excludeID.
func (c *Catalog) SimilarProducts(ctx context.Context, userID string, categoryID, excludeID int64) ([]domain.Product, error) {
	recommended, err := c.api.RecommendedProducts(ctx, userID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("recommended products: %w", err)
	}
	out := make([]domain.Product, 0, len(recommended))
	for _, p := range recommended {
		if p.ID != excludeID {
			out = append(out, p)
		}
	}
	c.stock.Observe(out)
	c.shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > similarProductsLimit {
		out = out[:similarProductsLimit]
	}
	return out, nil
}
