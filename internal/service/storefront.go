package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	defaultManagerCacheSize   = 10000
	defaultManagerIdleTimeout = 30 * time.Minute
)

type deps struct {
	backend       Backend
	journal       CheckoutJournal
	events        EventPublisher
	catalog       *Catalog
	pricer        *Pricer
	metrics       Recorder
	log           *zap.Logger
	defaultRegion domain.Region
	clock         func() time.Time
	newID         func() string
	cacheSize     int
	idleTimeout   time.Duration
}

type Option func(*deps)

func WithMetrics(r Recorder) Option {
	return func(d *deps) { d.metrics = r }
}

func WithDefaultRegion(r domain.Region) Option {
	return func(d *deps) { d.defaultRegion = r }
}

func WithClock(clock func() time.Time) Option {
	return func(d *deps) { d.clock = clock }
}

// WithManagerCache bounds the per-session managers kept in memory. A manager
// unused for idle, or pushed out by size newer ones, is dropped and rebuilt
// from the session snapshots on the next request.
func WithManagerCache(size int, idle time.Duration) Option {
	return func(d *deps) {
		d.cacheSize = size
		d.idleTimeout = idle
	}
}

// WithIDGenerator replaces the checkout id generator.
func WithIDGenerator(newID func() string) Option {
	return func(d *deps) { d.newID = newID }
}

// Storefront hands out the per-session components. A session is one device;
// its snapshots live in kv under that session's id.
type Storefront struct {
	deps *deps
	kv   store.KV

	mu        sync.Mutex
	carts     *expirable.LRU[string, *CartManager]
	favorites *expirable.LRU[string, *Favorites]
}

func New(backend Backend, kv store.KV, journal CheckoutJournal, publisher EventPublisher, log *zap.Logger, opts ...Option) *Storefront {
	d := &deps{
		backend:       backend,
		journal:       journal,
		events:        publisher,
		metrics:       nopRecorder{},
		log:           log,
		defaultRegion: domain.DefaultRegion,
		clock:         time.Now,
		newID:         uuid.NewString,
		cacheSize:     defaultManagerCacheSize,
		idleTimeout:   defaultManagerIdleTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.catalog = NewCatalog(backend, NewStockMemory(), log)
	d.pricer = NewPricer(backend, log)

	return &Storefront{
		deps:      d,
		kv:        kv,
		carts:     expirable.NewLRU[string, *CartManager](d.cacheSize, nil, d.idleTimeout),
		favorites: expirable.NewLRU[string, *Favorites](d.cacheSize, nil, d.idleTimeout),
	}
}

func managerKey(sessionID, userID string) string {
	return sessionID + "/" + userID
}

func (s *Storefront) snapshots(sessionID string) SnapshotStore {
	return store.NewSession(s.kv, sessionID)
}

// Cart returns the manager of userID's cart on the device. The same manager is
// returned for every request of the pair so mutations serialize. Every access
// restarts its idle timer.
func (s *Storefront) Cart(sessionID, userID string) *CartManager {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := managerKey(sessionID, userID)
	m, ok := s.carts.Get(key)
	if !ok {
		m = newCartManager(s.deps, s.snapshots(sessionID), userID)
	}
	s.carts.Add(key, m)
	return m
}

func (s *Storefront) Favorites(sessionID, userID string) *Favorites {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := managerKey(sessionID, userID)
	f, ok := s.favorites.Get(key)
	if !ok {
		f = newFavorites(s.snapshots(sessionID), userID)
	}
	s.favorites.Add(key, f)
	return f
}

func (s *Storefront) Accounts(sessionID string) *Accounts {
	return newAccounts(s.deps.backend, s.snapshots(sessionID), s.deps.log, s.deps.clock)
}

func (s *Storefront) Catalog() *Catalog {
	return s.deps.catalog
}

// Logout clears the device's identity and cart snapshots and drops its managers.
func (s *Storefront) Logout(ctx context.Context, sessionID, userID string) error {
	if err := s.Accounts(sessionID).Logout(ctx, userID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range []string{managerKey(sessionID, userID), managerKey(sessionID, "")} {
		s.carts.Remove(key)
		s.favorites.Remove(key)
	}
	return nil
}

// Tracking reports the delivery status of the user's cart.
func (s *Storefront) Tracking(ctx context.Context, userID string) (*domain.Tracking, error) {
	if userID == "" {
		return nil, ErrLoginRequired
	}
	cart, err := s.deps.backend.GetCartByUser(ctx, userID)
	if errors.Is(err, api.ErrCartNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}
	tracking, err := s.deps.backend.Tracking(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}
	return tracking, nil
}
