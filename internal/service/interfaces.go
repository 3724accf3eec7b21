package service

import (
	"context"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/saga"
	"github.com/shopspring/decimal"
)

type CartAPI interface {
	GetCartByUser(ctx context.Context, userID string) (*domain.Cart, error)
	CreateCart(ctx context.Context, userID string, region domain.Region) (*domain.Cart, error)
	AddItem(ctx context.Context, cartID int64, region domain.Region, productID int64, quantity int) (*domain.Cart, error)
	RemoveItem(ctx context.Context, cartID, cartItemID int64) error
	UpdateItem(ctx context.Context, userID string, productID int64, quantity int) error
	Tracking(ctx context.Context, cartID int64) (*domain.Tracking, error)
}

type CatalogAPI interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	RecommendedProducts(ctx context.Context, userID string, categoryID int64) ([]domain.Product, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
}

type OfferAPI interface {
	ApplyDiscount(ctx context.Context, categoryID int64, quantity int, totalPrice decimal.Decimal) (decimal.Decimal, error)
}

type OrderAPI interface {
	CreateOrder(ctx context.Context, req api.OrderRequest) (*domain.Order, error)
}

type UserAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Register(ctx context.Context, user domain.User) error
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpdateUser(ctx context.Context, userID string, user domain.User) error
}

// Backend is everything the storefront needs from the remote API. *api.Client implements it.
type Backend interface {
	CartAPI
	CatalogAPI
	OfferAPI
	OrderAPI
	UserAPI
}

// SnapshotStore is the per-device session store. *store.Session implements it.
type SnapshotStore interface {
	LoadCart(ctx context.Context, userID string) (*domain.Cart, error)
	SaveCart(ctx context.Context, userID string, cart *domain.Cart) error
	ClearCart(ctx context.Context, userID string) error
	LoadFavorites(ctx context.Context, userID string) (domain.Favorites, error)
	SaveFavorites(ctx context.Context, userID string, favs domain.Favorites) error
	LoadIdentity(ctx context.Context) (domain.Identity, error)
	SaveIdentity(ctx context.Context, id domain.Identity) error
	ClearIdentity(ctx context.Context) error
}

// CheckoutJournal is implemented by *saga.Journal.
type CheckoutJournal interface {
	Pending(ctx context.Context, userID string) (*saga.Checkout, error)
	RecordOrder(ctx context.Context, c *saga.Checkout) error
	MarkDeleted(ctx context.Context, checkoutID string, itemID int64) error
	Complete(ctx context.Context, checkoutID, eventType string, payload []byte) error
}

type EventPublisher interface {
	Publish(e events.CheckoutCompleted)
}

// Recorder receives business metrics. *metrics.Metrics implements it.
type Recorder interface {
	CartMutation(operation string, err error)
	CheckoutOutcome(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) CartMutation(string, error) {}
func (nopRecorder) CheckoutOutcome(string)     {}
