package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/saga"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errBackendDown = errors.New("backend down")

type updateCall struct {
	UserID    string
	ProductID int64
	Quantity  int
}

// mockBackend records every call. Cart calls mutate a tiny server-side cart
// so add/remove round trips look realistic.
type mockBackend struct {
	mu    sync.Mutex
	calls []string

	serverCart  *domain.Cart
	getCartErr  error
	getCartHook func()
	createErr   error
	addErr      error
	removeErr   map[int64]error
	updateErr   error
	removed     []int64
	updates     []updateCall

	products    map[int64]domain.Product
	productErr  map[int64]error
	categories  map[int64]domain.Category
	recommended []domain.Product
	discounts   map[int64]decimal.Decimal
	discountErr map[int64]error

	order         *domain.Order
	orderErr      error
	orderRequests []api.OrderRequest

	loginResp *api.LoginResponse
	loginErr  error
	users     map[string]domain.User
	updated   map[string]domain.User
	tracking  *domain.Tracking
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		removeErr:   map[int64]error{},
		products:    map[int64]domain.Product{},
		productErr:  map[int64]error{},
		categories:  map[int64]domain.Category{},
		discounts:   map[int64]decimal.Decimal{},
		discountErr: map[int64]error{},
		users:       map[string]domain.User{},
		updated:     map[string]domain.User{},
		order:       &domain.Order{ID: "900"},
	}
}

func (m *mockBackend) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockBackend) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockBackend) count(call string) int {
	n := 0
	for _, c := range m.Calls() {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockBackend) GetCartByUser(_ context.Context, _ string) (*domain.Cart, error) {
	m.record("GetCartByUser")
	m.mu.Lock()
	hook := m.getCartHook
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getCartErr != nil {
		return nil, m.getCartErr
	}
	if m.serverCart == nil {
		return nil, api.ErrCartNotFound
	}
	return m.serverCart.Clone(), nil
}

func (m *mockBackend) CreateCart(_ context.Context, userID string, _ domain.Region) (*domain.Cart, error) {
	m.record("CreateCart")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.serverCart = &domain.Cart{ID: 77, UserID: userID, DeliveryCost: decimal.NewFromInt(30)}
	return m.serverCart.Clone(), nil
}

func (m *mockBackend) AddItem(_ context.Context, _ int64, _ domain.Region, productID int64, quantity int) (*domain.Cart, error) {
	m.record("AddItem")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	for i := range m.serverCart.Items {
		if m.serverCart.Items[i].ProductID == productID {
			m.serverCart.Items[i].Quantity += quantity
			return m.serverCart.Clone(), nil
		}
	}
	m.serverCart.Items = append(m.serverCart.Items, domain.CartItem{
		ID:        int64(100 + len(m.serverCart.Items)),
		ProductID: productID,
		Quantity:  quantity,
	})
	return m.serverCart.Clone(), nil
}

func (m *mockBackend) RemoveItem(_ context.Context, _ int64, cartItemID int64) error {
	m.record("RemoveItem")
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.removeErr[cartItemID]; err != nil {
		return err
	}
	m.removed = append(m.removed, cartItemID)
	if m.serverCart != nil {
		m.serverCart.RemoveItem(cartItemID)
	}
	return nil
}

func (m *mockBackend) UpdateItem(_ context.Context, userID string, productID int64, quantity int) error {
	m.record("UpdateItem")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates = append(m.updates, updateCall{UserID: userID, ProductID: productID, Quantity: quantity})
	return nil
}

func (m *mockBackend) Tracking(_ context.Context, _ int64) (*domain.Tracking, error) {
	m.record("Tracking")
	if m.tracking == nil {
		return nil, &api.StatusError{StatusCode: 404, Message: "no shipment"}
	}
	return m.tracking, nil
}

func (m *mockBackend) ListProducts(context.Context) ([]domain.Product, error) {
	m.record("ListProducts")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Product, 0, len(m.products))
	for id := int64(1); len(out) < len(m.products); id++ {
		if p, ok := m.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockBackend) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	m.record("GetProduct")
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.productErr[id]; err != nil {
		return nil, err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, &api.StatusError{StatusCode: 404, Message: "product not found"}
	}
	return &p, nil
}

func (m *mockBackend) RecommendedProducts(context.Context, string, int64) ([]domain.Product, error) {
	m.record("RecommendedProducts")
	return m.recommended, nil
}

func (m *mockBackend) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	m.record("GetCategory")
	c, ok := m.categories[id]
	if !ok {
		return nil, errBackendDown
	}
	return &c, nil
}

func (m *mockBackend) ListCategories(context.Context) ([]domain.Category, error) {
	m.record("ListCategories")
	out := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	return out, nil
}

func (m *mockBackend) ApplyDiscount(_ context.Context, categoryID int64, _ int, _ decimal.Decimal) (decimal.Decimal, error) {
	m.record("ApplyDiscount")
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.discountErr[categoryID]; err != nil {
		return decimal.Zero, err
	}
	return m.discounts[categoryID], nil
}

func (m *mockBackend) CreateOrder(_ context.Context, req api.OrderRequest) (*domain.Order, error) {
	m.record("CreateOrder")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderRequests = append(m.orderRequests, req)
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	return m.order, nil
}

func (m *mockBackend) Login(context.Context, string, string) (*api.LoginResponse, error) {
	m.record("Login")
	return m.loginResp, m.loginErr
}

func (m *mockBackend) Register(_ context.Context, user domain.User) error {
	m.record("Register")
	m.users[user.Email] = user
	return nil
}

func (m *mockBackend) GetUser(_ context.Context, userID string) (*domain.User, error) {
	m.record("GetUser")
	u, ok := m.users[userID]
	if !ok {
		return nil, &api.StatusError{StatusCode: 404, Message: "user not found"}
	}
	return &u, nil
}

func (m *mockBackend) UpdateUser(_ context.Context, userID string, user domain.User) error {
	m.record("UpdateUser")
	m.updated[userID] = user
	return nil
}

type recordingMetrics struct {
	mu        sync.Mutex
	mutations []string
	outcomes  []string
}

func (r *recordingMetrics) CartMutation(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := "ok"
	if err != nil {
		result = "error"
	}
	r.mutations = append(r.mutations, op+":"+result)
}

func (r *recordingMetrics) CheckoutOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

type testEnv struct {
	backend   *mockBackend
	kv        *store.MemoryKV
	journal   *saga.Journal
	completed []events.CheckoutCompleted
	metrics   *recordingMetrics
	sf        *Storefront
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupTestEnv(t *testing.T) *testEnv {
	journal, err := saga.Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	env := &testEnv{
		backend: newMockBackend(),
		kv:      store.NewMemoryKV(),
		journal: journal,
		metrics: &recordingMetrics{},
	}
	bus := events.NewBus()
	bus.Subscribe(func(e events.CheckoutCompleted) {
		env.completed = append(env.completed, e)
	})

	ids := 0
	env.sf = New(env.backend, env.kv, journal, bus, zap.NewNop(),
		WithMetrics(env.metrics),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			ids++
			return fmt.Sprintf("chk-%d", ids)
		}),
	)
	return env
}

func (e *testEnv) session() *store.Session {
	return store.NewSession(e.kv, "dev-1")
}

func product(id int64, price int64, categoryID int64) domain.Product {
	return domain.Product{
		ID:         id,
		Name:       "product",
		Price:      decimal.NewFromInt(price),
		Stock:      10,
		CategoryID: categoryID,
		ImageURL:   "/img/p.png",
	}
}
