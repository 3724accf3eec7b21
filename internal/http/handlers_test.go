package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/api/apitest"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/events"
	"github.com/fjod/go_cart/storefront/internal/saga"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSession = "device-1"

type testEnv struct {
	router     http.Handler
	remote     *apitest.Server
	storefront *service.Storefront
	bus        *events.Bus
	kv         *store.MemoryKV
}

func setupTestRouter(t *testing.T, backendURL ...string) *testEnv {
	t.Helper()
	remote := apitest.NewServer(t)
	remote.AddCategory(domain.Category{ID: 1, Name: "Phones"})
	remote.AddCategory(domain.Category{ID: 2, Name: "Books"})
	remote.AddProduct(domain.Product{ID: 1, Name: "Phone", Price: decimal.NewFromInt(100), Stock: 5, CategoryID: 1, ImageURL: "/img/phone.png"})
	remote.AddProduct(domain.Product{ID: 2, Name: "Case", Price: decimal.NewFromInt(50), Stock: 5, CategoryID: 1, ImageURL: "/img/case.png"})
	remote.AddProduct(domain.Product{ID: 3, Name: "Go Book", Price: decimal.NewFromInt(40), Stock: 5, CategoryID: 2})

	baseURL := remote.URL
	if len(backendURL) > 0 {
		baseURL = backendURL[0]
	}

	journal, err := saga.Open(filepath.Join(t.TempDir(), "saga.db"))
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	log := zap.NewNop()
	kv := store.NewMemoryKV()
	bus := events.NewBus()
	client := api.NewClient(baseURL, 5*time.Second)
	sf := service.New(client, kv, journal, bus, log)

	h := NewHandler(sf, bus, 5*time.Second, log)
	return &testEnv{
		router:     NewRouter(h, nil, 1<<20, log),
		remote:     remote,
		storefront: sf,
		bus:        bus,
		kv:         kv,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerSessionID, testSession)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	userID := e.remote.AddUser(domain.User{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}, "Secret#123")
	w := e.do(t, http.MethodPost, "/api/v1/account/login", LoginRequest{Email: "ada@example.com", Password: "Secret#123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return userID
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
}

func TestRequestID_EchoedWhenSent(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/health", nil, headerRequestID, "req-42")

	assert.Equal(t, "req-42", w.Header().Get(headerRequestID))
}

func TestSession_IssuedWhenMissing(t *testing.T) {
	env := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerSessionID))
}

func TestAddItem_AnonymousAccumulatesQuantity(t *testing.T) {
	env := setupTestRouter(t)

	for i := 0; i < 2; i++ {
		w := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 1, Region: 1})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := env.do(t, http.MethodGet, "/api/v1/cart", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cart := decodeBody[CartResponse](t, w)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, 2, cart.Items[0].Quantity)
	assert.Equal(t, 2, cart.TotalItems)
	assert.True(t, cart.LoginRequired)
	assert.True(t, decimal.NewFromInt(200).Equal(cart.TotalPrice), cart.TotalPrice.String())
	assert.Zero(t, env.remote.Calls("POST /Cart/AddItem/{cartID}"))
}

func TestAddItem_UnknownProduct(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 99})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeBody[ErrorResponse](t, w).Code)
}

func TestAddItem_InvalidRequests(t *testing.T) {
	env := setupTestRouter(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{name: "malformed json", body: "{", code: "invalid_request"},
		{name: "missing product", body: `{"region":1}`, code: "invalid_product_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", strings.NewReader(tt.body))
			req.Header.Set(headerSessionID, testSession)
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, w).Code)
		})
	}
}

func TestUpdateQuantity_BelowOneIsNoop(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 2, Region: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	itemID := decodeBody[CartResponse](t, w).Items[0].ID

	for _, q := range []int{0, -1} {
		w = env.do(t, http.MethodPut, "/api/v1/cart/items/"+itoa(itemID), UpdateQuantityRequest{Quantity: q})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, decodeBody[CartResponse](t, w).Items[0].Quantity)
	}

	w = env.do(t, http.MethodPut, "/api/v1/cart/items/"+itoa(itemID), UpdateQuantityRequest{Quantity: 4})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decodeBody[CartResponse](t, w).Items[0].Quantity)
}

func TestRemoveItem(t *testing.T) {
	env := setupTestRouter(t)
	w := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 2, Region: 1})
	require.Equal(t, http.StatusCreated, w.Code)
	itemID := decodeBody[CartResponse](t, w).Items[0].ID

	w = env.do(t, http.MethodDelete, "/api/v1/cart/items/9999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[CartResponse](t, w).Items, 1)

	w = env.do(t, http.MethodDelete, "/api/v1/cart/items/"+itoa(itemID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[CartResponse](t, w).Items)

	w = env.do(t, http.MethodDelete, "/api/v1/cart/items/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_AnonymousNeedsLogin(t *testing.T) {
	env := setupTestRouter(t)
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 1, Region: 1})

	w := env.do(t, http.MethodPost, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "REGION_SELECTION", decodeBody[CheckoutResponse](t, w).Status)

	w = env.do(t, http.MethodPost, "/api/v1/checkout/submit", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Zero(t, env.remote.OrderCount())

	w = env.do(t, http.MethodGet, "/api/v1/checkout", nil)
	assert.Equal(t, "REGION_SELECTION", decodeBody[CheckoutResponse](t, w).Status)
}

func TestCheckout_IllegalTransition(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/checkout/submit", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "illegal_transition", decodeBody[ErrorResponse](t, w).Code)
}

func TestCheckout_LoggedInFlow(t *testing.T) {
	env := setupTestRouter(t)
	userID := env.login(t)

	w := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 1, Region: 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cart := decodeBody[CartResponse](t, w)
	assert.False(t, cart.LoginRequired)
	assert.Equal(t, int64(100), cart.Items[0].ID)

	w = env.do(t, http.MethodPost, "/api/v1/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/checkout/region", SelectRegionRequest{Region: 3})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decodeBody[CheckoutResponse](t, w).Region)

	w = env.do(t, http.MethodPost, "/api/v1/checkout/submit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decodeBody[CheckoutResponse](t, w)
	assert.Equal(t, "SUCCEEDED", state.Status, state.Error)
	assert.Equal(t, "1", state.OrderID)

	assert.Equal(t, []domain.OrderLine{{ProductID: 1, Quantity: 1}}, env.remote.Orders())
	assert.Empty(t, env.remote.Cart(userID).Items)
	_, err := store.NewSession(env.kv, testSession).LoadCart(context.Background(), userID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	w = env.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Empty(t, decodeBody[CartResponse](t, w).Items)

	w = env.do(t, http.MethodPost, "/api/v1/checkout/ack", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "IDLE", decodeBody[CheckoutResponse](t, w).Status)
}

func TestCheckout_MalformedOrderResponseFails(t *testing.T) {
	env := setupTestRouter(t)
	env.login(t)
	env.remote.OverrideOrder(func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Order queue is full"))
	})
	env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 1, Region: 1})
	env.do(t, http.MethodPost, "/api/v1/checkout", nil)

	w := env.do(t, http.MethodPost, "/api/v1/checkout/submit", nil)

	require.Equal(t, http.StatusOK, w.Code)
	state := decodeBody[CheckoutResponse](t, w)
	assert.Equal(t, "FAILED", state.Status)
	assert.Equal(t, "Order queue is full", state.Error)

	w = env.do(t, http.MethodGet, "/api/v1/cart", nil)
	assert.Len(t, decodeBody[CartResponse](t, w).Items, 1)
}

func TestPlaceOrder_EmptyCartIsRejectedLocally(t *testing.T) {
	env := setupTestRouter(t)
	env.login(t)
	before := env.remote.TotalCalls()

	w := env.do(t, http.MethodPost, "/api/v1/orders", PlaceOrderRequest{Region: 1})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Equal(t, "cart", resp.Details)
	assert.Zero(t, env.remote.Calls("POST /Order/Create"))
	// the cart load on first use is the only backend traffic
	assert.LessOrEqual(t, env.remote.TotalCalls()-before, 1)
}

func TestListProducts_Filters(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/products?category_id=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decodeBody[[]domain.Product](t, w), 2)

	w = env.do(t, http.MethodGet, "/api/v1/products?search=book", nil)
	require.Equal(t, http.StatusOK, w.Code)
	products := decodeBody[[]domain.Product](t, w)
	require.Len(t, products, 1)
	assert.Equal(t, int64(3), products[0].ID)

	w = env.do(t, http.MethodGet, "/api/v1/products?category_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListProducts_ReflectsStockTakenByAdds(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/cart/items", AddItemRequest{ProductID: 1, Region: 1})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/products?search=phone", nil)
	require.Equal(t, http.StatusOK, w.Code)
	products := decodeBody[[]domain.Product](t, w)
	require.Len(t, products, 1)
	assert.Equal(t, 4, products[0].Stock)

	w = env.do(t, http.MethodGet, "/api/v1/products/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, decodeBody[domain.ProductDetails](t, w).Stock)
}

func TestGetProduct_WithCategoryName(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/products/2", nil)

	require.Equal(t, http.StatusOK, w.Code)
	details := decodeBody[domain.ProductDetails](t, w)
	assert.Equal(t, "Case", details.Name)
	assert.Equal(t, "Phones", details.CategoryName)
}

func TestSimilarProducts_ExcludesCurrent(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/products/1/similar", nil, headerUserID, "u-1")

	require.Equal(t, http.StatusOK, w.Code)
	similar := decodeBody[[]domain.Product](t, w)
	require.Len(t, similar, 1)
	assert.Equal(t, int64(2), similar[0].ID)
}

func TestFavorites(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/favorites", ToggleFavoriteRequest{ProductID: 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	env.login(t)

	w = env.do(t, http.MethodPost, "/api/v1/favorites", ToggleFavoriteRequest{ProductID: 1})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	favs := decodeBody[FavoritesResponse](t, w)
	require.Len(t, favs.Items, 1)
	require.NotNil(t, favs.Added)
	assert.True(t, *favs.Added)

	w = env.do(t, http.MethodGet, "/api/v1/favorites", nil)
	assert.Len(t, decodeBody[FavoritesResponse](t, w).Items, 1)

	w = env.do(t, http.MethodDelete, "/api/v1/favorites/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeBody[FavoritesResponse](t, w).Items)
}

func TestAccount_LoginProfileLogout(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/account/login", LoginRequest{Email: "nobody@example.com", Password: "whatever"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", decodeBody[ErrorResponse](t, w).Error)

	userID := env.login(t)

	w = env.do(t, http.MethodGet, "/api/v1/account", nil)
	id := decodeBody[IdentityResponse](t, w)
	assert.True(t, id.Authenticated)
	assert.Equal(t, userID, id.UserID)
	assert.Equal(t, "Ada Lovelace", id.UserName)

	w = env.do(t, http.MethodGet, "/api/v1/account/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ada@example.com", decodeBody[domain.User](t, w).Email)

	w = env.do(t, http.MethodPost, "/api/v1/account/logout", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/account", nil)
	assert.False(t, decodeBody[IdentityResponse](t, w).Authenticated)
	w = env.do(t, http.MethodGet, "/api/v1/account/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegister_ValidatesLocally(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodPost, "/api/v1/account/register", domain.User{Email: "not-an-email"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.remote.Calls("POST /Users/Register"))
}

func TestTracking(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/orders/tracking", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	userID := env.login(t)
	env.remote.SeedCart(userID, domain.CartItem{ProductID: 1, Quantity: 1, Price: decimal.NewFromInt(100)})

	w = env.do(t, http.MethodGet, "/api/v1/orders/tracking", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Shipped", decodeBody[domain.Tracking](t, w).Status)
}

func TestBackendUnavailable(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()
	env := setupTestRouter(t, deadURL)

	w := env.do(t, http.MethodGet, "/api/v1/categories", nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "service_unavailable", decodeBody[ErrorResponse](t, w).Code)
}

func TestMalformedBackendResponse(t *testing.T) {
	html := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<h1>Maintenance</h1>"))
	}))
	t.Cleanup(html.Close)
	env := setupTestRouter(t, html.URL)

	w := env.do(t, http.MethodGet, "/api/v1/categories", nil)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeBody[ErrorResponse](t, w)
	assert.Equal(t, "malformed_response", resp.Code)
	assert.Equal(t, "<h1>Maintenance</h1>", resp.Error)
}

func TestCheckoutEvents_StreamsOwnCompletions(t *testing.T) {
	env := setupTestRouter(t)
	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/events/checkout", nil)
	require.NoError(t, err)
	req.Header.Set(headerSessionID, testSession)
	req.Header.Set(headerUserID, "u-1")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	env.bus.Publish(events.CheckoutCompleted{CheckoutID: "other", UserID: "u-2"})
	env.bus.Publish(events.CheckoutCompleted{CheckoutID: "mine", UserID: "u-1", OrderID: "7"})

	reader := bufio.NewReader(resp.Body)
	eventLine, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: CheckoutCompleted\n", eventLine)
	dataLine, err := reader.ReadString('\n')
	require.NoError(t, err)

	var got events.CheckoutCompleted
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(dataLine), "data: ")), &got))
	assert.Equal(t, "mine", got.CheckoutID)
}

func TestCheckoutEvents_RequiresUser(t *testing.T) {
	env := setupTestRouter(t)

	w := env.do(t, http.MethodGet, "/api/v1/events/checkout", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
