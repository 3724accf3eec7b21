// Package apitest provides an in-memory stand-in for the shop backend,
// served over httptest, for tests that exercise the real api.Client.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type account struct {
	user     domain.User
	password string
	token    string
}

type orderRequest struct {
	UserID string             `json:"userId"`
	Items  []domain.OrderLine `json:"items"`
	Region domain.Region      `json:"region"`
}

type Server struct {
	*httptest.Server

	mu             sync.Mutex
	products       map[int64]domain.Product
	productOrder   []int64
	categories     map[int64]domain.Category
	failing        map[int64]bool
	discounts      map[int64]decimal.Decimal
	delivery       decimal.Decimal
	carts          map[string]*domain.Cart
	accounts       map[string]*account
	orders         []orderRequest
	orderOverride  func(w http.ResponseWriter)
	calls          map[string]int
	nextCartID     int64
	nextLineID     int64
	nextUserNumber int
}

// NewServer starts the fake backend. It is closed when the test ends.
func NewServer(t interface{ Cleanup(func()) }) *Server {
	s := &Server{
		products:   make(map[int64]domain.Product),
		categories: make(map[int64]domain.Category),
		failing:    make(map[int64]bool),
		discounts:  make(map[int64]decimal.Decimal),
		delivery:   decimal.NewFromInt(30),
		carts:      make(map[string]*domain.Cart),
		accounts:   make(map[string]*account),
		calls:      make(map[string]int),
		nextCartID: 1,
		nextLineID: 100,
	}
	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countCalls)

	r.Get("/Product", s.listProducts)
	r.Get("/Product/{id}", s.getProduct)
	r.Get("/Product/Recommended/{userID}/{categoryID}", s.recommended)
	r.Get("/Category/AllCategories", s.listCategories)
	r.Get("/Category/GetById/{id}", s.getCategory)
	r.Get("/Offer/apply-discount", s.applyDiscount)

	r.Get("/Cart/GetByUser/{userID}", s.getCart)
	r.Post("/Cart/Create/{userID}", s.createCart)
	r.Post("/Cart/AddItem/{cartID}", s.addItem)
	r.Delete("/Cart/RemoveItem/{cartID}/{itemID}", s.removeItem)
	r.Put("/Cart/Update", s.updateItem)
	r.Get("/Cart/{cartID}/tracking", s.tracking)

	r.Post("/Order/Create", s.createOrder)

	r.Post("/Users/Login", s.login)
	r.Post("/Users/Register", s.register)
	r.Get("/Users/{id}", s.getUser)
	r.Put("/Users/{id}", s.updateUser)
	return r
}

func (s *Server) countCalls(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)
		pattern := chi.RouteContext(r.Context()).RoutePattern()
		s.mu.Lock()
		s.calls[r.Method+" "+pattern]++
		s.mu.Unlock()
	})
}

// Setup

func (s *Server) AddProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[p.ID]; !ok {
		s.productOrder = append(s.productOrder, p.ID)
	}
	s.products[p.ID] = p
}

func (s *Server) AddCategory(c domain.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

// FailProduct makes lookups of the product answer 500.
func (s *Server) FailProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failing[id] = true
}

func (s *Server) SetDiscount(categoryID int64, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discounts[categoryID] = amount
}

func (s *Server) SetDelivery(cost decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivery = cost
}

// AddUser registers an account and returns its id.
func (s *Server) AddUser(user domain.User, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addUserLocked(user, password)
}

func (s *Server) addUserLocked(user domain.User, password string) string {
	s.nextUserNumber++
	id := fmt.Sprintf("user-%d", s.nextUserNumber)
	user.ID = domain.ID(id)
	user.Password = ""
	s.accounts[id] = &account{user: user, password: password, token: "token-" + id}
	return id
}

// SeedCart gives userID a server cart holding items.
func (s *Server) SeedCart(userID string, items ...domain.CartItem) *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.newCartLocked(userID)
	for _, item := range items {
		if item.ID == 0 {
			item.ID = s.nextLineID
			s.nextLineID++
		}
		cart.Items = append(cart.Items, item)
	}
	cart.TotalPrice = domain.Subtotal(cart.Items)
	return cart.Clone()
}

// OverrideOrder replaces the answer of the create-order endpoint.
func (s *Server) OverrideOrder(respond func(w http.ResponseWriter)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderOverride = respond
}

// Inspection

// Cart returns a copy of userID's server cart, or nil.
func (s *Server) Cart(userID string) *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[userID]
	if !ok {
		return nil
	}
	return cart.Clone()
}

// Orders returns the order bodies received so far.
func (s *Server) Orders() []domain.OrderLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	var lines []domain.OrderLine
	for _, o := range s.orders {
		lines = append(lines, o.Items...)
	}
	return lines
}

func (s *Server) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

// Calls counts requests by "METHOD pattern", e.g. "GET /Product/{id}".
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Handlers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func int64Param(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	products := make([]domain.Product, 0, len(s.productOrder))
	for _, id := range s.productOrder {
		products = append(products, s.products[id])
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := int64Param(r, "id")
	s.mu.Lock()
	p, ok := s.products[id]
	failing := s.failing[id]
	s.mu.Unlock()
	switch {
	case failing:
		writeMessage(w, http.StatusInternalServerError, "product service down")
	case !ok:
		writeMessage(w, http.StatusNotFound, "product not found")
	default:
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) recommended(w http.ResponseWriter, r *http.Request) {
	categoryID := int64Param(r, "categoryID")
	s.mu.Lock()
	var products []domain.Product
	for _, id := range s.productOrder {
		if p := s.products[id]; p.CategoryID == categoryID {
			products = append(products, p)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	categories := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		categories = append(categories, c)
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, categories)
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	c, ok := s.categories[int64Param(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "category not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) applyDiscount(w http.ResponseWriter, r *http.Request) {
	categoryID, _ := strconv.ParseInt(r.URL.Query().Get("categoryId"), 10, 64)
	s.mu.Lock()
	discount := s.discounts[categoryID]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"discountApplied": discount})
}

func (s *Server) newCartLocked(userID string) *domain.Cart {
	cart := &domain.Cart{
		ID:           s.nextCartID,
		UserID:       userID,
		Items:        []domain.CartItem{},
		DeliveryCost: s.delivery,
	}
	s.nextCartID++
	s.carts[userID] = cart
	return cart
}

func (s *Server) cartByID(id int64) *domain.Cart {
	for _, cart := range s.carts {
		if cart.ID == id {
			return cart
		}
	}
	return nil
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart, ok := s.carts[chi.URLParam(r, "userID")]
	var out *domain.Cart
	if ok {
		out = cart.Clone()
	}
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "cart not found")
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.newCartLocked(chi.URLParam(r, "userID")).Clone()
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cart)
}

func (s *Server) addItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"productId"`
		Quantity  int   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartByID(int64Param(r, "cartID"))
	if cart == nil {
		writeMessage(w, http.StatusNotFound, "cart not found")
		return
	}
	p, ok := s.products[req.ProductID]
	if !ok {
		writeMessage(w, http.StatusBadRequest, "unknown product")
		return
	}
	if idx := indexOfProduct(cart.Items, req.ProductID); idx >= 0 {
		cart.Items[idx].Quantity += req.Quantity
	} else {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:          s.nextLineID,
			ProductID:   p.ID,
			ProductName: p.Name,
			Price:       p.Price,
			Quantity:    req.Quantity,
		})
		s.nextLineID++
	}
	cart.TotalPrice = domain.Subtotal(cart.Items)
	writeJSON(w, http.StatusOK, cart.Clone())
}

func indexOfProduct(items []domain.CartItem, productID int64) int {
	for i, item := range items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *Server) removeItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cart := s.cartByID(int64Param(r, "cartID"))
	if cart == nil || !cart.RemoveItem(int64Param(r, "itemID")) {
		writeMessage(w, http.StatusNotFound, "item not found")
		return
	}
	cart.TotalPrice = domain.Subtotal(cart.Items)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateItem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID    string `json:"userId"`
		ProductID int64  `json:"productId"`
		Quantity  int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cart, ok := s.carts[req.UserID]
	if !ok {
		writeMessage(w, http.StatusNotFound, "cart not found")
		return
	}
	idx := indexOfProduct(cart.Items, req.ProductID)
	if idx < 0 {
		writeMessage(w, http.StatusNotFound, "item not found")
		return
	}
	cart.Items[idx].Quantity = req.Quantity
	cart.TotalPrice = domain.Subtotal(cart.Items)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) tracking(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cart := s.cartByID(int64Param(r, "cartID"))
	s.mu.Unlock()
	if cart == nil {
		writeMessage(w, http.StatusNotFound, "cart not found")
		return
	}
	writeJSON(w, http.StatusOK, domain.Tracking{Status: "Shipped", EstimatedDeliveryTime: "2 days"})
}

func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	override := s.orderOverride
	if override == nil {
		s.orders = append(s.orders, req)
	}
	n := len(s.orders)
	s.mu.Unlock()

	if override != nil {
		override(w)
		return
	}
	writeJSON(w, http.StatusOK, domain.Order{ID: domain.ID(strconv.Itoa(n)), Status: "Created"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, acc := range s.accounts {
		if strings.EqualFold(acc.user.Email, req.Email) && acc.password == req.Password {
			writeJSON(w, http.StatusOK, map[string]any{
				"id":        id,
				"token":     acc.token,
				"firstName": acc.user.FirstName,
				"lastName":  acc.user.LastName,
			})
			return
		}
	}
	writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if strings.EqualFold(acc.user.Email, user.Email) {
			writeMessage(w, http.StatusConflict, "Email already registered")
			return
		}
	}
	s.addUserLocked(user, user.Password)
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	acc, ok := s.accounts[chi.URLParam(r, "id")]
	var user domain.User
	if ok {
		user = acc.user
	}
	s.mu.Unlock()
	if !ok {
		writeMessage(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// updateUser serves "/Users/{id}Update".
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(chi.URLParam(r, "id"), "Update")
	if !ok {
		writeMessage(w, http.StatusNotFound, "route not found")
		return
	}
	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid body")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	acc, found := s.accounts[id]
	if !found {
		writeMessage(w, http.StatusNotFound, "user not found")
		return
	}
	if user.Password != "" {
		acc.password = user.Password
	}
	user.ID = domain.ID(id)
	user.Password = ""
	acc.user = user
	w.WriteHeader(http.StatusNoContent)
}
