package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID        domain.ID `json:"id"`
	Token     string    `json:"token"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := loginRequest{Email: email, Password: password}
	if err := c.do(ctx, "users.login", http.MethodPost, "/Users/Login", nil, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Register(ctx context.Context, user domain.User) error {
	return c.do(ctx, "users.register", http.MethodPost, "/Users/Register", nil, user, nil)
}

func (c *Client) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var user domain.User
	if err := c.do(ctx, "users.get", http.MethodGet, "/Users/"+url.PathEscape(userID), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser uses the backend's "/Users/{id}Update" route, which has no separator.
// An empty password is left out so it stays unchanged.
func (c *Client) UpdateUser(ctx context.Context, userID string, user domain.User) error {
	user.ID = ""
	return c.do(ctx, "users.update", http.MethodPut, "/Users/"+url.PathEscape(userID)+"Update", nil, user, nil)
}
