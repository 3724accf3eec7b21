package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/api"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Accounts handles login state for one device session.
type Accounts struct {
	users UserAPI
	store SnapshotStore
	log   *zap.Logger
	clock func() time.Time
}

func newAccounts(users UserAPI, snapshots SnapshotStore, log *zap.Logger, clock func() time.Time) *Accounts {
	return &Accounts{users: users, store: snapshots, log: log, clock: clock}
}

// Identity returns who is logged in on this device. An expired token logs the session out.
func (a *Accounts) Identity(ctx context.Context) (domain.Identity, error) {
	id, err := a.store.LoadIdentity(ctx)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("load identity: %w", err)
	}
	if id.Token != "" && tokenExpired(id.Token, a.clock()) {
		a.log.Info("session token expired", zap.String("user_id", id.UserID))
		if err := a.store.ClearIdentity(ctx); err != nil {
			return domain.Identity{}, fmt.Errorf("clear identity: %w", err)
		}
		return domain.Identity{}, nil
	}
	return id, nil
}

// tokenExpired reads the exp claim without verifying the signature; the
// backend stays the authority. Opaque tokens never expire locally.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !exp.After(now)
}

func (a *Accounts) Login(ctx context.Context, email, password string) (domain.Identity, error) {
	if err := validateLogin(email, password); err != nil {
		return domain.Identity{}, err
	}

	resp, err := a.users.Login(ctx, email, password)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("login: %w", err)
	}
	if resp.ID == "" || resp.Token == "" {
		return domain.Identity{}, fmt.Errorf("login: %w: missing id or token", api.ErrMalformedResponse)
	}

	id := domain.Identity{
		UserID:   string(resp.ID),
		Token:    resp.Token,
		UserName: strings.TrimSpace(resp.FirstName + " " + resp.LastName),
	}
	if err := a.store.SaveIdentity(ctx, id); err != nil {
		return domain.Identity{}, fmt.Errorf("save identity: %w", err)
	}
	return id, nil
}

func (a *Accounts) Register(ctx context.Context, user domain.User) error {
	if err := validateUser(user, true); err != nil {
		return err
	}
	user.ID = ""
	if err := a.users.Register(ctx, user); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func (a *Accounts) Profile(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, ErrLoginRequired
	}
	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	user.Password = ""
	return user, nil
}

// UpdateProfile keeps the current password when user.Password is empty and
// refreshes the greeting name stored for the session.
func (a *Accounts) UpdateProfile(ctx context.Context, userID string, user domain.User) error {
	if userID == "" {
		return ErrLoginRequired
	}
	if err := validateUser(user, false); err != nil {
		return err
	}
	if err := a.users.UpdateUser(ctx, userID, user); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}

	id, err := a.store.LoadIdentity(ctx)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if id.UserID != userID {
		return nil
	}
	id.UserName = user.DisplayName()
	if err := a.store.SaveIdentity(ctx, id); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

// Logout forgets the identity and both cart snapshots of the device.
func (a *Accounts) Logout(ctx context.Context, userID string) error {
	if err := a.store.ClearIdentity(ctx); err != nil {
		return fmt.Errorf("clear identity: %w", err)
	}
	if err := a.store.ClearCart(ctx, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
