package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Session is the typed view of one device's snapshots.
type Session struct {
	kv KV
	id string
}

func NewSession(kv KV, sessionID string) *Session {
	return &Session{kv: kv, id: sessionID}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) key(k string) string {
	return sessionKey(s.id, k)
}

func (s *Session) loadJSON(ctx context.Context, key string, out any) error {
	data, err := s.kv.Get(ctx, s.key(key))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("unmarshal %s failed: %w", key, err)
	}
	return nil
}

func (s *Session) saveJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s failed: %w", key, err)
	}
	return s.kv.Set(ctx, s.key(key), data)
}

// LoadCart returns ErrNotFound when no snapshot exists. An empty userID
// addresses the anonymous cart.
func (s *Session) LoadCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart
	if err := s.loadJSON(ctx, CartKey(userID), &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}

func (s *Session) SaveCart(ctx context.Context, userID string, cart *domain.Cart) error {
	return s.saveJSON(ctx, CartKey(userID), cart)
}

// ClearCart removes both the user's snapshot and the anonymous one.
func (s *Session) ClearCart(ctx context.Context, userID string) error {
	keys := []string{s.key(KeyAnonymousCart)}
	if userID != "" {
		keys = append(keys, s.key(CartKey(userID)))
	}
	return s.kv.Delete(ctx, keys...)
}

func (s *Session) LoadFavorites(ctx context.Context, userID string) (domain.Favorites, error) {
	var favs domain.Favorites
	err := s.loadJSON(ctx, FavoritesKey(userID), &favs)
	if errors.Is(err, ErrNotFound) {
		return domain.Favorites{}, nil
	}
	if err != nil {
		return nil, err
	}
	return favs, nil
}

func (s *Session) SaveFavorites(ctx context.Context, userID string, favs domain.Favorites) error {
	return s.saveJSON(ctx, FavoritesKey(userID), favs)
}

// LoadIdentity returns the zero Identity for a device nobody is logged in on.
func (s *Session) LoadIdentity(ctx context.Context) (domain.Identity, error) {
	var id domain.Identity
	for key, dst := range map[string]*string{
		KeyUserID:   &id.UserID,
		KeyToken:    &id.Token,
		KeyUserName: &id.UserName,
	} {
		data, err := s.kv.Get(ctx, s.key(key))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.Identity{}, fmt.Errorf("load %s failed: %w", key, err)
		}
		*dst = string(data)
	}
	return id, nil
}

func (s *Session) SaveIdentity(ctx context.Context, id domain.Identity) error {
	for key, value := range map[string]string{
		KeyUserID:   id.UserID,
		KeyToken:    id.Token,
		KeyUserName: id.UserName,
	} {
		if err := s.kv.Set(ctx, s.key(key), []byte(value)); err != nil {
			return fmt.Errorf("save %s failed: %w", key, err)
		}
	}
	return nil
}

func (s *Session) ClearIdentity(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key(KeyUserID), s.key(KeyToken), s.key(KeyUserName))
}
