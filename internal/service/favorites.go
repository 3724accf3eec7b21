package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Favorites is a user's favorites list, kept only in the session store.
type Favorites struct {
	mu     sync.Mutex
	store  SnapshotStore
	userID string
}

func newFavorites(snapshots SnapshotStore, userID string) *Favorites {
	return &Favorites{store: snapshots, userID: userID}
}

func (f *Favorites) List(ctx context.Context) (domain.Favorites, error) {
	if f.userID == "" {
		return nil, ErrLoginRequired
	}
	favs, err := f.store.LoadFavorites(ctx, f.userID)
	if err != nil {
		return nil, fmt.Errorf("load favorites: %w", err)
	}
	return favs, nil
}

// Toggle removes item when present and adds it otherwise.
func (f *Favorites) Toggle(ctx context.Context, item domain.FavoriteItem) (domain.Favorites, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	favs, err := f.List(ctx)
	if err != nil {
		return nil, false, err
	}
	favs, added := favs.Toggle(item)
	if err := f.store.SaveFavorites(ctx, f.userID, favs); err != nil {
		return nil, false, fmt.Errorf("save favorites: %w", err)
	}
	return favs, added, nil
}

func (f *Favorites) Remove(ctx context.Context, id int64) (domain.Favorites, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	favs, err := f.List(ctx)
	if err != nil {
		return nil, err
	}
	favs, removed := favs.Remove(id)
	if !removed {
		return favs, nil
	}
	if err := f.store.SaveFavorites(ctx, f.userID, favs); err != nil {
		return nil, fmt.Errorf("save favorites: %w", err)
	}
	return favs, nil
}
