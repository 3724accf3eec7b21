package service

import (
	"context"
	"testing"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavorites_ToggleAndRemove(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	f := env.sf.Favorites("dev-1", "42")

	favs, added, err := f.Toggle(ctx, domain.FavoriteItem{ID: 1, Name: "Shirt"})
	require.NoError(t, err)
	assert.True(t, added)
	assert.Len(t, favs, 1)

	_, _, err = f.Toggle(ctx, domain.FavoriteItem{ID: 2, Name: "Hat"})
	require.NoError(t, err)

	favs, added, err = f.Toggle(ctx, domain.FavoriteItem{ID: 1})
	require.NoError(t, err)
	assert.False(t, added)
	require.Len(t, favs, 1)
	assert.Equal(t, int64(2), favs[0].ID)

	favs, err = f.Remove(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, favs)

	favs, err = f.Remove(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, favs)

	stored, err := env.session().LoadFavorites(ctx, "42")
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestFavorites_RequireLogin(t *testing.T) {
	env := setupTestEnv(t)
	_, err := env.sf.Favorites("dev-1", "").List(context.Background())
	assert.ErrorIs(t, err, ErrLoginRequired)
}

func TestTracking(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	_, err := env.sf.Tracking(ctx, "")
	assert.ErrorIs(t, err, ErrLoginRequired)

	env.backend.serverCart = serverCart()
	env.backend.tracking = &domain.Tracking{Status: "Shipped", EstimatedDeliveryTime: "2 days"}
	tracking, err := env.sf.Tracking(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "Shipped", tracking.Status)
}
