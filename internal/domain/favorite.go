package domain

import "github.com/shopspring/decimal"

type FavoriteItem struct {
	ID       int64           `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"imageUrl"`
}

// Favorites is a list with set semantics keyed by ID.
type Favorites []FavoriteItem

func (f Favorites) Contains(id int64) bool {
	for _, item := range f {
		if item.ID == id {
			return true
		}
	}
	return false
}

// Toggle removes item if present, appends it otherwise. added reports which happened.
func (f Favorites) Toggle(item FavoriteItem) (out Favorites, added bool) {
	if rest, removed := f.Remove(item.ID); removed {
		return rest, false
	}
	out = make(Favorites, 0, len(f)+1)
	out = append(out, f...)
	return append(out, item), true
}

func (f Favorites) Remove(id int64) (Favorites, bool) {
	out := make(Favorites, 0, len(f))
	removed := false
	for _, item := range f {
		if item.ID == id {
			removed = true
			continue
		}
		out = append(out, item)
	}
	return out, removed
}
