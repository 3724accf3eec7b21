package store

import "fmt"

// Snapshot keys as the storefront has always named them. Every key is
// additionally scoped to the device session that owns it.
const (
	KeyAnonymousCart = "cart"
	KeyUserID        = "userId"
	KeyToken         = "token"
	KeyUserName      = "userName"
)

func CartKey(userID string) string {
	if userID == "" {
		return KeyAnonymousCart
	}
	return "cart_" + userID
}

func FavoritesKey(userID string) string {
	return "favorite_items_" + userID
}

func sessionKey(sessionID, key string) string {
	return fmt.Sprintf("session:%s:%s", sessionID, key)
}
