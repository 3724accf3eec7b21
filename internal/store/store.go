package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// KV is the raw key-value mirror behind a Session. Values are opaque bytes.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}
