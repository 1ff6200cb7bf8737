package artifacts

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("artifact not found")

// Store is the CDN backing store. Puts are idempotent and Get returns ErrNotFound for missing
// keys.
type Store interface {
	Put(ctx context.Context, key string, value []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
