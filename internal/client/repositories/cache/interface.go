package cache

import "context"

// Repository is a namespaced byte store. Get returns (nil, nil) when the
// key is absent.
type Repository interface {
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Set(ctx context.Context, namespace, key string, value []byte) error
	SetMany(ctx context.Context, namespace string, values map[string][]byte) error
	Delete(ctx context.Context, namespace string, keys ...string) error
	List(ctx context.Context, namespace string) (map[string][]byte, error)
	Clear(ctx context.Context, namespace string) error
}
