package cache

import (
	"context"
	"encoding/json"
	"fmt"
)

// Bucket is one owner's view of the cache. It can only see keys in its
// own namespace.
type Bucket struct {
	repo      Repository
	namespace string
}

func NewBucket(repo Repository, namespace string) *Bucket {
	return &Bucket{repo: repo, namespace: namespace}
}

func (b *Bucket) Namespace() string { return b.namespace }

// Load decodes the value stored under key into v. It reports false when the
// key is missing or the stored JSON does not fit v.
func (b *Bucket) Load(ctx context.Context, key string, v any) (bool, error) {
	raw, err := b.repo.Get(ctx, b.namespace, key)
	if err != nil {
		return false, err
	}
	if raw == nil {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, nil
	}
	return true, nil
}

func (b *Bucket) Store(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cache[%s/%s]: %w", b.namespace, key, err)
	}
	return b.repo.Set(ctx, b.namespace, key, raw)
}

// StoreMany encodes every value first and then writes them atomically.
func (b *Bucket) StoreMany(ctx context.Context, values map[string]any) error {
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode cache[%s/%s]: %w", b.namespace, k, err)
		}
		encoded[k] = raw
	}
	return b.repo.SetMany(ctx, b.namespace, encoded)
}

func (b *Bucket) Delete(ctx context.Context, keys ...string) error {
	return b.repo.Delete(ctx, b.namespace, keys...)
}

func (b *Bucket) Clear(ctx context.Context) error {
	return b.repo.Clear(ctx, b.namespace)
}
