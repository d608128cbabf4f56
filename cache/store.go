package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Store keeps JSON-encoded values of type V under a key prefix.
type Store[V any] struct {
	client    *Client
	keyPrefix string
}

// NewStore creates a Store. Keys are written as keyPrefix:key.
func NewStore[V any](client *Client, keyPrefix string) *Store[V] {
	return &Store[V]{client: client, keyPrefix: keyPrefix}
}

func (s *Store[V]) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load returns (nil, nil) when key is absent or expired.
func (s *Store[V]) Load(ctx context.Context, key string) (*V, error) {
	raw, err := s.client.rdb.Get(ctx, s.fullKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache load %q: %w", key, err)
	}

	var val V
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, fmt.Errorf("cache unmarshal %q: %w", key, err)
	}
	return &val, nil
}

// Save stores val for ttl. A ttl of 0 keeps the entry until evicted.
func (s *Store[V]) Save(ctx context.Context, key string, val *V, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("cache marshal %q: %w", key, err)
	}
	if err := s.client.rdb.Set(ctx, s.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache save %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store[V]) Delete(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("cache delete %q: %w", key, err)
	}
	return nil
}
