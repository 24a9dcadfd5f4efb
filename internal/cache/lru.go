package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LocalCache is an in-process cache for single-instance deployments. All
// entries share the TTL given at construction; the per-call ttl is ignored.
type LocalCache struct {
	lru *expirable.LRU[string, []byte]
}

func NewLocalCache(size int, ttl time.Duration) *LocalCache {
	return &LocalCache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *LocalCache) Get(_ context.Context, key string, dest any) error {
	val, ok := c.lru.Get(key)
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(val, dest)
}

func (c *LocalCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value: %w", err)
	}
	c.lru.Add(key, data)
	return nil
}

func (c *LocalCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		c.lru.Remove(k)
	}
	return nil
}
