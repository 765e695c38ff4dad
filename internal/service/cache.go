package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/flicky/smart-inventory/internal/model"
)

const productCacheTTL = 60 * time.Second

// productCache is a read-through cache of single products. A nil client disables it.
type productCache struct {
	rdb *redis.Client
}

func productCacheKey(id uuid.UUID) string { return "product:" + id.String() }

func (c productCache) get(ctx context.Context, id uuid.UUID) (*model.Product, bool) {
	if c.rdb == nil {
		return nil, false
	}
	cached, err := c.rdb.Get(ctx, productCacheKey(id)).Result()
	if err != nil {
		return nil, false
	}
	var p model.Product
	if json.Unmarshal([]byte(cached), &p) != nil {
		return nil, false
	}
	return &p, true
}

func (c productCache) set(ctx context.Context, p *model.Product) {
	if c.rdb == nil {
		return
	}
	if data, err := json.Marshal(p); err == nil {
		c.rdb.Set(ctx, productCacheKey(p.ID), data, productCacheTTL)
	}
}

func (c productCache) invalidate(ctx context.Context, ids ...uuid.UUID) {
	if c.rdb == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, productCacheKey(id))
	}
	c.rdb.Del(ctx, keys...)
}
