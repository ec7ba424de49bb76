// internal/service/inventory/infrastructure/adapter/stock_redis_cache.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/inventory/domain"
)

// StockRedisCache 实现 application.StockCache：公共库存读的旁路缓存。
// 缓存只是读加速，任何失败都退化为直接读库，绝不影响正确性。
type StockRedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStockRedisCache(client *redis.Client, ttl time.Duration) *StockRedisCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StockRedisCache{client: client, ttl: ttl}
}

func stockKey(productID int64) string {
	return fmt.Sprintf("inventory:stock:%d", productID)
}

func (c *StockRedisCache) Get(ctx context.Context, productID int64) (*domain.StockItem, bool) {
	raw, ok, err := c.client.GetBytes(ctx, stockKey(productID))
	if err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("stock cache read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var item domain.StockItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, false
	}
	return &item, true
}

func (c *StockRedisCache) Set(ctx context.Context, item *domain.StockItem) {
	raw, err := json.Marshal(item)
	if err != nil {
		return
	}
	if err := c.client.SetBytes(ctx, stockKey(item.ProductID), raw, c.ttl); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("stock cache write failed")
	}
}

func (c *StockRedisCache) Invalidate(ctx context.Context, productIDs ...int64) {
	keys := make([]string, 0, len(productIDs))
	for _, productID := range productIDs {
		keys = append(keys, stockKey(productID))
	}
	if err := c.client.Delete(ctx, keys...); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Msg("stock cache invalidation failed")
	}
}
