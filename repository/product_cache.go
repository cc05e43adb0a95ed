package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/hkshop/storefront/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultProductCacheTTL = 5 * time.Minute

// CachedProductRepository puts a Redis read-through cache in front of
// another catalog. Cache failures degrade to the underlying catalog.
type CachedProductRepository struct {
	next    ProductRepository
	client  *redis.Client
	baseTTL time.Duration
	logger  *zap.Logger
}

func NewCachedProductRepository(next ProductRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedProductRepository {
	if ttl <= 0 {
		ttl = defaultProductCacheTTL
	}
	return &CachedProductRepository{next: next, client: client, baseTTL: ttl, logger: logger}
}

func (c *CachedProductRepository) LookupProduct(ctx context.Context, pid int64) (*models.Product, error) {
	key := productCacheKey(pid)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var product models.Product
		if err := json.Unmarshal(data, &product); err == nil {
			return &product, nil
		}
		c.logger.Warn("Discarding corrupt catalog cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("Catalog cache read failed", zap.String("key", key), zap.Error(err))
	}

	product, err := c.next.LookupProduct(ctx, pid)
	if err != nil {
		return nil, err
	}
	if err := c.set(ctx, key, product); err != nil {
		c.logger.Warn("Catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
	return product, nil
}

// Invalidate drops a product from the cache after a catalog edit.
func (c *CachedProductRepository) Invalidate(ctx context.Context, pid int64) error {
	if err := c.client.Del(ctx, productCacheKey(pid)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (c *CachedProductRepository) set(ctx context.Context, key string, product *models.Product) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product failed: %w", err)
	}
	jitter := time.Duration(rand.Int63n(int64(time.Minute)))
	if err := c.client.Set(ctx, key, payload, c.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func productCacheKey(pid int64) string {
	return fmt.Sprintf("catalog:product:%d", pid)
}
