// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"archive-view-go/internal/model"

	"github.com/go-redis/redis/v8"
)

const listingKey = "archives:listing"

// ListingRepository 在 Redis 中缓存后端的资源列表，供多个实例共享。
type ListingRepository interface {
	Get(ctx context.Context) ([]model.ArchiveResource, bool, error)
	Save(ctx context.Context, resources []model.ArchiveResource, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type redisListingRepository struct {
	redisClient *redis.Client
}

// NewListingRepository 创建一个新的 ListingRepository 实例。
func NewListingRepository(redisClient *redis.Client) ListingRepository {
	return &redisListingRepository{redisClient: redisClient}
}

// Get 读取缓存的资源列表，缓存不存在时返回 false。
func (r *redisListingRepository) Get(ctx context.Context) ([]model.ArchiveResource, bool, error) {
	jsonData, err := r.redisClient.Get(ctx, listingKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get resource listing: %w", err)
	}
	var resources []model.ArchiveResource
	if err := json.Unmarshal([]byte(jsonData), &resources); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal resource listing: %w", err)
	}
	return resources, true, nil
}

// Save 写入资源列表，ttl 为 0 时不写入。
func (r *redisListingRepository) Save(ctx context.Context, resources []model.ArchiveResource, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	jsonData, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("failed to marshal resource listing: %w", err)
	}
	if err := r.redisClient.Set(ctx, listingKey, jsonData, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set resource listing: %w", err)
	}
	return nil
}

// Invalidate 删除缓存的资源列表。
func (r *redisListingRepository) Invalidate(ctx context.Context) error {
	if err := r.redisClient.Del(ctx, listingKey).Err(); err != nil {
		return fmt.Errorf("failed to delete resource listing: %w", err)
	}
	return nil
}
