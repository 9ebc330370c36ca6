// Package redis 持仓读模型 Redis 缓存
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/investmarket/internal/position/domain"
)

type SnapshotRedisRepository struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewSnapshotRedisRepository(client redis.UniversalClient) *SnapshotRedisRepository {
	return &SnapshotRedisRepository{
		client: client,
		prefix: "position:",
		ttl:    15 * time.Minute,
	}
}

func (r *SnapshotRedisRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	if snapshot == nil {
		return nil
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(snapshot.DealID, snapshot.HolderID), data, r.ttl).Err()
}

func (r *SnapshotRedisRepository) Get(ctx context.Context, dealID, holderID string) (*domain.Snapshot, error) {
	data, err := r.client.Get(ctx, r.key(dealID, holderID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snapshot domain.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *SnapshotRedisRepository) key(dealID, holderID string) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, dealID, holderID)
}
