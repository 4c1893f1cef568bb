package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tx-guard-sol/internal/types"
)

const riskKeyPrefix = "guard:risk"

// RedisRiskCache 是风险评估结果的共享缓存层，
// 多个 guard 实例间复用同一批外部查询结果，TTL 与内存层一致。
type RedisRiskCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisRiskCache(rdb *redis.Client, ttl time.Duration) *RedisRiskCache {
	return &RedisRiskCache{rdb: rdb, ttl: ttl}
}

func riskKey(asset types.Pubkey) string {
	return fmt.Sprintf("%s:%s", riskKeyPrefix, asset)
}

// Get 查询某资产的缓存评估结果。redis.Nil 视为未命中而非错误。
func (c *RedisRiskCache) Get(ctx context.Context, asset types.Pubkey) (RiskMetrics, bool, error) {
	val, err := c.rdb.Get(ctx, riskKey(asset)).Bytes()
	switch {
	case err == redis.Nil:
		return RiskMetrics{}, false, nil
	case err != nil:
		return RiskMetrics{}, false, fmt.Errorf("redis get error: %w", err)
	}

	var m RiskMetrics
	if err := json.Unmarshal(val, &m); err != nil {
		// 脏数据按未命中处理，等待覆盖写入
		return RiskMetrics{}, false, nil
	}
	return m, true, nil
}

// Put 写入一条评估结果，带 TTL。
func (c *RedisRiskCache) Put(ctx context.Context, m RiskMetrics) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal risk metrics: %w", err)
	}
	if err := c.rdb.Set(ctx, riskKey(m.Asset), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}
