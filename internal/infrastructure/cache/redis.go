package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mallledger/internal/config"
	"mallledger/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// InitRedis 创建 Redis 客户端
//
// Ping 失败只记录告警：下单锁、幂等键都有数据库兜底，Redis 恢复后客户端会自动重连
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("连接 Redis 失败，进入降级模式", zap.Error(err))
		return client
	}

	logger.Info("Redis 连接成功")
	return client
}

// IdempotencyStore 幂等键 -> 订单号 的映射
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(key string) string {
	return "idem:order:" + key
}

// Get 返回幂等键对应的订单号，未命中时 found 为 false
func (s *IdempotencyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, nil
	}
	orderNo, err := s.client.Get(ctx, idempotencyKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return orderNo, true, nil
}

// Put 记录幂等键，已存在时保留原值
func (s *IdempotencyStore) Put(ctx context.Context, key, orderNo string) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.SetNX(ctx, idempotencyKey(key), orderNo, s.ttl).Err()
}
