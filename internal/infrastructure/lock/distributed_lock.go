package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 加锁：SET key token NX PX ttl
// 释放：Lua 脚本比对 token 后删除，防止误删其他持有者的锁
//
// 锁只用于削峰和防重复提交，不承担资金正确性：
// Redis 不可用时返回 Unavailable，由调用方走数据库兜底
// ============================================================================

// AcquireResult 加锁结果
type AcquireResult int

const (
	Acquired AcquireResult = iota
	Contended
	Unavailable
)

func (r AcquireResult) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case Contended:
		return "contended"
	case Unavailable:
		return "unavailable"
	}
	return "unknown"
}

// Lease 已持有的锁
type Lease interface {
	Release(ctx context.Context) error
}

// Locker 锁提供方，err 只在 Unavailable 时非空
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, AcquireResult, error)
}

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 单个 key 上的锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Release 只删除自己持有的锁
func (l *DistributedLock) Release(ctx context.Context) error {
	return l.client.Eval(ctx, releaseScript, []string{l.key}, l.value).Err()
}

// RedisLocker 基于 Redis 的 Locker 实现
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, AcquireResult, error) {
	if l.client == nil {
		return nil, Unavailable, fmt.Errorf("redis client not configured")
	}
	dl := NewDistributedLock(l.client, key, uuid.NewString(), ttl)
	ok, err := dl.TryLock(ctx)
	if err != nil {
		return nil, Unavailable, err
	}
	if !ok {
		return nil, Contended, nil
	}
	return dl, Acquired, nil
}

// OrderLockKey 下单锁按买家维度
func OrderLockKey(buyerID int64) string {
	return fmt.Sprintf("order:lock:buyer:%d", buyerID)
}
