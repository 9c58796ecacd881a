package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
)

// JobMutex 定时任务的跨实例互斥，基于 redsync
type JobMutex struct {
	client *redis.Client
	rs     *redsync.Redsync
}

func NewJobMutex(client *redis.Client) *JobMutex {
	return &JobMutex{
		client: client,
		rs:     redsync.New(goredis.NewPool(client)),
	}
}

// TryLock 尝试一次，不重试；返回的 unlock 只在 Acquired 时非空
func (m *JobMutex) TryLock(ctx context.Context, job string, ttl time.Duration) (func(), AcquireResult, error) {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return nil, Unavailable, err
	}

	mutex := m.rs.NewMutex("job:lock:"+job, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.TryLockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, Contended, nil
		}
		return nil, Contended, err
	}

	unlock := func() {
		_, _ = mutex.UnlockContext(context.Background())
	}
	return unlock, Acquired, nil
}
