package redis

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrLockHeld 表示锁已被其他实例持有
var ErrLockHeld = errors.New("lock already held")

// 只有持有者（token 一致）才能删除锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 基于 SET NX 的简单互斥锁
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLock 创建锁；ttl 必须覆盖一次完整运行的时长
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire 尝试获取锁，已被持有时返回 ErrLockHeld
func (l *Lock) Acquire(ctx context.Context, token string) error {
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockHeld
	}
	return nil
}

// Release 释放锁
func (l *Lock) Release(ctx context.Context, token string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
}
