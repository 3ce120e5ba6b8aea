package redis

import (
	"context"
	"time"

	"github.com/datagridint/slv-extractor/common/config"

	"github.com/go-redis/redis/v8"
)

// Client Redis客户端类型别名
type Client = redis.Client

// 提取器每次运行只做加锁、解锁和发布一条运行事件
const (
	poolSize     = 2
	dialTimeout  = 5 * time.Second
	ioTimeout    = 3 * time.Second
	maxRetries   = 1
	pingDeadline = 5 * time.Second
)

// NewRedisClient 创建Redis客户端
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(redisOptions(cfg))
}

// redisOptions 短时运行进程使用的小连接池，超时较短，Redis 不可用时尽快失败
func redisOptions(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     poolSize,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		MaxRetries:   maxRetries,
	}
}

// Ping 测试Redis连接，最多等待 pingDeadline
func Ping(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingDeadline)
	defer cancel()
	return client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	return client.Close()
}
