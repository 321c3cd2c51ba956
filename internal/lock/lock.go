package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"tmc-schedule/internal/config"
)

// ErrLocked 另一个导入正在进行
var ErrLocked = errors.New("import already running")

// Release 释放锁
type Release func(ctx context.Context) error

// Locker 导入互斥锁
type Locker interface {
	Acquire(ctx context.Context, owner string) (Release, error)
}

// releaseScript 仅当持有者一致时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的锁
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisLocker 创建 Redis 锁
func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, key: key, ttl: ttl}
}

// Acquire 获取锁；已被占用时返回 ErrLocked
func (l *RedisLocker) Acquire(ctx context.Context, owner string) (Release, error) {
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if !ok {
		holder, err := l.client.Get(ctx, l.key).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrLocked, l.key)
		}
		return nil, fmt.Errorf("%w: held by %s", ErrLocked, holder)
	}

	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, owner).Err(); err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		return nil
	}, nil
}

// NopLocker 未配置 Redis 时使用
type NopLocker struct{}

// Acquire 总是成功
func (NopLocker) Acquire(context.Context, string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// New 根据配置创建锁；未配置地址或连接失败时退化为 NopLocker
// 返回的 close 函数用于关闭 Redis 客户端
func New(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (Locker, func() error) {
	noop := func() error { return nil }
	if cfg.Addr == "" {
		logger.Warn("redis addr not set, import lock disabled")
		return NopLocker{}, noop
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("redis ping failed, import lock disabled", "addr", cfg.Addr, "error", err)
		_ = client.Close()
		return NopLocker{}, noop
	}

	logger.Info("import lock enabled", "addr", cfg.Addr, "key", cfg.LockKey)
	return NewRedisLocker(client, cfg.LockKey, cfg.LockTTL.Std()), client.Close
}
