package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	xerrors "NearIntents/internal/errors"
)

// Config 描述 Redis 连接参数。
type Config struct {
	Address  string
	Password string
	DB       int
	// Prefix 是键前缀，多套环境共用实例时用于隔离。
	Prefix string
}

// Lock 基于 SET NX PX 实现跨进程的账户锁。
// 释放时校验持有者令牌，避免误删他人后续获取的锁。
type Lock struct {
	client *redis.Client
	prefix string
}

// 比较令牌后删除，保证只释放自己持有的锁。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewLock 创建分布式锁实例并验证连通性。
func NewLock(cfg Config) (*Lock, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "nearintents:lock:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return &Lock{client: client, prefix: prefix}, nil
}

// pollInterval 是锁被他人持有时的重试间隔。
const pollInterval = 50 * time.Millisecond

// Acquire 实现 lock.Locker。锁被他人持有时阻塞轮询，
// 直到拿到锁或 ctx 结束。
func (l *Lock) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	fullKey := l.prefix + key

	for {
		ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取账户锁失败")
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, xerrors.Wrap(xerrors.CodeConflict, ctx.Err(),
				fmt.Sprintf("等待账户锁超时: %s", key))
		case <-time.After(pollInterval):
		}
	}

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
	}
	return release, nil
}

// Close 关闭 Redis 连接。
func (l *Lock) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
