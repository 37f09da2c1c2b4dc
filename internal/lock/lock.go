// Package lock 定义按账户串行化换汇流程的互斥原语。
// 同一账户的 nonce 与访问密钥序号不允许并发消费，
// 编排器在发起任何链上写操作前必须先取得账户锁。
package lock

import (
	"context"
	"sync"
	"time"

	xerrors "NearIntents/internal/errors"
)

// Locker 是账户级互斥锁的抽象。Acquire 返回的释放函数必须被调用，
// 否则锁只能等待 TTL 过期。
type Locker interface {
	// Acquire 获取 key 对应的锁，持有时长为 ttl。锁被他人持有时
	// 阻塞等待，直到锁释放或 ctx 结束；ctx 结束返回 CONFLICT 错误。
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// defaultPollInterval 是等待锁释放时的重试间隔。
const defaultPollInterval = 20 * time.Millisecond

// Memory 是单进程内的账户锁，用于测试与单实例部署。
type Memory struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
	poll time.Duration
}

// NewMemory 创建内存锁。
func NewMemory() *Memory {
	return &Memory{
		held: make(map[string]time.Time),
		now:  time.Now,
		poll: defaultPollInterval,
	}
}

// Acquire 实现 Locker。
func (m *Memory) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	for {
		if release, ok := m.tryAcquire(key, ttl); ok {
			return release, nil
		}
		select {
		case <-ctx.Done():
			return nil, xerrors.Wrap(xerrors.CodeConflict, ctx.Err(),
				"等待账户锁超时: "+key)
		case <-time.After(m.poll):
		}
	}
}

func (m *Memory) tryAcquire(key string, ttl time.Duration) (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.held[key]; ok && now.Before(expiry) {
		return nil, false
	}
	m.held[key] = now.Add(ttl)

	var once sync.Once
	release := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}
	return release, true
}
