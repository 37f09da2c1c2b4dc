package lock

import (
	"context"
	"testing"
	"time"

	xerrors "NearIntents/internal/errors"
)

func TestMemoryLockMutualExclusion(t *testing.T) {
	locker := NewMemory()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "alice.near", time.Minute)
	if err != nil {
		t.Fatalf("首次加锁失败: %v", err)
	}

	// 锁被占用时阻塞等待，ctx 超时后返回 CONFLICT。
	waitCtx, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(waitCtx, "alice.near", time.Minute); err == nil {
		t.Fatal("重复加锁应当失败")
	} else if xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("错误码应为 CONFLICT: %v", err)
	}

	// 不同账户互不影响。
	otherRelease, err := locker.Acquire(ctx, "bob.near", time.Minute)
	if err != nil {
		t.Fatalf("其他账户加锁失败: %v", err)
	}
	otherRelease()

	release()
	release() // 重复释放应当安全。

	if _, err := locker.Acquire(ctx, "alice.near", time.Minute); err != nil {
		t.Fatalf("释放后应当可以重新加锁: %v", err)
	}
}

func TestMemoryLockWaitsForRelease(t *testing.T) {
	locker := NewMemory()
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "alice.near", time.Minute)
	if err != nil {
		t.Fatalf("首次加锁失败: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		release()
	}()

	// 第二个等待者不报冲突，在释放后接力拿锁。
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	second, err := locker.Acquire(waitCtx, "alice.near", time.Minute)
	if err != nil {
		t.Fatalf("等待释放后加锁失败: %v", err)
	}
	defer second()
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("应当等待前一个持有者释放")
	}
}

func TestMemoryLockTTLExpiry(t *testing.T) {
	locker := NewMemory()
	current := time.Unix(1_700_000_000, 0)
	locker.now = func() time.Time { return current }
	ctx := context.Background()

	if _, err := locker.Acquire(ctx, "alice.near", time.Minute); err != nil {
		t.Fatalf("加锁失败: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := locker.Acquire(ctx, "alice.near", time.Minute); err != nil {
		t.Fatalf("TTL 过期后应当可以抢占: %v", err)
	}
}
