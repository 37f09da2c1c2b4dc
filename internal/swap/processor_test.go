package swap

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"NearIntents/internal/account"
	"NearIntents/internal/agent"
	"NearIntents/internal/asset"
	"NearIntents/internal/chain"
	xerrors "NearIntents/internal/errors"
	"NearIntents/internal/intents"
	"NearIntents/internal/intents/solverbus"
)

type fakeOrchestrator struct {
	processed atomic.Int32
	latency   time.Duration
	failWith  error
	failCount atomic.Int32
	failLimit int32
}

func (f *fakeOrchestrator) ExecuteSwap(ctx context.Context, req agent.SwapRequest) (*agent.SwapResult, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.failWith != nil && (f.failLimit == 0 || f.failCount.Load() < f.failLimit) {
		f.failCount.Add(1)
		return nil, f.failWith
	}
	f.processed.Add(1)
	return &agent.SwapResult{
		SessionID: "sess",
		QuoteHash: "hash",
		AmountOut: "2.01",
		State:     agent.StateSettled,
	}, nil
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	orch := &fakeOrchestrator{latency: 10 * time.Millisecond}

	service := NewService(store, queue, "alice.near", 3)
	processor := NewProcessor(orch, store, queue, queue, WithWorkerCount(8))

	go func() {
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		id := fmt.Sprintf("swap-%d", i)
		if _, err := service.Submit(ctx, SubmitRequest{ID: id, TokenIn: "NEAR", AmountIn: "1", TokenOut: "USDC"}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		if int(orch.processed.Load()) >= total {
			cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理，已完成 %d", orch.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func TestProcessorRetriesRetryableFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	// NO_LIQUIDITY 可重试：第一次失败后应当重投并最终成功。
	orch := &fakeOrchestrator{
		failWith:  xerrors.New(agent.CodeNoLiquidity, "no quotes"),
		failLimit: 1,
	}

	service := NewService(store, queue, "alice.near", 3)
	processor := NewProcessor(orch, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	job, err := service.Submit(ctx, SubmitRequest{TokenIn: "NEAR", AmountIn: "1", TokenOut: "USDC"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	// 任务在重试间隙会短暂处于失败态，轮询直到最终成功。
	var final *Job
	deadline := time.After(3 * time.Second)
	for final == nil || final.Status != StatusSucceeded {
		select {
		case <-deadline:
			t.Fatalf("重试后应当成功: %+v", final)
		case <-time.After(20 * time.Millisecond):
		}
		var getErr error
		final, getErr = service.Get(ctx, job.ID)
		if getErr != nil {
			t.Fatalf("查询任务失败: %v", getErr)
		}
	}
	if final.Attempts < 2 {
		t.Fatalf("应当至少尝试两次: %d", final.Attempts)
	}
	if final.Result == nil || final.Result.QuoteHash != "hash" {
		t.Fatalf("结果未记录: %+v", final.Result)
	}
}

func TestProcessorStopsOnNonRetryableFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	// INSUFFICIENT_BALANCE 不可重试：一次失败即终止。
	orch := &fakeOrchestrator{
		failWith: xerrors.New(agent.CodeInsufficientBalance, "balance too low"),
	}

	service := NewService(store, queue, "alice.near", 3)
	processor := NewProcessor(orch, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	job, err := service.Submit(ctx, SubmitRequest{TokenIn: "NEAR", AmountIn: "100", TokenOut: "USDC"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("终态应为失败: %+v", final)
	}
	if final.ErrorCode != string(agent.CodeInsufficientBalance) {
		t.Fatalf("错误码未记录: %s", final.ErrorCode)
	}
	if final.Attempts != 1 {
		t.Fatalf("不可重试的失败只应尝试一次: %d", final.Attempts)
	}
}

func TestServiceSubmitIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, "alice.near", 3)

	first, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", TokenIn: "NEAR", AmountIn: "1", TokenOut: "USDC"})
	if err != nil {
		t.Fatalf("首次提交失败: %v", err)
	}
	second, err := service.Submit(ctx, SubmitRequest{ID: "fixed-id", TokenIn: "NEAR", AmountIn: "1", TokenOut: "USDC"})
	if err != nil {
		t.Fatalf("重复提交失败: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("相同 ID 应返回同一任务: %s vs %s", first.ID, second.ID)
	}

	if _, err := service.Submit(ctx, SubmitRequest{TokenIn: "", AmountIn: "1", TokenOut: "USDC"}); err == nil {
		t.Fatal("缺少 token_in 应当报错")
	}
}

// serialAccount 提供一个余额充足、存储已登记的账户实现，
// 供处理器驱动真实编排器的测试使用。
type serialAccount struct {
	key ed25519.PrivateKey
}

func newSerialAccount(t *testing.T) *serialAccount {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("生成密钥失败: %v", err)
	}
	return &serialAccount{key: priv}
}

func (s *serialAccount) AccountID() string { return "alice.near" }

func (s *serialAccount) PublicKeyString() string {
	return "ed25519:" + base58.Encode(s.key.Public().(ed25519.PublicKey))
}

func (s *serialAccount) Sign(data []byte) (string, error) {
	return "ed25519:" + base58.Encode(ed25519.Sign(s.key, data)), nil
}

func (s *serialAccount) QueryState(ctx context.Context, accountID string) (account.AccountState, error) {
	return account.AccountState{BalanceBaseUnits: "10000000000000000000000000"}, nil
}

func (s *serialAccount) ViewFunction(ctx context.Context, contractID, method string, args any) ([]byte, error) {
	if method == "storage_balance_of" {
		return []byte(`{"total":"1250000000000000000000"}`), nil
	}
	return []byte("null"), nil
}

func (s *serialAccount) SubmitFunctionCall(ctx context.Context, contractID, method string, args any, gas uint64, depositYocto string) (chain.TxOutcome, error) {
	return chain.TxOutcome{Hash: "tx"}, nil
}

// serialBus 人为拉长询价耗时，让两个 worker 的执行窗口重叠。
type serialBus struct {
	delay time.Duration
}

func (b *serialBus) FetchOptions(ctx context.Context, request intents.WireRequest) []intents.Option {
	time.Sleep(b.delay)
	return []intents.Option{{QuoteHash: "hash", AmountOut: "2010000"}}
}

func (b *serialBus) PublishIntent(ctx context.Context, commitment intents.Commitment, quoteHashes []string) (solverbus.PublishResult, error) {
	return solverbus.PublishResult{Raw: json.RawMessage(`{"status":"OK"}`)}, nil
}

func TestProcessorSerializesSameAccountJobs(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	registry := asset.NewRegistry()
	orch := agent.New(registry, newSerialAccount(t), &serialBus{delay: 100 * time.Millisecond})

	service := NewService(store, queue, "alice.near", 3)
	processor := NewProcessor(orch, store, queue, queue, WithWorkerCount(2))

	go func() { _ = processor.Start(ctx) }()

	// 同一账户的两个任务同时进入两个 worker：后到者等待账户锁，
	// 而不是吃掉冲突错误后终止。
	ids := []string{"swap-a", "swap-b"}
	for _, id := range ids {
		if _, err := service.Submit(ctx, SubmitRequest{ID: id, TokenIn: "NEAR", AmountIn: "2", TokenOut: "USDC"}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	for _, id := range ids {
		final, err := service.WaitUntilCompleted(ctx, id, 20*time.Millisecond)
		if err != nil {
			t.Fatalf("等待任务 %s 完成失败: %v", id, err)
		}
		if final.Status != StatusSucceeded {
			t.Fatalf("任务 %s 应当成功: status=%s code=%s error=%s",
				id, final.Status, final.ErrorCode, final.LastError)
		}
		if final.Attempts != 1 {
			t.Fatalf("任务 %s 不应消耗重试预算: attempts=%d", id, final.Attempts)
		}
	}
}

func TestProcessorStorageRegistrationFailureIsTerminal(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	// 存储登记失败对本次任务是致命的，不应静默重投。
	orch := &fakeOrchestrator{
		failWith: xerrors.New(agent.CodeStorageRegistrationFailed, "storage_deposit 被合约拒绝"),
	}

	service := NewService(store, queue, "alice.near", 3)
	processor := NewProcessor(orch, store, queue, queue, WithWorkerCount(1))

	go func() { _ = processor.Start(ctx) }()

	job, err := service.Submit(ctx, SubmitRequest{TokenIn: "NEAR", AmountIn: "1", TokenOut: "USDC"})
	if err != nil {
		t.Fatalf("提交任务失败: %v", err)
	}

	final, err := service.WaitUntilCompleted(ctx, job.ID, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("等待任务完成失败: %v", err)
	}
	if final.Status != StatusFailed {
		t.Fatalf("终态应为失败: %+v", final)
	}
	if final.Attempts != 1 {
		t.Fatalf("存储登记失败只应尝试一次: %d", final.Attempts)
	}
	if final.ErrorCode != string(agent.CodeStorageRegistrationFailed) {
		t.Fatalf("错误码未记录: %s", final.ErrorCode)
	}
}
