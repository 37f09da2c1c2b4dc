package swap

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"NearIntents/internal/agent"
	xerrors "NearIntents/internal/errors"
	"NearIntents/pkg/logger"
)

// SubmitRequest 描述一次换汇任务的提交。ID 可选，相同 ID 重复提交
// 返回已存在的任务，保证提交幂等。
type SubmitRequest struct {
	ID       string            `json:"id,omitempty"`
	TokenIn  string            `json:"token_in"`
	AmountIn string            `json:"amount_in"`
	TokenOut string            `json:"token_out"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service 负责换汇任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	accountID  string
	maxRetries int
}

// NewService 构造换汇任务服务。
func NewService(store Store, producer Producer, accountID string, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, accountID: accountID, maxRetries: maxRetries}
}

// Submit 创建一个新的换汇任务并推送到队列。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Job, error) {
	if strings.TrimSpace(req.TokenIn) == "" || strings.TrimSpace(req.TokenOut) == "" {
		return nil, xerrors.New(CodeJobValidation, "token_in 与 token_out 不能为空")
	}
	if strings.TrimSpace(req.AmountIn) == "" {
		return nil, xerrors.New(CodeJobValidation, "amount_in 不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "换汇任务服务未初始化")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		job, err := s.store.Get(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	job := &Job{
		ID:         jobID,
		AccountID:  s.accountID,
		TokenIn:    req.TokenIn,
		AmountIn:   req.AmountIn,
		TokenOut:   req.TokenOut,
		Metadata:   cloneMetadata(req.Metadata),
		Status:     StatusPending,
		Attempts:   0,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			existing, getErr := s.store.Get(ctx, jobID)
			if getErr == nil {
				return existing, nil
			}
			if !stdErrors.Is(getErr, ErrJobNotFound) {
				return nil, getErr
			}
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("换汇任务入队失败", slog.Any("error", err), slog.String("swap_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "发布换汇任务到队列失败")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("换汇任务入队成功",
		slog.String("swap_id", jobID),
		slog.String("account_id", job.AccountID),
		slog.String("token_in", job.TokenIn),
		slog.String("token_out", job.TokenOut),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "换汇任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "换汇任务存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.List(ctx, options)
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (JobStats, error) {
	if s.store == nil {
		return JobStats{}, xerrors.New(xerrors.CodeInitializationFailure, "换汇任务存储未初始化")
	}
	options := buildListOptions(opts)
	return s.store.Stats(ctx, options)
}

// Close 释放资源。
func (s *Service) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return err
		}
	}
	if s.producer != nil {
		return s.producer.Close()
	}
	return nil
}

// WaitUntilCompleted 在指定超时时间内轮询任务状态。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == StatusSucceeded || job.Status == StatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// 将 agent 的会话结果折叠为任务结果。
func outcomeFromResult(result *agent.SwapResult) Outcome {
	if result == nil {
		return Outcome{}
	}
	return Outcome{
		SessionID:   result.SessionID,
		QuoteHash:   result.QuoteHash,
		AmountOut:   result.AmountOut,
		FinalState:  string(result.State),
		BusResponse: string(result.BusResponse),
	}
}
