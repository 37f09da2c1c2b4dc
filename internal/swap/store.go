package swap

import (
	"context"

	xerrors "NearIntents/internal/errors"
)

// Store 抽象了换汇任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, result Outcome) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (JobStats, error)
	Close() error
}
