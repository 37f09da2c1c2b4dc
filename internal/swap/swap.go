package swap

import (
	stdErrors "errors"

	xerrors "NearIntents/internal/errors"
)

// Status 表示换汇任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Outcome 保存一次换汇任务的执行结果。
type Outcome struct {
	SessionID   string `json:"session_id"`
	QuoteHash   string `json:"quote_hash"`
	AmountOut   string `json:"amount_out"`
	FinalState  string `json:"final_state"`
	BusResponse string `json:"bus_response,omitempty"`
}

// Job 描述了排队执行的换汇任务。
type Job struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	TokenIn    string            `json:"token_in"`
	AmountIn   string            `json:"amount_in"`
	TokenOut   string            `json:"token_out"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Status     Status            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *Outcome          `json:"result,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

var (
	// ErrJobNotFound 表示指定的换汇任务不存在。
	ErrJobNotFound = xerrors.New(CodeJobNotFound, "swap job not found")
	// ErrJobConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrJobConflict = xerrors.New(CodeJobConflict, "swap job conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
	// ErrJobCompleted 表示任务已经成功完成。
	ErrJobCompleted = xerrors.New(CodeJobCompleted, "swap job already completed", xerrors.WithSeverity(xerrors.SeverityInfo))
	// ErrJobExhausted 表示任务的重试次数已经耗尽。
	ErrJobExhausted = xerrors.New(CodeJobExhausted, "swap job retries exhausted", xerrors.WithSeverity(xerrors.SeverityCritical))
)

const (
	CodeJobNotFound   xerrors.Code = "SWAP_NOT_FOUND"
	CodeJobConflict   xerrors.Code = "SWAP_CONFLICT"
	CodeJobCompleted  xerrors.Code = "SWAP_COMPLETED"
	CodeJobExhausted  xerrors.Code = "SWAP_RETRIES_EXHAUSTED"
	CodeJobValidation xerrors.Code = "SWAP_VALIDATION_FAILED"
	CodeJobPublish    xerrors.Code = "SWAP_PUBLISH_FAILED"
	CodeJobProcessing xerrors.Code = "SWAP_PROCESSING_FAILED"
	CodeJobCompensate xerrors.Code = "SWAP_COMPENSATION_FAILED"
)

func init() {
	xerrors.Register(CodeJobNotFound, xerrors.Attributes{
		Message:   "swap job not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobConflict, xerrors.Attributes{
		Message:   "swap job conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobCompleted, xerrors.Attributes{
		Message:   "swap job already completed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobExhausted, xerrors.Attributes{
		Message:   "swap job retries exhausted",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeJobValidation, xerrors.Attributes{
		Message:   "swap job validation failed",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeJobPublish, xerrors.Attributes{
		Message:   "failed to publish swap job",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobProcessing, xerrors.Attributes{
		Message:   "swap execution failed",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeJobCompensate, xerrors.Attributes{
		Message:   "swap compensation failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
}

// IsJobError 判断错误是否为统一的换汇任务错误。
func IsJobError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	if stdErrors.Is(err, ErrJobNotFound) {
		return target == CodeJobNotFound
	}
	if stdErrors.Is(err, ErrJobConflict) {
		return target == CodeJobConflict
	}
	if stdErrors.Is(err, ErrJobCompleted) {
		return target == CodeJobCompleted
	}
	if stdErrors.Is(err, ErrJobExhausted) {
		return target == CodeJobExhausted
	}
	return false
}

func cloneMetadata(metadata map[string]string) map[string]string {
	if metadata == nil {
		return nil
	}
	cloned := make(map[string]string, len(metadata))
	for key, value := range metadata {
		cloned[key] = value
	}
	return cloned
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
