package swap

import "context"

// RecoveryHandler 定义了在换汇任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行补偿或降级。
	// 返回的 Outcome 将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, job *Job, cause error) (*Outcome, error)
}
