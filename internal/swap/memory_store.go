package swap

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "NearIntents/internal/errors"
)

// MemoryStore 以内存方式保存换汇任务状态，主要用于测试。
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, job *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	if _, ok := m.jobs[job.ID]; ok {
		return ErrJobConflict
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	m.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get 返回任务。
func (m *MemoryStore) Get(_ context.Context, id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return cloneJob(job), nil
}

// Claim 将任务状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	switch job.Status {
	case StatusSucceeded:
		return cloneJob(job), ErrJobCompleted
	case StatusRunning:
		return cloneJob(job), ErrJobConflict
	}
	if job.Attempts >= job.MaxRetries {
		return cloneJob(job), ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return cloneJob(job), nil
}

// MarkSucceeded 记录成功结果。
func (m *MemoryStore) MarkSucceeded(_ context.Context, id string, result Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusSucceeded
	job.Result = &result
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// MarkFailed 标记任务失败。
func (m *MemoryStore) MarkFailed(_ context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.Status = StatusFailed
	job.LastError = lastError
	job.ErrorCode = string(code)
	job.UpdatedAt = time.Now().Unix()
	return nil
}

// List 返回符合过滤条件的任务列表。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if !matchesListFilters(job, opts) {
			continue
		}
		results = append(results, cloneJob(job))
	}

	sort.Slice(results, func(i, j int) bool {
		if opts.Order == SortByUpdatedAsc {
			if results[i].UpdatedAt == results[j].UpdatedAt {
				if results[i].CreatedAt == results[j].CreatedAt {
					return results[i].ID < results[j].ID
				}
				return results[i].CreatedAt < results[j].CreatedAt
			}
			return results[i].UpdatedAt < results[j].UpdatedAt
		}
		if results[i].UpdatedAt == results[j].UpdatedAt {
			if results[i].CreatedAt == results[j].CreatedAt {
				return results[i].ID < results[j].ID
			}
			return results[i].CreatedAt > results[j].CreatedAt
		}
		return results[i].UpdatedAt > results[j].UpdatedAt
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(results) {
			return []*Job{}, nil
		}
		results = results[opts.Offset:]
	}
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 统计符合过滤条件的任务数量与更新时间范围。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (JobStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	stats := JobStats{}
	for _, job := range m.jobs {
		if !matchesListFilters(job, opts) {
			continue
		}
		stats.Total++
		switch job.Status {
		case StatusPending:
			stats.Pending++
		case StatusRunning:
			stats.Running++
		case StatusSucceeded:
			stats.Succeeded++
		case StatusFailed:
			stats.Failed++
		}
		if job.UpdatedAt > stats.NewestUpdatedAt {
			stats.NewestUpdatedAt = job.UpdatedAt
		}
		if stats.OldestUpdatedAt == 0 || (job.UpdatedAt != 0 && job.UpdatedAt < stats.OldestUpdatedAt) {
			stats.OldestUpdatedAt = job.UpdatedAt
		}
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func cloneJob(job *Job) *Job {
	clone := *job
	if job.Result != nil {
		resultCopy := *job.Result
		clone.Result = &resultCopy
	}
	clone.Metadata = cloneMetadata(job.Metadata)
	return &clone
}

func matchesListFilters(job *Job, opts ListOptions) bool {
	if len(opts.Statuses) > 0 {
		matched := false
		for _, status := range opts.Statuses {
			if job.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if opts.AccountID != "" && job.AccountID != opts.AccountID {
		return false
	}
	if opts.UpdatedGTE > 0 && job.UpdatedAt < opts.UpdatedGTE {
		return false
	}
	if opts.UpdatedLTE > 0 && job.UpdatedAt > opts.UpdatedLTE {
		return false
	}
	if opts.HasResult != nil && jobHasResult(job) != *opts.HasResult {
		return false
	}
	if opts.Query != "" && !matchesQuery(job, opts.Query) {
		return false
	}
	return true
}

func jobHasResult(job *Job) bool {
	if job == nil || job.Result == nil {
		return false
	}
	result := job.Result
	return result.SessionID != "" || result.QuoteHash != "" || result.AmountOut != "" || result.FinalState != "" || result.BusResponse != ""
}

func matchesQuery(job *Job, query string) bool {
	fields := []string{job.ID, job.AccountID, job.TokenIn, job.TokenOut, job.LastError}
	if job.Result != nil {
		fields = append(fields, job.Result.SessionID, job.Result.QuoteHash, job.Result.FinalState)
	}
	for _, field := range fields {
		if strings.Contains(field, query) {
			return true
		}
	}
	return false
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
