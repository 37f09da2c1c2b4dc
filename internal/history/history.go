// Package history 定义已结算兑换的落库模型与仓库抽象。
// 具体实现分别位于本包（本地文件）与 internal/storage/mysql（MySQL）。
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNotFound 表示指定会话的兑换记录不存在。
var ErrNotFound = errors.New("兑换记录不存在")

// Record 表示一次已结算兑换的落库结构。
type Record struct {
	SessionID   string `json:"session_id"`
	AccountID   string `json:"account_id"`
	TokenIn     string `json:"token_in"`
	AmountIn    string `json:"amount_in"`
	TokenOut    string `json:"token_out"`
	AmountOut   string `json:"amount_out"`
	QuoteHash   string `json:"quote_hash"`
	FinalState  string `json:"final_state"`
	BusResponse string `json:"bus_response"`
	CreatedAt   int64  `json:"created_at"`
}

// Repository 抽象兑换历史数据的持久化接口。
type Repository interface {
	Save(ctx context.Context, record Record) error
	ListLatest(ctx context.Context, limit int) ([]Record, error)
	FindBySession(ctx context.Context, sessionID string) (*Record, error)
}

// maxCachedRecords 限制内存中保留的最近记录条数。
const maxCachedRecords = 512

// Memory 使用本地 JSON 行文件持久化兑换历史，方便迭代开发与单实例部署。
type Memory struct {
	mu       sync.RWMutex
	dataFile string
	records  []Record
}

// NewMemory 创建一个文件兑换历史仓库。
func NewMemory(dataDir string) (*Memory, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "swaps.log")
	repo := &Memory{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录兑换结果。
func (m *Memory) Save(_ context.Context, record Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开兑换日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化兑换记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入兑换日志失败: %w", err)
	}

	m.records = append([]Record{record}, m.records...)
	if len(m.records) > maxCachedRecords {
		m.records = m.records[:maxCachedRecords]
	}
	return nil
}

// ListLatest 返回最近的兑换记录，按时间倒序排列。
func (m *Memory) ListLatest(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]Record, limit)
	copy(results, m.records[:limit])
	return results, nil
}

// FindBySession 按会话标识查找兑换记录。
func (m *Memory) FindBySession(_ context.Context, sessionID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.records {
		if m.records[i].SessionID == sessionID {
			record := m.records[i]
			return &record, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取兑换日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []Record
	for scanner.Scan() {
		var record Record
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]Record{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析兑换日志失败: %w", err)
	}

	if len(restored) > maxCachedRecords {
		restored = restored[:maxCachedRecords]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}
