package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"NearIntents/internal/history"
)

// SQLHistoryRepository 使用真实的 MySQL 数据库存储兑换历史。
type SQLHistoryRepository struct {
	db *sql.DB
}

// NewSQLHistoryRepository 创建连接池并初始化数据表。
func NewSQLHistoryRepository(ctx context.Context, cfg Config) (*SQLHistoryRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	repo := &SQLHistoryRepository{db: db}
	if err := repo.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

func (s *SQLHistoryRepository) initSchema(ctx context.Context) error {
	const schema = `CREATE TABLE IF NOT EXISTS swap_history (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        session_id VARCHAR(64) NOT NULL,
        account_id VARCHAR(255) NOT NULL,
        token_in VARCHAR(32) NOT NULL,
        amount_in VARCHAR(64) NOT NULL,
        token_out VARCHAR(32) NOT NULL,
        amount_out VARCHAR(64) DEFAULT '',
        quote_hash VARCHAR(128) DEFAULT '',
        final_state VARCHAR(32) NOT NULL,
        bus_response TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        UNIQUE KEY uniq_session_id (session_id),
        INDEX idx_account_id (account_id),
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("初始化 swap_history 表失败: %w", err)
	}
	return nil
}

// Save 将兑换记录写入 MySQL。
func (s *SQLHistoryRepository) Save(ctx context.Context, record history.Record) error {
	const stmt = `INSERT INTO swap_history
        (session_id, account_id, token_in, amount_in, token_out, amount_out, quote_hash, final_state, bus_response, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.SessionID,
		record.AccountID,
		record.TokenIn,
		record.AmountIn,
		record.TokenOut,
		record.AmountOut,
		record.QuoteHash,
		record.FinalState,
		record.BusResponse,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条兑换记录。
func (s *SQLHistoryRepository) ListLatest(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT session_id, account_id, token_in, amount_in, token_out, amount_out, quote_hash, final_state, bus_response, created_at
        FROM swap_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询兑换记录失败: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var record history.Record
		if err := rows.Scan(&record.SessionID, &record.AccountID, &record.TokenIn, &record.AmountIn, &record.TokenOut, &record.AmountOut, &record.QuoteHash, &record.FinalState, &record.BusResponse, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析兑换记录失败: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历兑换记录失败: %w", err)
	}

	return records, nil
}

// FindBySession 按会话标识查询单条兑换记录。
func (s *SQLHistoryRepository) FindBySession(ctx context.Context, sessionID string) (*history.Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, account_id, token_in, amount_in, token_out, amount_out, quote_hash, final_state, bus_response, created_at
        FROM swap_history WHERE session_id = ?`, sessionID)

	var record history.Record
	if err := row.Scan(&record.SessionID, &record.AccountID, &record.TokenIn, &record.AmountIn, &record.TokenOut, &record.AmountOut, &record.QuoteHash, &record.FinalState, &record.BusResponse, &record.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, history.ErrNotFound
		}
		return nil, fmt.Errorf("查询兑换记录失败: %w", err)
	}
	return &record, nil
}

// Close 关闭底层数据库连接。
func (s *SQLHistoryRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
