package swap

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "NearIntents/internal/errors"
)

// MySQLStore 使用 MySQL 记录换汇任务状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS swap_jobs (
        id VARCHAR(64) PRIMARY KEY,
        account_id VARCHAR(255) NOT NULL,
        token_in VARCHAR(32) NOT NULL,
        amount_in VARCHAR(64) NOT NULL,
        token_out VARCHAR(32) NOT NULL,
        metadata TEXT,
        status VARCHAR(32) NOT NULL,
        attempts INT NOT NULL DEFAULT 0,
        max_retries INT NOT NULL DEFAULT 3,
        last_error TEXT,
        error_code VARCHAR(64) DEFAULT '',
        result_session_id VARCHAR(64) DEFAULT '',
        result_quote_hash VARCHAR(128) DEFAULT '',
        result_amount_out VARCHAR(64) DEFAULT '',
        result_final_state VARCHAR(32) DEFAULT '',
        result_bus_response TEXT,
        created_at BIGINT NOT NULL,
        updated_at BIGINT NOT NULL,
        INDEX idx_swap_status (status),
        INDEX idx_swap_account (account_id),
        INDEX idx_swap_updated (updated_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 swap_jobs 表失败")
	}
	return nil
}

// Create 插入新的换汇任务记录。
func (s *MySQLStore) Create(ctx context.Context, job *Job) error {
	if job == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "job 不能为空")
	}
	if strings.TrimSpace(job.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	now := time.Now().Unix()
	job.CreatedAt = now
	job.UpdatedAt = now

	metadataValue, err := marshalMetadata(job.Metadata)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码任务 metadata 失败")
	}

	const stmt = `INSERT INTO swap_jobs
        (id, account_id, token_in, amount_in, token_out, metadata, status, attempts, max_retries, last_error, error_code, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		job.ID,
		job.AccountID,
		job.TokenIn,
		job.AmountIn,
		job.TokenOut,
		metadataValue,
		job.Status,
		job.Attempts,
		job.MaxRetries,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrJobConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Job, error) {
	const stmt = `SELECT id, account_id, token_in, amount_in, token_out, metadata, status, attempts, max_retries, last_error, error_code,
        result_session_id, result_quote_hash, result_amount_out, result_final_state, result_bus_response, created_at, updated_at
        FROM swap_jobs WHERE id = ?`

	row := s.db.QueryRowContext(ctx, stmt, id)
	job, err := scanJob(row.Scan)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return job, nil
}

// Claim 将任务标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Job, error) {
	const updateStmt = `UPDATE swap_jobs SET status = ?, attempts = attempts + 1, updated_at = ?, last_error = '', error_code = ''
        WHERE id = ? AND status IN (?, ?) AND attempts < max_retries`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, updateStmt,
		StatusRunning,
		now,
		id,
		StatusPending,
		StatusFailed,
	)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	if affected == 0 {
		job, getErr := s.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		switch job.Status {
		case StatusSucceeded:
			return job, ErrJobCompleted
		case StatusRunning:
			return job, ErrJobConflict
		default:
			if job.Attempts >= job.MaxRetries {
				return job, ErrJobExhausted
			}
			return job, ErrJobConflict
		}
	}
	return s.Get(ctx, id)
}

// MarkSucceeded 将任务标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result Outcome) error {
	const stmt = `UPDATE swap_jobs SET status = ?, result_session_id = ?, result_quote_hash = ?, result_amount_out = ?,
        result_final_state = ?, result_bus_response = ?, updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		result.SessionID,
		result.QuoteHash,
		result.AmountOut,
		result.FinalState,
		result.BusResponse,
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// MarkFailed 将任务标记为失败，并在必要时终止重试。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, _ bool) error {
	const stmt = `UPDATE swap_jobs SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	now := time.Now().Unix()
	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed,
		lastError,
		string(code),
		now,
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务失败失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrJobNotFound
	}
	return nil
}

// List 返回符合过滤条件的任务列表。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()

	query := `SELECT id, account_id, token_in, amount_in, token_out, metadata, status, attempts, max_retries, last_error, error_code,
        result_session_id, result_quote_hash, result_amount_out, result_final_state, result_bus_response, created_at, updated_at FROM swap_jobs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	order := " ORDER BY updated_at DESC, created_at DESC, id DESC"
	if opts.Order == SortByUpdatedAsc {
		order = " ORDER BY updated_at ASC, created_at ASC, id ASC"
	}
	query += order + " LIMIT ? OFFSET ?"

	args := append(filterArgs, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	jobs := make([]*Job, 0, opts.Limit)
	for rows.Next() {
		job, err := scanJob(rows.Scan)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return jobs, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (JobStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*) AS total,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS pending,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS running,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS succeeded,
        SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed,
        COALESCE(MIN(updated_at), 0) AS oldest,
        COALESCE(MAX(updated_at), 0) AS newest
        FROM swap_jobs`

	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}

	args := []any{string(StatusPending), string(StatusRunning), string(StatusSucceeded), string(StatusFailed)}
	args = append(args, filterArgs...)

	row := s.db.QueryRowContext(ctx, query, args...)

	var stats JobStats
	if err := row.Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return JobStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	if stats.Total == 0 {
		stats.OldestUpdatedAt = 0
		stats.NewestUpdatedAt = 0
	}
	return stats, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanJob(scan func(dest ...any) error) (*Job, error) {
	var job Job
	var result Outcome
	var metadata sql.NullString
	var busResponse sql.NullString

	if err := scan(
		&job.ID,
		&job.AccountID,
		&job.TokenIn,
		&job.AmountIn,
		&job.TokenOut,
		&metadata,
		&job.Status,
		&job.Attempts,
		&job.MaxRetries,
		&job.LastError,
		&job.ErrorCode,
		&result.SessionID,
		&result.QuoteHash,
		&result.AmountOut,
		&result.FinalState,
		&busResponse,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		return nil, err
	}

	decodedMetadata, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	job.Metadata = decodedMetadata
	result.BusResponse = busResponse.String

	if result.SessionID != "" || result.QuoteHash != "" || result.AmountOut != "" || result.FinalState != "" || result.BusResponse != "" {
		job.Result = &result
	}
	return &job, nil
}

func marshalMetadata(metadata map[string]string) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	bytes, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(bytes), Valid: true}, nil
}

func unmarshalMetadata(raw sql.NullString) (map[string]string, error) {
	if !raw.Valid || strings.TrimSpace(raw.String) == "" {
		return nil, nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	conditions := make([]string, 0, 5)
	args := make([]any, 0, 8)

	if len(opts.Statuses) > 0 {
		placeholders := make([]string, 0, len(opts.Statuses))
		for range opts.Statuses {
			placeholders = append(placeholders, "?")
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.AccountID != "" {
		conditions = append(conditions, "account_id = ?")
		args = append(args, opts.AccountID)
	}
	if opts.UpdatedGTE > 0 {
		conditions = append(conditions, "updated_at >= ?")
		args = append(args, opts.UpdatedGTE)
	}
	if opts.UpdatedLTE > 0 {
		conditions = append(conditions, "updated_at <= ?")
		args = append(args, opts.UpdatedLTE)
	}
	if opts.HasResult != nil {
		if *opts.HasResult {
			conditions = append(conditions, "(result_session_id <> '' OR result_quote_hash <> '' OR result_amount_out <> '' OR result_final_state <> '' OR (result_bus_response IS NOT NULL AND result_bus_response <> ''))")
		} else {
			conditions = append(conditions, "(result_session_id = '' AND result_quote_hash = '' AND result_amount_out = '' AND result_final_state = '' AND (result_bus_response IS NULL OR result_bus_response = ''))")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR account_id LIKE ? OR token_in LIKE ? OR token_out LIKE ? OR metadata LIKE ? OR last_error LIKE ? OR result_session_id LIKE ? OR result_quote_hash LIKE ? OR result_final_state LIKE ?)")
		args = append(args,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
			pattern,
		)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
