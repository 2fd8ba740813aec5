package task

import (
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "Agentrix-Chat/internal/errors"
)

// MySQLStore 使用 MySQL 记录提交任务。表结构由 deploy/migrations 管理，
// 连接与迁移由 storage/mysql.Open 负责。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 基于已迁移的连接创建任务存储。
func NewMySQLStore(db *sql.DB) (*MySQLStore, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "MySQL 连接未初始化")
	}
	return &MySQLStore{db: db}, nil
}

const taskColumns = `id, wizard_kind, session_id, fields, status, attempts, max_retries, last_error, error_code,
        result_reference, result_contract_address, result_tx_hash, result_chain_id, result_block_number,
        result_observations, created_at, updated_at`

// Create 插入新的任务记录。
func (s *MySQLStore) Create(ctx context.Context, task *Task) error {
	if task == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "task 不能为空")
	}
	if strings.TrimSpace(task.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}

	now := time.Now().Unix()
	task.CreatedAt = now
	task.UpdatedAt = now

	fields, err := json.Marshal(task.Fields)
	if err != nil {
		return xerrors.Wrap(CodeTaskValidation, err, "编码任务字段失败")
	}

	const stmt = `INSERT INTO submission_tasks
        (id, wizard_kind, session_id, fields, status, attempts, max_retries, last_error, error_code,
        result_observations, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, '', '', '', ?, ?)`

	_, err = s.db.ExecContext(ctx, stmt,
		task.ID,
		task.WizardKind,
		task.SessionID,
		string(fields),
		task.Status,
		task.Attempts,
		task.MaxRetries,
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrTaskConflict
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入任务失败")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		task   Task
		result Result
		fields sql.NullString
	)
	if err := row.Scan(
		&task.ID,
		&task.WizardKind,
		&task.SessionID,
		&fields,
		&task.Status,
		&task.Attempts,
		&task.MaxRetries,
		&task.LastError,
		&task.ErrorCode,
		&result.Reference,
		&result.ContractAddress,
		&result.TxHash,
		&result.ChainID,
		&result.BlockNumber,
		&result.Observations,
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if fields.Valid && strings.TrimSpace(fields.String) != "" {
		if err := json.Unmarshal([]byte(fields.String), &task.Fields); err != nil {
			return nil, fmt.Errorf("解析任务字段失败: %w", err)
		}
	}
	if task.Status == StatusSucceeded || !result.empty() {
		task.Result = &result
	}
	return &task, nil
}

// Get 查询指定任务。
func (s *MySQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM submission_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务失败")
	}
	return task, nil
}

// Claim 将待执行的任务标记为运行中并返回最新状态。
func (s *MySQLStore) Claim(ctx context.Context, id string) (*Task, error) {
	const stmt = `UPDATE submission_tasks SET status = ?, attempts = attempts + 1, updated_at = ?
        WHERE id = ? AND status = ? AND attempts < max_retries`

	res, err := s.db.ExecContext(ctx, stmt, StatusRunning, time.Now().Unix(), id, StatusPending)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新任务状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	task, getErr := s.Get(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if affected > 0 {
		return task, nil
	}
	switch {
	case task.Status.Terminal():
		return task, ErrTaskCompleted
	case task.Status == StatusRunning:
		return task, ErrTaskConflict
	case task.Attempts >= task.MaxRetries:
		return task, ErrTaskExhausted
	default:
		return task, ErrTaskConflict
	}
}

// MarkSucceeded 将任务标记为成功。
func (s *MySQLStore) MarkSucceeded(ctx context.Context, id string, result Result) error {
	const stmt = `UPDATE submission_tasks SET status = ?, result_reference = ?, result_contract_address = ?,
        result_tx_hash = ?, result_chain_id = ?, result_block_number = ?, result_observations = ?,
        updated_at = ?, last_error = '', error_code = '' WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		StatusSucceeded,
		result.Reference,
		result.ContractAddress,
		result.TxHash,
		result.ChainID,
		result.BlockNumber,
		result.Observations,
		time.Now().Unix(),
		id,
	)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务成功失败")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// MarkFailed 记录失败原因，非终结失败让任务回到 pending。
func (s *MySQLStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	const stmt = `UPDATE submission_tasks SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`

	status := StatusPending
	if terminal {
		status = StatusFailed
	}
	res, err := s.db.ExecContext(ctx, stmt, status, lastError, string(code), time.Now().Unix(), id)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "标记任务失败状态出错")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Cancel 仅在任务仍为 pending 时把它标记为已取消。
func (s *MySQLStore) Cancel(ctx context.Context, id string, reason string) error {
	const stmt = `UPDATE submission_tasks SET status = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ? AND status = ?`

	res, err := s.db.ExecContext(ctx, stmt,
		StatusFailed, reason, string(CodeTaskCancelled), time.Now().Unix(), id, StatusPending)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "取消任务失败")
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		return nil
	}
	task, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return ErrTaskCompleted
	}
	return ErrTaskConflict
}

// List 返回符合过滤条件的任务。
func (s *MySQLStore) List(ctx context.Context, opts ListOptions) ([]*Task, error) {
	opts.applyDefaults()

	query := `SELECT ` + taskColumns + ` FROM submission_tasks`
	clause, args := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	if opts.Order == SortByUpdatedAsc {
		query += " ORDER BY updated_at ASC, created_at ASC, id ASC"
	} else {
		query += " ORDER BY updated_at DESC, created_at DESC, id DESC"
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务列表失败")
	}
	defer rows.Close()

	tasks := make([]*Task, 0, opts.Limit)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务记录失败")
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历任务失败")
	}
	return tasks, nil
}

// Stats 返回符合过滤条件的任务聚合信息。
func (s *MySQLStore) Stats(ctx context.Context, opts ListOptions) (TaskStats, error) {
	opts.applyDefaults()

	query := `SELECT
        COUNT(*),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
        COALESCE(MIN(updated_at), 0),
        COALESCE(MAX(updated_at), 0)
        FROM submission_tasks`
	clause, filterArgs := buildFilterClause(opts)
	if clause != "" {
		query += " WHERE " + clause
	}
	args := append([]any{StatusPending, StatusRunning, StatusSucceeded, StatusFailed}, filterArgs...)

	var stats TaskStats
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Pending,
		&stats.Running,
		&stats.Succeeded,
		&stats.Failed,
		&stats.OldestUpdatedAt,
		&stats.NewestUpdatedAt,
	); err != nil {
		return TaskStats{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询任务统计失败")
	}
	return stats, nil
}

// Close 不关闭共享连接，连接由创建方负责释放。
func (s *MySQLStore) Close() error {
	return nil
}

func buildFilterClause(opts ListOptions) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if len(opts.Statuses) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.Statuses)), ",")
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", placeholders))
		for _, status := range opts.Statuses {
			args = append(args, status)
		}
	}
	if opts.WizardKind != "" {
		conditions = append(conditions, "wizard_kind = ?")
		args = append(args, opts.WizardKind)
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		args = append(args, opts.SessionID)
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
			conditions = append(conditions, "status = 'succeeded'")
		} else {
			conditions = append(conditions, "status <> 'succeeded'")
		}
	}
	if opts.Query != "" {
		pattern := "%" + opts.Query + "%"
		conditions = append(conditions, "(id LIKE ? OR wizard_kind LIKE ? OR session_id LIKE ? OR last_error LIKE ? OR result_reference LIKE ? OR result_contract_address LIKE ? OR result_tx_hash LIKE ?)")
		for range 7 {
			args = append(args, pattern)
		}
	}
	return strings.Join(conditions, " AND "), args
}

var _ Store = (*MySQLStore)(nil)
