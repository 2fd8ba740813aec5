// Package task runs wizard submissions as durable jobs: a Store keeps the job
// state, a Queue carries job ids to workers, and the Processor executes them
// with bounded retries.
package task

import (
	stdErrors "errors"
	"maps"

	xerrors "Agentrix-Chat/internal/errors"
)

// Status 表示提交任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal 判断任务是否不会再被执行。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Result 保存一次成功提交的链上结果。
type Result struct {
	Reference       string `json:"reference"`
	ContractAddress string `json:"contract_address,omitempty"`
	TxHash          string `json:"tx_hash,omitempty"`
	ChainID         string `json:"chain_id,omitempty"`
	BlockNumber     string `json:"block_number,omitempty"`
	Observations    string `json:"observations,omitempty"`
}

func (r *Result) empty() bool {
	return r == nil || (r.Reference == "" && r.ContractAddress == "" && r.TxHash == "" &&
		r.ChainID == "" && r.BlockNumber == "" && r.Observations == "")
}

// Task 描述排队执行的向导提交。
type Task struct {
	ID         string         `json:"id"`
	WizardKind string         `json:"wizard_kind"`
	SessionID  string         `json:"session_id,omitempty"`
	Fields     map[string]any `json:"fields"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Result     *Result        `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Err 把终结失败的任务表示为统一错误，其余状态返回 nil。
func (t *Task) Err() error {
	if t == nil || t.Status != StatusFailed {
		return nil
	}
	code := xerrors.Code(t.ErrorCode)
	if code == "" {
		code = CodeTaskProcessing
	}
	return xerrors.New(xerrors.CodeSubmissionFailure, t.LastError,
		xerrors.WithMetadata("task_id", t.ID),
		xerrors.WithMetadata("cause_code", string(code)))
}

const (
	CodeTaskNotFound   xerrors.Code = "SUBMISSION_TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "SUBMISSION_TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "SUBMISSION_TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "SUBMISSION_TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "SUBMISSION_TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "SUBMISSION_TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "SUBMISSION_TASK_PROCESSING_FAILED"
	CodeTaskCancelled  xerrors.Code = "SUBMISSION_TASK_CANCELLED"
)

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "提交任务不存在")
	// ErrTaskConflict 表示任务在当前状态下无法进行所请求的操作。
	ErrTaskConflict = xerrors.New(CodeTaskConflict, "提交任务状态冲突")
	// ErrTaskCompleted 表示任务已经结束。
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "提交任务已结束")
	// ErrTaskExhausted 表示任务的重试次数已经耗尽。
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "提交任务重试次数已耗尽")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "提交任务不存在",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskConflict, xerrors.Attributes{
		Message:  "提交任务状态冲突",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeTaskCompleted, xerrors.Attributes{
		Message:  "提交任务已结束",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskExhausted, xerrors.Attributes{
		Message:  "提交任务重试次数已耗尽",
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "提交任务参数不合法",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskPublish, xerrors.Attributes{
		Message:   "提交任务入队失败",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeTaskCancelled, xerrors.Attributes{
		Message:  "提交任务已被取消",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskProcessing, xerrors.Attributes{
		Message:   "提交任务执行失败",
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
}

// IsTaskError 判断错误是否属于指定的任务错误码。
func IsTaskError(err error, target xerrors.Code) bool {
	if err == nil {
		return false
	}
	switch {
	case stdErrors.Is(err, ErrTaskNotFound):
		return target == CodeTaskNotFound
	case stdErrors.Is(err, ErrTaskConflict):
		return target == CodeTaskConflict
	case stdErrors.Is(err, ErrTaskCompleted):
		return target == CodeTaskCompleted
	case stdErrors.Is(err, ErrTaskExhausted):
		return target == CodeTaskExhausted
	}
	return xerrors.CodeOf(err) == target
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

func cloneTask(task *Task) *Task {
	clone := *task
	if task.Result != nil {
		result := *task.Result
		clone.Result = &result
	}
	clone.Fields = maps.Clone(task.Fields)
	return &clone
}
