package task

import (
	"context"

	xerrors "Agentrix-Chat/internal/errors"
)

// Store 抽象了提交任务状态的持久化接口。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 把待执行的任务置为 running 并增加尝试次数。
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result Result) error
	// MarkFailed 记录失败原因。terminal 为 false 时任务回到 pending 等待重投。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	// Cancel 终止仍在 pending 的任务。运行中的任务返回 ErrTaskConflict，已结束的返回 ErrTaskCompleted。
	Cancel(ctx context.Context, id string, reason string) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}
