package issuance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/internal/wizard"
	"Agentrix-Chat/internal/wizard/definitions"
	"Agentrix-Chat/pkg/logger"
)

// Tasks 是 TaskSubmitter 依赖的任务服务子集，*task.Service 满足该接口。
type Tasks interface {
	Submit(ctx context.Context, req task.Request) (*task.Task, error)
	WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*task.Task, error)
	Cancel(ctx context.Context, id string, reason string) error
}

// cancelTimeout 限制提交被取消后撤回排队任务所用的时间。
const cancelTimeout = 5 * time.Second

// TaskSubmitter 把向导提交转换为异步任务，并阻塞等待任务终结。
// 它本身不设超时，取消通过 ctx 传递。
type TaskSubmitter struct {
	tasks    Tasks
	interval time.Duration
	log      *slog.Logger
}

// SubmitterOption 定义 TaskSubmitter 的可选配置。
type SubmitterOption func(*TaskSubmitter)

// WithWaitInterval 设置轮询任务状态的间隔。
func WithWaitInterval(interval time.Duration) SubmitterOption {
	return func(s *TaskSubmitter) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// NewTaskSubmitter 构造基于任务服务的提交器。
func NewTaskSubmitter(tasks Tasks, opts ...SubmitterOption) (*TaskSubmitter, error) {
	if tasks == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "提交器需要任务服务")
	}
	s := &TaskSubmitter{tasks: tasks, log: logger.Named("issuance.submitter")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Submit 实现 wizard.Submitter。
func (s *TaskSubmitter) Submit(ctx context.Context, kind wizard.Kind, fields wizard.Fields) (wizard.Result, error) {
	req := task.Request{WizardKind: string(kind), Fields: fields.Clone()}
	if info, ok := wizard.SubmissionInfoFrom(ctx); ok {
		req.SessionID = info.ConversationID
		if info.WizardID != "" {
			req.ID = fmt.Sprintf("%s-%d", info.WizardID, info.Attempt)
		}
	}

	submitted, err := s.tasks.Submit(ctx, req)
	if err != nil {
		return wizard.Result{}, xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "提交任务入队失败")
	}
	s.log.DebugContext(ctx, "submission queued",
		slog.String("task_id", submitted.ID),
		slog.String("wizard", string(kind)))

	final, err := s.tasks.WaitUntilCompleted(ctx, submitted.ID, s.interval)
	if err != nil {
		if ctx.Err() != nil {
			s.withdraw(ctx, submitted.ID)
			return wizard.Result{}, xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "提交已取消",
				xerrors.WithMetadata("task_id", submitted.ID), xerrors.WithRetryable(true))
		}
		return wizard.Result{}, xerrors.Wrap(xerrors.CodeSubmissionFailure, err, "查询任务状态失败",
			xerrors.WithMetadata("task_id", submitted.ID))
	}
	if final.Status != task.StatusSucceeded {
		return wizard.Result{}, final.Err()
	}
	return buildResult(kind, fields, final), nil
}

// withdraw 撤回尚未执行的任务。已在执行的部署无法中止，只记录告警。
func (s *TaskSubmitter) withdraw(ctx context.Context, taskID string) {
	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()
	err := s.tasks.Cancel(cancelCtx, taskID, "用户取消了向导提交")
	switch {
	case err == nil:
		s.log.InfoContext(ctx, "submission withdrawn", slog.String("task_id", taskID))
	case task.IsTaskError(err, task.CodeTaskConflict):
		s.log.WarnContext(ctx, "submission already running, deployment may still complete",
			slog.String("task_id", taskID))
	case task.IsTaskError(err, task.CodeTaskCompleted):
		s.log.InfoContext(ctx, "submission finished before withdrawal", slog.String("task_id", taskID))
	default:
		s.log.ErrorContext(ctx, "withdraw submission failed",
			slog.String("task_id", taskID), slog.Any("error", err))
	}
}

func buildResult(kind wizard.Kind, fields wizard.Fields, t *task.Task) wizard.Result {
	res := task.Result{Reference: t.ID}
	if t.Result != nil {
		res = *t.Result
	}
	data := map[string]any{"task_id": t.ID}
	for key, value := range map[string]string{
		"contract_address": res.ContractAddress,
		"tx_hash":          res.TxHash,
		"chain_id":         res.ChainID,
		"block_number":     res.BlockNumber,
	} {
		if value != "" {
			data[key] = value
		}
	}
	return wizard.Result{
		Reference: res.Reference,
		Summary:   summarize(kind, fields, res),
		Data:      data,
	}
}

func summarize(kind wizard.Kind, fields wizard.Fields, res task.Result) string {
	var b strings.Builder
	name := fields.String(definitions.FieldName)
	chain := fields.String(definitions.FieldChain)
	switch kind {
	case wizard.KindTokenIssuance:
		fmt.Fprintf(&b, "代币 %s (%s) 已部署到 %s", name, fields.String(definitions.FieldSymbol), chain)
	case wizard.KindNFTCollection:
		fmt.Fprintf(&b, "NFT 合集 %s 已部署到 %s，共 %d 个藏品", name, chain, len(fields.Items(definitions.FieldItems)))
	default:
		fmt.Fprintf(&b, "%s 已提交", kind)
	}
	if res.ContractAddress != "" {
		fmt.Fprintf(&b, "，合约地址 %s", res.ContractAddress)
	}
	return b.String()
}

var _ wizard.Submitter = (*TaskSubmitter)(nil)
