package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"maps"
	"time"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/observability/alerting"
	"Agentrix-Chat/pkg/logger"
)

// Executor 执行一次提交任务并返回链上结果。
type Executor interface {
	Execute(ctx context.Context, task *Task) (Result, error)
}

// ExecutorFunc 让普通函数满足 Executor 接口。
type ExecutorFunc func(ctx context.Context, task *Task) (Result, error)

// Execute 实现 Executor。
func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (Result, error) {
	return f(ctx, task)
}

// Observer 接收任务结束的回调，用于指标统计。
type Observer interface {
	TaskFinished(wizardKind string, status Status, attempts int)
}

// Processor 负责从队列消费任务并交给执行器。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
	observer    Observer
	now         func() time.Time
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// WithObserver 配置任务结束回调。
func WithObserver(observer Observer) ProcessorOption {
	return func(p *Processor) {
		p.observer = observer
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task.processor"),
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		switch {
		case stdErrors.Is(err, ErrTaskNotFound), stdErrors.Is(err, ErrTaskCompleted), stdErrors.Is(err, ErrTaskConflict):
			p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", xerrors.MessageOf(err)))
			return nil
		case stdErrors.Is(err, ErrTaskExhausted):
			return p.finishFailed(ctx, task, ErrTaskExhausted, CodeTaskExhausted)
		}
		p.logger.Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}

	result, execErr := p.executor.Execute(ctx, &Task{
		ID:         task.ID,
		WizardKind: task.WizardKind,
		SessionID:  task.SessionID,
		Fields:     maps.Clone(task.Fields),
		Status:     task.Status,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
	})
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, execErr)
	}
	if result.Reference == "" {
		result.Reference = task.ID
	}

	if err := p.store.MarkSucceeded(ctx, task.ID, result); err != nil {
		p.logger.Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.Audit().Info("提交任务执行成功",
		slog.String("task_id", task.ID),
		slog.String("wizard", task.WizardKind),
		slog.String("contract", result.ContractAddress),
		slog.String("tx_hash", result.TxHash),
		slog.String("chain_id", result.ChainID),
	)
	p.observe(task, StatusSucceeded)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	if xerrors.CodeOf(execErr) == xerrors.CodeUnknown {
		retryable = true
	}
	if !retryable || task.Attempts >= task.MaxRetries {
		return p.finishFailed(ctx, task, execErr, code)
	}

	if err := p.store.MarkFailed(ctx, task.ID, code, xerrors.MessageOf(execErr), false); err != nil {
		p.logger.Error("标记任务失败状态出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	p.emitAlert(ctx, task, code, execErr, "retry")
	if err := p.producer.Publish(ctx, task.ID); err != nil {
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "任务重投失败", xerrors.WithMetadata("task_id", task.ID))
		return p.finishFailed(ctx, task, wrapped, CodeTaskPublish)
	}
	p.logger.Debug("任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	return nil
}

// finishFailed 把任务置为终结失败。
func (p *Processor) finishFailed(ctx context.Context, task *Task, cause error, code xerrors.Code) error {
	if task == nil {
		return nil
	}
	if err := p.store.MarkFailed(ctx, task.ID, code, xerrors.MessageOf(cause), true); err != nil {
		p.logger.Error("标记任务终结失败出错", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	logger.Audit().Warn("提交任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("wizard", task.WizardKind),
		slog.String("error", xerrors.MessageOf(cause)),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)
	p.emitAlert(ctx, task, code, cause, "terminal")
	p.observe(task, StatusFailed)
	return nil
}

func (p *Processor) observe(task *Task, status Status) {
	if p.observer != nil {
		p.observer.TaskFinished(task.WizardKind, status, task.Attempts)
	}
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p.alerter == nil || task == nil {
		return
	}
	if stage != "terminal" && !xerrors.ShouldAlert(cause) {
		return
	}
	attrs := xerrors.AttributesOf(code)
	event := alerting.Event{
		Code:       code,
		Message:    xerrors.MessageOf(cause),
		Severity:   attrs.Severity,
		TaskID:     task.ID,
		WizardKind: task.WizardKind,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   map[string]string{"stage": stage},
		OccurredAt: p.now(),
	}
	if cause != nil {
		event.Metadata["cause"] = cause.Error()
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
