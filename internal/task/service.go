package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/pkg/logger"
)

// Request 描述一次向导提交。ID 为空时自动生成；相同 ID 重复提交返回已有任务。
type Request struct {
	ID         string
	WizardKind string
	SessionID  string
	Fields     map[string]any
}

// Service 负责提交任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
	interval   time.Duration
}

// ServiceOption 定义 Service 的可选配置。
type ServiceOption func(*Service)

// WithPollInterval 设置 WaitUntilCompleted 的默认轮询间隔。
func WithPollInterval(interval time.Duration) ServiceOption {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int, opts ...ServiceOption) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	s := &Service{store: store, producer: producer, maxRetries: maxRetries, interval: 500 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit 创建一个新的任务并推送到队列。
func (s *Service) Submit(ctx context.Context, req Request) (*Task, error) {
	if strings.TrimSpace(req.WizardKind) == "" {
		return nil, xerrors.New(CodeTaskValidation, "向导类别不能为空")
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}

	taskID := strings.TrimSpace(req.ID)
	if taskID != "" {
		existing, err := s.store.Get(ctx, taskID)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrTaskNotFound) {
			return nil, err
		}
	} else {
		taskID = uuid.NewString()
	}

	task := &Task{
		ID:         taskID,
		WizardKind: req.WizardKind,
		SessionID:  req.SessionID,
		Fields:     maps.Clone(req.Fields),
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, task); err != nil {
		if stdErrors.Is(err, ErrTaskConflict) {
			return s.store.Get(ctx, taskID)
		}
		return nil, err
	}
	if err := s.producer.Publish(ctx, taskID); err != nil {
		logger.L().Error("任务入队失败", slog.Any("error", err), slog.String("task_id", taskID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "发布任务到队列失败")
		_ = s.store.MarkFailed(context.WithoutCancel(ctx), taskID, CodeTaskPublish, xerrors.MessageOf(wrapped), true)
		return nil, wrapped
	}
	logger.Audit().Info("提交任务入队成功",
		slog.String("task_id", taskID),
		slog.String("wizard", task.WizardKind),
		slog.String("session_id", task.SessionID),
		slog.Int("max_retries", task.MaxRetries),
	)
	return task, nil
}

// Cancel 取消尚未开始执行的任务。已被 worker 领取的任务无法撤回，返回 ErrTaskConflict。
func (s *Service) Cancel(ctx context.Context, id string, reason string) error {
	if s.store == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "任务服务未初始化")
	}
	if err := s.store.Cancel(ctx, id, reason); err != nil {
		return err
	}
	logger.Audit().Info("提交任务已取消",
		slog.String("task_id", id),
		slog.String("reason", reason),
	)
	return nil
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "任务存储未初始化")
	}
	return s.store.Stats(ctx, buildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询任务直到进入终结状态或 ctx 结束。interval 不大于 0 时使用服务默认值。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = s.interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status.Terminal() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
