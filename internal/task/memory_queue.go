package task

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/pkg/logger"
)

// MemoryQueue 使用 channel 实现进程内队列。
type MemoryQueue struct {
	ch     chan string
	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue 创建一个内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan string, size)}
}

// Publish 将任务投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, taskID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return xerrors.New(xerrors.CodeQueueFailure, "队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- taskID:
		return nil
	}
}

// Consume 启动指定数量的工作协程消费队列中的任务。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	for range workerCount {
		group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case taskID, ok := <-q.ch:
					if !ok {
						return nil
					}
					if err := handler(ctx, taskID); err != nil {
						logger.L().Warn("内存队列任务处理失败", slog.String("task_id", taskID), slog.Any("error", err))
					}
				}
			}
		})
	}
	return group.Wait()
}

// Close 关闭内存队列，消费者在排空后退出。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
