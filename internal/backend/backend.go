// Package backend defines the contract of the execution collaborator: the
// service that interprets chat text and returns a typed response, plus the
// product search used when a response carries no products.
package backend

import (
	"context"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/intent"
)

// Request 是发送给执行后端的一次对话请求。
type Request struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId,omitempty"`
}

// Executor 解释用户文本并返回带判别字段的响应。
type Executor interface {
	Execute(ctx context.Context, req Request) (*intent.Response, error)
}

// Searcher 提供商品检索，用于补全缺少商品数据的搜索响应。
type Searcher interface {
	SearchProducts(ctx context.Context, query string) ([]map[string]any, error)
}

// ExecutorFunc 让普通函数满足 Executor 接口。
type ExecutorFunc func(ctx context.Context, req Request) (*intent.Response, error)

// Execute 实现 Executor。
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*intent.Response, error) {
	return f(ctx, req)
}

// SearcherFunc 让普通函数满足 Searcher 接口。
type SearcherFunc func(ctx context.Context, query string) ([]map[string]any, error)

// SearchProducts 实现 Searcher。
func (f SearcherFunc) SearchProducts(ctx context.Context, query string) ([]map[string]any, error) {
	return f(ctx, query)
}

// NetworkError 把调用执行后端时的失败包装为 NETWORK_FAILURE。
func NetworkError(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeNetworkFailure, err, "调用执行后端失败",
		xerrors.WithMetadata("op", op))
}
