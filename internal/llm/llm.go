// Package llm contains adapters for invoking large language models on behalf
// of the local execution collaborator. Providers return a typed reply whose
// discriminator feeds the intent classifier.
package llm

import "context"

// Request 描述发送给大模型的一次对话上下文。
type Request struct {
	Message   string
	History   []HistoryEntry
	Knowledge []KnowledgeCard
	// Types 是允许大模型返回的判别字段取值。
	Types []string
}

// Response 是大模型推理得到的结构化输出。
type Response struct {
	Type    string
	Thought string
	Reply   string
	Data    map[string]any
}

// KnowledgeCard 表示提供给大模型的参考信息，例如匹配到的商品。
type KnowledgeCard struct {
	Title   string
	Content string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// HistoryEntry 是同一会话中的一轮历史对话。
type HistoryEntry struct {
	Role      string
	Content   string
	CreatedAt int64
}
