// Package agent is the local execution collaborator. It interprets chat text
// with a language model, issues backend session tokens, keeps a short per
// session history and attaches catalog products to product searches.
package agent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Agentrix-Chat/internal/backend"
	"Agentrix-Chat/internal/catalog"
	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/intent"
	"Agentrix-Chat/internal/llm"
)

// Agent 协调大模型与商品目录，是本地执行后端的核心。
type Agent struct {
	llmClient   llm.Client
	catalog     catalog.Provider
	memoryDepth int
	searchLimit int
	llmTimeout  time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string][]llm.HistoryEntry
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// defaultMemoryDepth 是大模型调用时可参考的历史轮次数量的默认值。
const defaultMemoryDepth = 6

// responseTypes 是本地后端会返回的判别字段取值。
var responseTypes = []string{"product_search", "view_cart", "query_order", "code", "payment", "unknown"}

// WithMemoryDepth 设置大模型调用时可参考的历史轮次数量。
func WithMemoryDepth(depth int) Option {
	return func(a *Agent) {
		a.memoryDepth = depth
	}
}

// WithCatalog 配置商品目录，用于商品搜索与推理前补充上下文。
func WithCatalog(provider catalog.Provider) Option {
	return func(a *Agent) {
		a.catalog = provider
	}
}

// WithSearchLimit 设置单次商品检索返回的最大数量。
func WithSearchLimit(limit int) Option {
	return func(a *Agent) {
		a.searchLimit = limit
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout <= 0 {
			a.llmTimeout = 0
			return
		}
		a.llmTimeout = timeout
	}
}

// New 创建一个 Agent。
func New(llmClient llm.Client, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:   llmClient,
		memoryDepth: defaultMemoryDepth,
		searchLimit: 10,
		now:         time.Now,
		sessions:    make(map[string][]llm.HistoryEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.memoryDepth <= 0 {
		ag.memoryDepth = defaultMemoryDepth
	}
	return ag
}

// Execute 根据用户文本调用大模型，首轮对话时签发会话标识。
func (a *Agent) Execute(ctx context.Context, req backend.Request) (*intent.Response, error) {
	if a.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history := a.history(sessionID)
	knowledge := a.collectKnowledge(text)

	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	output, err := a.llmClient.Generate(llmCtx, llm.Request{
		Message:   text,
		History:   history,
		Knowledge: knowledge,
		Types:     responseTypes,
	})
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "大模型推理失败")
	}

	data := output.Data
	if data == nil {
		data = map[string]any{}
	}
	if kind, ok := intent.LookupDiscriminator(output.Type); ok && kind == intent.KindProductSearch {
		if _, present := data["products"]; !present {
			query, _ := data["query"].(string)
			if strings.TrimSpace(query) == "" {
				query = text
			}
			data["products"] = a.search(query)
			data["query"] = query
		}
	}

	a.remember(sessionID,
		llm.HistoryEntry{Role: "user", Content: text, CreatedAt: a.now().Unix()},
		llm.HistoryEntry{Role: "assistant", Content: output.Reply, CreatedAt: a.now().Unix()},
	)

	return &intent.Response{
		Type:      output.Type,
		Data:      data,
		Response:  output.Reply,
		SessionID: sessionID,
	}, nil
}

// SearchProducts 实现 backend.Searcher，在目录中检索商品。
func (a *Agent) SearchProducts(ctx context.Context, query string) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.catalog == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置商品目录")
	}
	return a.search(query), nil
}

// Forget 清除会话的历史记录。
func (a *Agent) Forget(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.sessions, sessionID)
}

func (a *Agent) search(query string) []map[string]any {
	if a.catalog == nil {
		return []map[string]any{}
	}
	products := a.catalog.Search(query, a.searchLimit)
	out := make([]map[string]any, 0, len(products))
	for _, product := range products {
		out = append(out, product.Map())
	}
	return out
}

// history 返回会话最近的历史记录副本。
func (a *Agent) history(sessionID string) []llm.HistoryEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	entries := a.sessions[sessionID]
	out := make([]llm.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

func (a *Agent) remember(sessionID string, entries ...llm.HistoryEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	history := append(a.sessions[sessionID], entries...)
	if limit := a.memoryDepth * 2; len(history) > limit {
		history = append([]llm.HistoryEntry(nil), history[len(history)-limit:]...)
	}
	a.sessions[sessionID] = history
}

// collectKnowledge 从商品目录中检索与消息相关的商品，供大模型参考。
func (a *Agent) collectKnowledge(text string) []llm.KnowledgeCard {
	if a.catalog == nil {
		return nil
	}
	products := a.catalog.Search(text, 5)
	cards := make([]llm.KnowledgeCard, 0, len(products))
	for _, product := range products {
		if strings.TrimSpace(product.Name) == "" {
			continue
		}
		cards = append(cards, llm.KnowledgeCard{
			Title:   product.Name,
			Content: fmt.Sprintf("%s 价格 %.2f %s", product.Description, product.Price, product.Currency),
		})
	}
	return cards
}

var (
	_ backend.Executor = (*Agent)(nil)
	_ backend.Searcher = (*Agent)(nil)
)
