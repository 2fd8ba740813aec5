package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Agentrix-Chat/internal/backend"
	"Agentrix-Chat/internal/catalog"
	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/llm"
)

type stubLLM struct {
	mu       sync.Mutex
	resp     *llm.Response
	err      error
	wait     time.Duration
	requests []llm.Request
}

func (s *stubLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	copied := *s.resp
	return &copied, nil
}

func testCatalog() *catalog.StaticProvider {
	return catalog.NewStaticProvider([]catalog.Product{
		{ID: "p1", Name: "Trail Runner", Price: 89, Keywords: []string{"跑鞋"}},
		{ID: "p2", Name: "Ledger Nano", Price: 79, Tags: []string{"钱包"}},
	}, 5)
}

func TestAgentExecuteIssuesSessionAndKeepsIt(t *testing.T) {
	llmClient := &stubLLM{resp: &llm.Response{Type: "unknown", Reply: "你好"}}
	ag := New(llmClient)

	first, err := ag.Execute(context.Background(), backend.Request{Text: "你好"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.SessionID == "" || first.Response != "你好" {
		t.Fatalf("unexpected response: %+v", first)
	}

	second, err := ag.Execute(context.Background(), backend.Request{Text: "再见", SessionID: first.SessionID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.SessionID != first.SessionID {
		t.Fatalf("session id changed: %s -> %s", first.SessionID, second.SessionID)
	}
	if got := len(llmClient.requests[1].History); got != 2 {
		t.Fatalf("expected 2 history entries on second turn, got %d", got)
	}
}

func TestAgentAttachesCatalogProducts(t *testing.T) {
	llmClient := &stubLLM{resp: &llm.Response{Type: "product_search", Reply: "找到了"}}
	ag := New(llmClient, WithCatalog(testCatalog()))

	resp, err := ag.Execute(context.Background(), backend.Request{Text: "帮我找跑鞋"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	products, ok := resp.Data["products"].([]map[string]any)
	if !ok || len(products) != 1 || products[0]["id"] != "p1" {
		t.Fatalf("expected catalog products, got %#v", resp.Data["products"])
	}
	if len(llmClient.requests[0].Knowledge) != 1 {
		t.Fatalf("expected catalog knowledge in prompt")
	}

	found, err := ag.SearchProducts(context.Background(), "钱包")
	if err != nil || len(found) != 1 {
		t.Fatalf("SearchProducts: %v %v", found, err)
	}
}

func TestAgentExecuteTimeout(t *testing.T) {
	llmClient := &stubLLM{wait: 50 * time.Millisecond, resp: &llm.Response{}}
	ag := New(llmClient, WithLLMTimeout(10*time.Millisecond))

	_, err := ag.Execute(context.Background(), backend.Request{Text: "测试"})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
	if xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout code, got %s", xerrors.CodeOf(err))
	}
}

func TestAgentRequiresLLMAndCatalog(t *testing.T) {
	ag := New(nil)
	if _, err := ag.Execute(context.Background(), backend.Request{Text: "hi"}); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
	if _, err := ag.SearchProducts(context.Background(), "x"); err == nil {
		t.Fatalf("expected error without catalog")
	}
}

func TestAgentHistoryIsBounded(t *testing.T) {
	llmClient := &stubLLM{resp: &llm.Response{Type: "unknown", Reply: "ok"}}
	ag := New(llmClient, WithMemoryDepth(1))
	resp, _ := ag.Execute(context.Background(), backend.Request{Text: "1"})
	for i := 0; i < 3; i++ {
		if _, err := ag.Execute(context.Background(), backend.Request{Text: "n", SessionID: resp.SessionID}); err != nil {
			t.Fatalf("execute: %v", err)
		}
	}
	if got := len(ag.history(resp.SessionID)); got != 2 {
		t.Fatalf("expected history bounded to 2 entries, got %d", got)
	}
	ag.Forget(resp.SessionID)
	if got := len(ag.history(resp.SessionID)); got != 0 {
		t.Fatalf("expected history cleared, got %d", got)
	}
}
