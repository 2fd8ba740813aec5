package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"Agentrix-Chat/internal/llm"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error when api key is missing")
	}
}

func TestGenerateSuccess(t *testing.T) {
	var captured struct {
		Authorization string
		Body          struct {
			Model    string    `json:"model"`
			Messages []message `json:"messages"`
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.Authorization = r.Header.Get("Authorization")
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&captured.Body); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{
					"message": map[string]any{
						"content": `{"type":"product_search","thought":"用户想买鞋","reply":"为你找到以下商品","data":{"query":"跑鞋"}}`,
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	resp, err := client.Generate(context.Background(), llm.Request{
		Message: "帮我找跑鞋",
		History: []llm.HistoryEntry{{Role: "user", Content: "你好"}, {Role: "assistant", Content: "你好！"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Type != "product_search" || resp.Reply != "为你找到以下商品" || resp.Data["query"] != "跑鞋" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if !strings.HasPrefix(captured.Authorization, "Bearer ") {
		t.Fatalf("authorization header missing: %q", captured.Authorization)
	}
	if captured.Body.Model == "" {
		t.Fatalf("model field missing in request")
	}
	if len(captured.Body.Messages) != 4 || captured.Body.Messages[2].Role != "assistant" {
		t.Fatalf("history not forwarded: %+v", captured.Body.Messages)
	}
}

func TestParseContentFallsBackToPlainText(t *testing.T) {
	resp := parseContent("今天心情不错")
	if resp.Type != "unknown" || resp.Reply != "今天心情不错" {
		t.Fatalf("unexpected fallback: %+v", resp)
	}
	fenced := parseContent("```json\n{\"type\":\"code\",\"reply\":\"ok\"}\n```")
	if fenced.Type != "code" || fenced.Reply != "ok" {
		t.Fatalf("fenced json not parsed: %+v", fenced)
	}
}

func TestGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "test", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	client.httpClient = srv.Client()

	if _, err := client.Generate(context.Background(), llm.Request{Message: "test"}); err == nil {
		t.Fatalf("expected error when http status is not success")
	}
}
