package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"Agentrix-Chat/internal/backend"
	xerrors "Agentrix-Chat/internal/errors"
)

func TestExecutePostsTextAndSession(t *testing.T) {
	var got backend.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/api/agent/chat" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing api key header")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":      "product_search",
			"data":      map[string]any{"products": []any{map[string]any{"id": "p1"}}},
			"response":  "为你找到 1 件商品",
			"sessionId": "sess-1",
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/v1", WithHTTPClient(srv.Client()), WithAPIKey("secret"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := client.Execute(context.Background(), backend.Request{Text: "跑鞋", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.Text != "跑鞋" || got.SessionID != "sess-1" {
		t.Fatalf("unexpected request body: %+v", got)
	}
	if resp.Type != "product_search" || resp.SessionID != "sess-1" || resp.Response == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchProductsFallsBackToItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "wallet" {
			t.Errorf("missing query: %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"p2"}]}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	products, err := client.SearchProducts(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("SearchProducts: %v", err)
	}
	if len(products) != 1 || products[0]["id"] != "p2" {
		t.Fatalf("unexpected products: %v", products)
	}
}

func TestErrorsBecomeNetworkFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":{"code":"UPSTREAM","message":"llm down"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.Execute(context.Background(), backend.Request{Text: "hi"})
	if xerrors.CodeOf(err) != xerrors.CodeNetworkFailure {
		t.Fatalf("expected network failure, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "UPSTREAM" || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected api error cause, got %v", err)
	}
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	if _, err := NewClient("not a url"); err == nil {
		t.Fatalf("expected error for invalid url")
	}
}
