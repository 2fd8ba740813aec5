package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Agentrix-Chat/internal/task"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("scrape status = %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestCollectorExposesDomainMetrics(t *testing.T) {
	c := New("test")
	c.IntentClassified("token_issuance", "keyword")
	c.IntentClassified("token_issuance", "keyword")
	c.WizardTransition("token_issuance", "started")
	c.MessageAppended("user")
	c.TaskFinished("nft_collection", task.StatusSucceeded, 2)

	body := scrape(t, c)
	for _, want := range []string{
		`test_conversation_intents_total{kind="token_issuance",source="keyword"} 2`,
		`test_wizard_transitions_total{kind="token_issuance",transition="started"} 1`,
		`test_conversation_messages_total{role="user"} 1`,
		`test_submission_tasks_finished_total{status="succeeded",wizard="nft_collection"} 1`,
		`test_submission_task_attempts_sum{wizard="nft_collection"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	c := New("")
	handler := c.Middleware("chat", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, target := range []string{"/chat", "/chat?fail=1"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, target, nil))
	}

	body := scrape(t, c)
	for _, want := range []string{
		`agentrix_http_requests_total{code="200",handler="chat",method="POST"} 1`,
		`agentrix_http_requests_total{code="500",handler="chat",method="POST"} 1`,
		`agentrix_http_request_errors_total{handler="chat",method="POST"} 1`,
		`agentrix_http_request_duration_seconds_count{handler="chat",method="POST"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
