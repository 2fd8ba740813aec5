package agentrix

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"Agentrix-Chat/internal/api"
	"Agentrix-Chat/internal/conversation"
	"Agentrix-Chat/internal/intent"
	archive "Agentrix-Chat/internal/storage/mysql"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/internal/wizard"
)

func tokenCatalog(t *testing.T) *wizard.Catalog {
	t.Helper()
	catalog, err := wizard.NewCatalog(&wizard.Definition{
		Kind:  wizard.KindTokenIssuance,
		Title: "代币发行",
		Steps: []wizard.Step{
			{Name: "basics", Title: "基础信息", Fields: []string{"name"}, Validate: func(f wizard.Fields) map[string]string {
				if !f.Has("name") {
					return map[string]string{"name": "请输入代币名称"}
				}
				return nil
			}},
			{Name: "review", Title: "确认"},
		},
	})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return catalog
}

func newTestClient(t *testing.T) (*Client, *task.MemoryStore) {
	t.Helper()
	history, err := archive.NewFileArchive(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileArchive: %v", err)
	}
	submitter := wizard.SubmitterFunc(func(context.Context, wizard.Kind, wizard.Fields) (wizard.Result, error) {
		return wizard.Result{Reference: "job-1", Summary: "代币已部署", Data: map[string]any{"contract_address": "0xabc"}}, nil
	})
	router, err := conversation.NewRouter(intent.NewClassifier(intent.DefaultRules()), tokenCatalog(t), submitter,
		conversation.WithArchive(history))
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	store := task.NewMemoryStore()
	server := api.NewServer(":0", router,
		api.WithSubmissions(task.NewService(store, nil, 3)),
		api.WithHistory(history))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	client, err := NewClient(ts.URL, ts.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client, store
}

func TestClientWizardFlow(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	conv, err := client.OpenConversation(ctx)
	if err != nil {
		t.Fatalf("OpenConversation: %v", err)
	}
	if conv.ConversationID == "" || len(conv.Messages) != 0 {
		t.Fatalf("unexpected new conversation: %+v", conv)
	}
	id := conv.ConversationID

	conv, err = client.SendMessage(ctx, id, "我想发行代币")
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if conv.Wizard == nil || conv.Wizard.Kind != "token_issuance" || conv.Wizard.StepName != "basics" {
		t.Fatalf("expected token wizard, got %+v", conv.Wizard)
	}

	conv, err = client.AdvanceWizard(ctx, id)
	if err != nil {
		t.Fatalf("AdvanceWizard: %v", err)
	}
	if conv.Wizard.Errors["name"] == "" {
		t.Fatalf("advance without name should be blocked: %+v", conv.Wizard)
	}

	if conv, err = client.SetWizardFields(ctx, id, map[string]any{"name": "Agentrix"}); err != nil {
		t.Fatalf("SetWizardFields: %v", err)
	}
	if conv, err = client.AdvanceWizard(ctx, id); err != nil || conv.Wizard.StepName != "review" {
		t.Fatalf("advance to review: %+v %v", conv.Wizard, err)
	}
	if conv, err = client.RetreatWizard(ctx, id); err != nil || conv.Wizard.StepName != "basics" {
		t.Fatalf("retreat: %+v %v", conv.Wizard, err)
	}
	_, _ = client.AdvanceWizard(ctx, id)
	conv, err = client.AdvanceWizard(ctx, id)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if conv.Wizard != nil {
		t.Fatalf("succeeded wizard should be torn down: %+v", conv.Wizard)
	}
	last, ok := conv.Last()
	if !ok || last.Role != "assistant" {
		t.Fatalf("expected assistant confirmation, got %+v", last)
	}

	_, err = client.CancelWizard(ctx, id)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict || apiErr.Code != "WIZARD_NOT_ACTIVE" {
		t.Fatalf("expected WIZARD_NOT_ACTIVE conflict, got %v", err)
	}

	history, err := client.History(ctx, id, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 2 || history[1].Message.ID != last.ID || history[1].ConversationID != id {
		t.Fatalf("history should end with the last message: %+v", history)
	}

	conv, err = client.ResetConversation(ctx, id)
	if err != nil || len(conv.Messages) != 0 {
		t.Fatalf("reset: %+v %v", conv, err)
	}
}

func TestClientSubmissions(t *testing.T) {
	client, store := newTestClient(t)
	ctx := context.Background()
	for _, job := range []*task.Task{
		{ID: "job-1", WizardKind: "token_issuance", SessionID: "s1", Status: task.StatusPending, MaxRetries: 3},
		{ID: "job-2", WizardKind: "nft_collection", SessionID: "s2", Status: task.StatusPending, MaxRetries: 3},
	} {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if err := store.MarkSucceeded(ctx, "job-2", task.Result{Reference: "job-2", ContractAddress: "0xdef"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	sub, err := client.GetSubmission(ctx, "job-2")
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}
	if sub.Status != "succeeded" || sub.Result == nil || sub.Result.ContractAddress != "0xdef" {
		t.Fatalf("unexpected submission: %+v", sub)
	}

	list, err := client.ListSubmissions(ctx, SubmissionFilter{Wizard: "token_issuance"})
	if err != nil || len(list) != 1 || list[0].ID != "job-1" {
		t.Fatalf("ListSubmissions: %+v %v", list, err)
	}

	stats, err := client.SubmissionStats(ctx, SubmissionFilter{})
	if err != nil || stats.Total != 2 || stats.Succeeded != 1 || stats.Pending != 1 {
		t.Fatalf("SubmissionStats: %+v %v", stats, err)
	}

	_, err = client.GetSubmission(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClientDecodesErrorWithoutEnvelope(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	defer ts.Close()

	client, err := NewClient(ts.URL+"/prefix", ts.Client())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	_, err = client.GetConversation(context.Background(), "c1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Code != "" || apiErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://bad"} {
		if _, err := NewClient(raw, nil); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestPayloadDecode(t *testing.T) {
	p := &Payload{Type: PayloadCode, Data: []byte(`{"language":"go","source":"package main"}`)}
	var code CodePayload
	if err := p.Decode(&code); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if code.Language != "go" || code.Source != "package main" {
		t.Fatalf("unexpected payload data: %+v", code)
	}
}
