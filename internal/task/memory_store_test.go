package task

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// steppedClock advances by one minute on every call.
func steppedClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
}

func seedStore(t *testing.T) (*MemoryStore, time.Time) {
	t.Helper()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	store.now = steppedClock(base)
	ctx := context.Background()

	for _, task := range []*Task{
		{ID: "t1", WizardKind: "token_issuance", SessionID: "s1", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", WizardKind: "nft_collection", SessionID: "s1", Status: StatusPending, MaxRetries: 3},
		{ID: "t3", WizardKind: "token_issuance", SessionID: "s2", Status: StatusPending, MaxRetries: 3},
	} {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}
	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "deploy reverted", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", Result{Reference: "t3", ContractAddress: "0xabc"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	return store, base
}

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store, base := seedStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		opts []ListOption
		want []string
	}{
		{name: "newest first", want: []string{"t3", "t2", "t1"}},
		{name: "oldest first", opts: []ListOption{WithSortOrder(SortByUpdatedAsc)}, want: []string{"t1", "t2", "t3"}},
		{name: "status", opts: []ListOption{WithStatuses(StatusFailed, "bogus")}, want: []string{"t2"}},
		{name: "wizard kind", opts: []ListOption{WithWizardKind("token_issuance")}, want: []string{"t3", "t1"}},
		{name: "session", opts: []ListOption{WithSession("s1")}, want: []string{"t2", "t1"}},
		{name: "has result", opts: []ListOption{WithResultPresence(true)}, want: []string{"t3"}},
		{name: "query matches contract", opts: []ListOption{WithQuery("0xabc")}, want: []string{"t3"}},
		{name: "query matches error", opts: []ListOption{WithQuery("reverted")}, want: []string{"t2"}},
		{name: "since", opts: []ListOption{WithUpdatedSince(base.Add(4 * time.Minute))}, want: []string{"t3", "t2"}},
		{name: "paging", opts: []ListOption{WithLimit(1), WithOffset(1)}, want: []string{"t2"}},
		{name: "offset past end", opts: []ListOption{WithOffset(10)}, want: []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := store.List(ctx, buildListOptions(tc.opts))
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store, base := seedStore(t)
	ctx := context.Background()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := TaskStats{
		Total:           3,
		Pending:         1,
		Failed:          1,
		Succeeded:       1,
		OldestUpdatedAt: base.Add(time.Minute).Unix(),
		NewestUpdatedAt: base.Add(5 * time.Minute).Unix(),
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Fatalf("stats mismatch (-want +got):\n%s", diff)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Succeeded != 0 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, &Task{ID: "job", WizardKind: "token_issuance", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "job"}); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("duplicate create should conflict, got %v", err)
	}

	claimed, err := store.Claim(ctx, "job")
	if err != nil || claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected first claim: %+v %v", claimed, err)
	}
	if _, err := store.Claim(ctx, "job"); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("claiming a running task should conflict, got %v", err)
	}

	if err := store.MarkFailed(ctx, "job", CodeTaskProcessing, "rpc timeout", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	requeued, _ := store.Get(ctx, "job")
	if requeued.Status != StatusPending || requeued.LastError != "rpc timeout" {
		t.Fatalf("non terminal failure must requeue: %+v", requeued)
	}

	if _, err := store.Claim(ctx, "job"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	_ = store.MarkFailed(ctx, "job", CodeTaskProcessing, "rpc timeout", false)
	if _, err := store.Claim(ctx, "job"); !IsTaskError(err, CodeTaskExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}

	if _, err := store.Get(ctx, "missing"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoredTasksAreCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	fields := map[string]any{"name": "Agentrix"}
	_ = store.Create(ctx, &Task{ID: "job", Fields: fields, Status: StatusPending, MaxRetries: 1})
	fields["name"] = "mutated"

	got, _ := store.Get(ctx, "job")
	got.Fields["name"] = "also mutated"
	again, _ := store.Get(ctx, "job")
	if again.Fields["name"] != "Agentrix" {
		t.Fatalf("store leaked internal state: %v", again.Fields)
	}
}

func TestMemoryStoreCancelOnlyPending(t *testing.T) {
	store, _ := seedStore(t)
	ctx := context.Background()

	if err := store.Cancel(ctx, "t1", "用户取消"); err != nil {
		t.Fatalf("Cancel pending: %v", err)
	}
	cancelled, _ := store.Get(ctx, "t1")
	if cancelled.Status != StatusFailed || cancelled.ErrorCode != string(CodeTaskCancelled) || cancelled.LastError != "用户取消" {
		t.Fatalf("unexpected cancelled task: %+v", cancelled)
	}
	if _, err := store.Claim(ctx, "t1"); !IsTaskError(err, CodeTaskCompleted) {
		t.Fatalf("cancelled task must not be claimable, got %v", err)
	}

	if err := store.Create(ctx, &Task{ID: "t4", WizardKind: "token_issuance", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "t4"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := store.Cancel(ctx, "t4", "用户取消"); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("running task cancel should conflict, got %v", err)
	}
	if err := store.Cancel(ctx, "t3", "用户取消"); !IsTaskError(err, CodeTaskCompleted) {
		t.Fatalf("finished task cancel should report completion, got %v", err)
	}
	if err := store.Cancel(ctx, "missing", "用户取消"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
