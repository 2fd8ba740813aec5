package task

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"

	"Agentrix-Chat/internal/storage/mysql/mysqltest"
)

var taskRowColumns = []string{
	"id", "wizard_kind", "session_id", "fields", "status", "attempts", "max_retries", "last_error", "error_code",
	"result_reference", "result_contract_address", "result_tx_hash", "result_chain_id", "result_block_number",
	"result_observations", "created_at", "updated_at",
}

func taskRow(id string, status Status, attempts, maxRetries int64, contract string) []driver.Value {
	reference := ""
	if contract != "" {
		reference = id
	}
	return []driver.Value{
		id, "token_issuance", "conv-1", `{"name":"Agentrix"}`, string(status), attempts, maxRetries, "", "",
		reference, contract, "", "", "", "", int64(1700000000), int64(1700000060),
	}
}

func selectTaskSQL() string {
	return `SELECT ` + taskColumns + ` FROM submission_tasks WHERE id = ?`
}

func TestMySQLStoreCreate(t *testing.T) {
	db, drv := mysqltest.Open(t,
		mysqltest.Exec("", mysqltest.Result{Affected: 1}),
		mysqltest.Exec("", mysqltest.Result{}).WithError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}),
	)
	defer drv.AssertConsumed(t)
	store, err := NewMySQLStore(db)
	if err != nil {
		t.Fatalf("NewMySQLStore: %v", err)
	}
	ctx := context.Background()

	task := &Task{ID: "job-1", WizardKind: "token_issuance", SessionID: "conv-1",
		Fields: map[string]any{"name": "Agentrix"}, Status: StatusPending, MaxRetries: 3}
	if err := store.Create(ctx, task); err != nil {
		t.Fatalf("Create: %v", err)
	}
	args := drv.Args(0)
	if args[0] != "job-1" || args[3] != `{"name":"Agentrix"}` || args[6] != 3 {
		t.Fatalf("unexpected insert args: %v", args)
	}
	if task.CreatedAt == 0 || task.CreatedAt != task.UpdatedAt {
		t.Fatalf("timestamps not set: %+v", task)
	}

	if err := store.Create(ctx, &Task{ID: "job-1", WizardKind: "token_issuance"}); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("duplicate key should map to conflict, got %v", err)
	}
	if err := store.Create(ctx, &Task{}); err == nil {
		t.Fatal("empty id should be rejected")
	}
}

func TestMySQLStoreGet(t *testing.T) {
	db, drv := mysqltest.Open(t,
		mysqltest.Query(selectTaskSQL(), mysqltest.Rows{
			Columns: taskRowColumns,
			Values:  [][]driver.Value{taskRow("job-1", StatusSucceeded, 1, 3, "0xabc")},
		}),
		mysqltest.Query(selectTaskSQL(), mysqltest.Rows{Columns: taskRowColumns}),
	)
	defer drv.AssertConsumed(t)
	store, _ := NewMySQLStore(db)
	ctx := context.Background()

	got, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := &Task{
		ID: "job-1", WizardKind: "token_issuance", SessionID: "conv-1",
		Fields: map[string]any{"name": "Agentrix"}, Status: StatusSucceeded, Attempts: 1, MaxRetries: 3,
		Result:    &Result{Reference: "job-1", ContractAddress: "0xabc"},
		CreatedAt: 1700000000, UpdatedAt: 1700000060,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("task mismatch (-want +got):\n%s", diff)
	}

	if _, err := store.Get(ctx, "missing"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMySQLStoreClaimExplainsRejection(t *testing.T) {
	db, drv := mysqltest.Open(t,
		mysqltest.Exec("", mysqltest.Result{Affected: 0}),
		mysqltest.Query(selectTaskSQL(), mysqltest.Rows{
			Columns: taskRowColumns,
			Values:  [][]driver.Value{taskRow("job-1", StatusPending, 3, 3, "")},
		}),
		mysqltest.Exec("", mysqltest.Result{Affected: 1}),
		mysqltest.Query(selectTaskSQL(), mysqltest.Rows{
			Columns: taskRowColumns,
			Values:  [][]driver.Value{taskRow("job-2", StatusRunning, 1, 3, "")},
		}),
	)
	defer drv.AssertConsumed(t)
	store, _ := NewMySQLStore(db)
	ctx := context.Background()

	if _, err := store.Claim(ctx, "job-1"); !IsTaskError(err, CodeTaskExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
	claimed, err := store.Claim(ctx, "job-2")
	if err != nil || claimed.Status != StatusRunning || claimed.Result != nil {
		t.Fatalf("unexpected claim: %+v %v", claimed, err)
	}
}

func TestMySQLStoreMarkFailedRequeues(t *testing.T) {
	db, drv := mysqltest.Open(t,
		mysqltest.Exec(`UPDATE submission_tasks SET status = ?, last_error = ?, error_code = ?, updated_at = ? WHERE id = ?`,
			mysqltest.Result{Affected: 1}),
		mysqltest.Exec("", mysqltest.Result{Affected: 0}),
	)
	defer drv.AssertConsumed(t)
	store, _ := NewMySQLStore(db)
	ctx := context.Background()

	if err := store.MarkFailed(ctx, "job-1", CodeTaskProcessing, "rpc timeout", false); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if args := drv.Args(0); args[0] != StatusPending || args[1] != "rpc timeout" || args[2] != string(CodeTaskProcessing) {
		t.Fatalf("unexpected update args: %v", args)
	}
	if err := store.MarkSucceeded(ctx, "gone", Result{}); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMySQLStoreListBuildsFilters(t *testing.T) {
	db, drv := mysqltest.Open(t,
		mysqltest.Query("", mysqltest.Rows{
			Columns: taskRowColumns,
			Values: [][]driver.Value{
				taskRow("job-2", StatusFailed, 3, 3, ""),
				taskRow("job-1", StatusPending, 0, 3, ""),
			},
		}),
	)
	defer drv.AssertConsumed(t)
	store, _ := NewMySQLStore(db)

	opts := buildListOptions([]ListOption{
		WithStatuses(StatusFailed, StatusPending),
		WithWizardKind("token_issuance"),
		WithLimit(5),
		WithOffset(2),
	})
	tasks, err := store.List(context.Background(), opts)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if diff := cmp.Diff([]string{"job-2", "job-1"}, ids(tasks)); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
	wantArgs := []driver.Value{StatusFailed, StatusPending, "token_issuance", 5, 2}
	if diff := cmp.Diff(wantArgs, drv.Args(0)); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestMySQLStoreCancelOnlyPending(t *testing.T) {
	db, drv := mysqltest.Open(t,
		mysqltest.Exec(`UPDATE submission_tasks SET status = ?, last_error = ?, error_code = ?, updated_at = ?
        WHERE id = ? AND status = ?`, mysqltest.Result{Affected: 1}),
		mysqltest.Exec("", mysqltest.Result{Affected: 0}),
		mysqltest.Query(selectTaskSQL(), mysqltest.Rows{
			Columns: taskRowColumns,
			Values:  [][]driver.Value{taskRow("job-2", StatusRunning, 1, 3, "")},
		}),
	)
	defer drv.AssertConsumed(t)
	store, _ := NewMySQLStore(db)
	ctx := context.Background()

	if err := store.Cancel(ctx, "job-1", "用户取消"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	args := drv.Args(0)
	if args[0] != StatusFailed || args[2] != string(CodeTaskCancelled) || args[4] != "job-1" || args[5] != StatusPending {
		t.Fatalf("unexpected cancel args: %v", args)
	}
	if err := store.Cancel(ctx, "job-2", "用户取消"); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("running task cancel should conflict, got %v", err)
	}
}
