package wizard

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	xerrors "Agentrix-Chat/internal/errors"
)

func testDefinition() *Definition {
	return &Definition{
		Kind:  "survey",
		Title: "Survey",
		Steps: []Step{
			{Name: "name", Fields: []string{"name"}, Validate: func(f Fields) map[string]string {
				if !f.Has("name") {
					return map[string]string{"name": "required"}
				}
				return nil
			}},
			{Name: "extra", Optional: true, Condition: func(f Fields) bool { return f.Bool("extra") },
				Validate: func(f Fields) map[string]string {
					if !f.Has("detail") {
						return map[string]string{"detail": "required"}
					}
					return nil
				}},
			{Name: "confirm"},
		},
		Defaults: map[string]any{"color": "blue"},
	}
}

func advanceTo(t *testing.T, s State, want Outcome) State {
	t.Helper()
	next, outcome := s.Advance()
	if outcome != want {
		t.Fatalf("advance: got %s want %s (errors=%v)", outcome, want, next.StepErrors)
	}
	return next
}

func TestStartUsesDefaults(t *testing.T) {
	def := testDefinition()
	s := Start(def)
	if s.Status != StatusInProgress || s.StepIndex != 0 || s.ID == "" {
		t.Fatalf("unexpected start state: %+v", s)
	}
	if s.Fields.String("color") != "blue" {
		t.Fatalf("defaults not applied: %v", s.Fields)
	}
	s, _ = s.SetField("color", "red")
	if def.Defaults["color"] != "blue" {
		t.Fatalf("definition defaults mutated")
	}
}

func TestAdvanceBlocksOnValidationWithoutMoving(t *testing.T) {
	s := Start(testDefinition())
	blocked := advanceTo(t, s, OutcomeBlocked)
	if blocked.StepIndex != 0 {
		t.Fatalf("index changed on blocked advance")
	}
	if diff := cmp.Diff(map[string]string{"name": "required"}, blocked.StepErrors); diff != "" {
		t.Fatalf("step errors mismatch (-want +got):\n%s", diff)
	}
	if xerrors.CodeOf(blocked.Err()) != xerrors.CodeStepValidation {
		t.Fatalf("expected step validation error, got %v", blocked.Err())
	}

	fixed, _ := blocked.SetField("name", "alice")
	if len(fixed.StepErrors) == 0 {
		t.Fatalf("field edits must not trigger validation")
	}
	moved := advanceTo(t, fixed, OutcomeMoved)
	if moved.StepErrors != nil {
		t.Fatalf("errors should be recomputed fresh: %v", moved.StepErrors)
	}
}

func TestOptionalStepIsSkippedBothWays(t *testing.T) {
	s := Start(testDefinition())
	s, _ = s.SetField("name", "alice")
	s = advanceTo(t, s, OutcomeMoved)
	if s.Step().Name != "confirm" {
		t.Fatalf("inactive optional step should be skipped, at %s", s.Step().Name)
	}
	back, ok := s.Retreat()
	if !ok || back.Step().Name != "name" {
		t.Fatalf("retreat should skip inactive step, at %s", back.Step().Name)
	}

	withExtra, _ := back.SetField("extra", true)
	withExtra = advanceTo(t, withExtra, OutcomeMoved)
	if withExtra.Step().Name != "extra" {
		t.Fatalf("active optional step should be visited, at %s", withExtra.Step().Name)
	}
	if got := withExtra.View().ActiveSteps; len(got) != 3 {
		t.Fatalf("expected 3 active steps, got %v", got)
	}
}

func TestRetreatThenAdvanceRestoresFields(t *testing.T) {
	s := Start(testDefinition())
	s, _ = s.SetFields(map[string]any{"name": "alice", "extra": "yes", "detail": "x"})
	s = advanceTo(t, s, OutcomeMoved)
	before := s.Fields.Clone()

	back, _ := s.Retreat()
	again := advanceTo(t, back, OutcomeMoved)
	if diff := cmp.Diff(before, again.Fields); diff != "" {
		t.Fatalf("fields changed across back-navigation (-want +got):\n%s", diff)
	}
	if again.StepIndex != s.StepIndex {
		t.Fatalf("expected to return to step %d, got %d", s.StepIndex, again.StepIndex)
	}
}

func TestRetreatAtFirstStepIsRejected(t *testing.T) {
	s := Start(testDefinition())
	if _, ok := s.Retreat(); ok {
		t.Fatalf("retreat at first step should be rejected")
	}
}

func TestSubmittingGuardsAgainstDoubleSubmit(t *testing.T) {
	s := Start(testDefinition())
	s, _ = s.SetField("name", "alice")
	s = advanceTo(t, s, OutcomeMoved)
	s = advanceTo(t, s, OutcomeSubmit)
	if s.Status != StatusSubmitting || s.Attempts != 1 {
		t.Fatalf("unexpected state: %+v", s)
	}

	again, outcome := s.Advance()
	if outcome != OutcomeIgnored || again.Attempts != 1 {
		t.Fatalf("second advance while submitting must be ignored, got %s", outcome)
	}
	if _, ok := s.Retreat(); ok {
		t.Fatalf("retreat while submitting must be rejected")
	}
	if _, ok := s.SetField("name", "bob"); ok {
		t.Fatalf("field edits while submitting must be rejected")
	}
}

func TestFailureKeepsFieldsAndRetryReturnsToLastStep(t *testing.T) {
	s := Start(testDefinition())
	s, _ = s.SetField("name", "alice")
	s = advanceTo(t, s, OutcomeMoved)
	s = advanceTo(t, s, OutcomeSubmit)

	failed, ok := s.Complete(Result{}, errors.New("rpc unavailable"))
	if !ok || failed.Status != StatusFailed {
		t.Fatalf("expected failed state, got %+v", failed)
	}
	if failed.Status.Terminal() {
		t.Fatalf("failed must not be terminal")
	}
	if failed.Fields.String("name") != "alice" || failed.FailureReason != "rpc unavailable" {
		t.Fatalf("failure lost data: %+v", failed)
	}
	if xerrors.CodeOf(failed.Err()) != xerrors.CodeSubmissionFailure {
		t.Fatalf("expected submission failure code")
	}

	retried, ok := failed.Retry()
	if !ok || retried.Status != StatusInProgress || retried.StepIndex != 2 {
		t.Fatalf("retry should return to last step: %+v", retried)
	}
	resubmit := advanceTo(t, retried, OutcomeSubmit)
	if resubmit.Attempts != 2 {
		t.Fatalf("expected second attempt, got %d", resubmit.Attempts)
	}

	direct := advanceTo(t, failed, OutcomeSubmit)
	if direct.Status != StatusSubmitting {
		t.Fatalf("advance from failed should resubmit")
	}
}

func TestSucceededIsTerminal(t *testing.T) {
	s := Start(testDefinition())
	s, _ = s.SetField("name", "alice")
	s = advanceTo(t, s, OutcomeMoved)
	s = advanceTo(t, s, OutcomeSubmit)
	done, ok := s.Complete(Result{Reference: "ref-1"}, nil)
	if !ok || done.Status != StatusSucceeded || done.Result.Reference != "ref-1" {
		t.Fatalf("unexpected completion: %+v", done)
	}
	if _, ok := done.Cancel(); ok {
		t.Fatalf("cancel after success must be rejected")
	}
	if _, ok := done.Complete(Result{}, errors.New("late")); ok {
		t.Fatalf("late completion must be ignored")
	}
}

func TestCancelThenAnyTransitionIsNoop(t *testing.T) {
	s := Start(testDefinition())
	s, _ = s.SetField("name", "alice")
	s = advanceTo(t, s, OutcomeMoved)

	cancelled, ok := s.Cancel()
	if !ok || cancelled.Status != StatusCancelled || len(cancelled.Fields) != 0 {
		t.Fatalf("cancel should discard fields: %+v", cancelled)
	}
	gen := cancelled.Generation

	if next, outcome := cancelled.Advance(); outcome != OutcomeIgnored || next.Generation != gen {
		t.Fatalf("advance after cancel must be a no-op")
	}
	if next, ok := cancelled.Retreat(); ok || next.Generation != gen {
		t.Fatalf("retreat after cancel must be a no-op")
	}
	if _, ok := cancelled.Retry(); ok {
		t.Fatalf("retry after cancel must be a no-op")
	}
	if _, ok := cancelled.Cancel(); ok {
		t.Fatalf("second cancel must be a no-op")
	}
}

func TestCatalogRejectsInvalidDefinitions(t *testing.T) {
	if _, err := NewCatalog(&Definition{Kind: "empty"}); err == nil {
		t.Fatalf("expected error for definition without steps")
	}
	dup := testDefinition()
	if _, err := NewCatalog(testDefinition(), dup); err == nil {
		t.Fatalf("expected duplicate kind error")
	}
	c, err := NewCatalog(testDefinition())
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	if _, ok := c.Lookup("survey"); !ok {
		t.Fatalf("definition not registered")
	}
}

func TestCoercionHelpers(t *testing.T) {
	if v, ok := Float("25%"); !ok || v != 25 {
		t.Fatalf("Float percent: %v %v", v, ok)
	}
	if _, ok := Int(1.5); ok {
		t.Fatalf("Int should reject fractions")
	}
	if v, ok := Int("18"); !ok || v != 18 {
		t.Fatalf("Int string: %v %v", v, ok)
	}
	if v, ok := Bool("是"); !ok || !v {
		t.Fatalf("Bool chinese yes")
	}
	items := Items(`[{"name":"a","image":"ipfs://a"}]`)
	if len(items) != 1 || items[0]["name"] != "a" {
		t.Fatalf("Items json string: %v", items)
	}
}
