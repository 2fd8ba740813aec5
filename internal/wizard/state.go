// Package wizard implements a generic multi-step guided data-collection
// engine. Every transition is a pure function from State to State; the
// owner decides when to invoke the submitter and applies its result.
package wizard

import (
	"context"
	"maps"
	"sort"
	"strings"

	"github.com/google/uuid"

	xerrors "Agentrix-Chat/internal/errors"
)

// Status 是向导的生命周期状态。
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitting Status = "submitting"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal 判断状态是否终结。failed 可以重试，不属于终结状态。
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusCancelled
}

// Editable 判断当前状态下是否允许修改字段。
func (s Status) Editable() bool {
	return s == StatusInProgress || s == StatusFailed
}

// Outcome 描述一次 Advance 的结果。
type Outcome string

const (
	// OutcomeIgnored 表示当前状态不接受前进。
	OutcomeIgnored Outcome = "ignored"
	// OutcomeBlocked 表示当前步骤校验未通过。
	OutcomeBlocked Outcome = "blocked"
	// OutcomeMoved 表示进入了下一步。
	OutcomeMoved Outcome = "moved"
	// OutcomeSubmit 表示进入 submitting，调用方必须且只能调用一次提交器。
	OutcomeSubmit Outcome = "submit"
)

// Result 是提交成功后的结果。
type Result struct {
	Reference string         `json:"reference"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	out.Data = CloneMap(r.Data)
	return &out
}

// Submitter 是向导提交的外部协作方。引擎不设超时，取消通过 ctx 传递。
type Submitter interface {
	Submit(ctx context.Context, kind Kind, fields Fields) (Result, error)
}

// SubmitterFunc 让普通函数满足 Submitter 接口。
type SubmitterFunc func(ctx context.Context, kind Kind, fields Fields) (Result, error)

// Submit 实现 Submitter。
func (f SubmitterFunc) Submit(ctx context.Context, kind Kind, fields Fields) (Result, error) {
	return f(ctx, kind, fields)
}

// SubmissionInfo 描述一次提交的来源，由会话层放入 ctx，提交器可据此生成幂等键。
type SubmissionInfo struct {
	ConversationID string
	SessionID      string
	WizardID       string
	Attempt        int
}

type submissionInfoKey struct{}

// WithSubmissionInfo 返回携带提交来源的 ctx。
func WithSubmissionInfo(ctx context.Context, info SubmissionInfo) context.Context {
	return context.WithValue(ctx, submissionInfoKey{}, info)
}

// SubmissionInfoFrom 读取 ctx 中的提交来源。
func SubmissionInfoFrom(ctx context.Context) (SubmissionInfo, bool) {
	info, ok := ctx.Value(submissionInfoKey{}).(SubmissionInfo)
	return info, ok
}

// State 是向导的不可变快照，所有转换返回新值。
type State struct {
	ID            string            `json:"id"`
	Generation    uint64            `json:"generation"`
	Kind          Kind              `json:"kind"`
	StepIndex     int               `json:"stepIndex"`
	Fields        Fields            `json:"fields"`
	StepErrors    map[string]string `json:"stepErrors,omitempty"`
	Status        Status            `json:"status"`
	Result        *Result           `json:"result,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	Attempts      int               `json:"attempts"`

	def *Definition
}

// Start 基于定义创建新的向导，字段以定义的默认值初始化。
func Start(def *Definition) State {
	fields := Fields(maps.Clone(def.Defaults))
	if fields == nil {
		fields = Fields{}
	}
	index := 0
	if !def.Steps[0].Active(fields) {
		if next := def.next(0, fields); next >= 0 {
			index = next
		}
	}
	return State{
		ID:        uuid.NewString(),
		Kind:      def.Kind,
		StepIndex: index,
		Fields:    fields,
		Status:    StatusInProgress,
		def:       def,
	}
}

// Definition 返回状态所属的向导定义。
func (s State) Definition() *Definition {
	return s.def
}

// Step 返回当前步骤。
func (s State) Step() Step {
	return s.def.Steps[s.StepIndex]
}

// Active 判断向导是否仍可交互。
func (s State) Active() bool {
	return s.def != nil && !s.Status.Terminal()
}

func (s State) bump() State {
	s.Generation++
	return s
}

// SetField 修改单个字段，不触发校验。只在 in_progress 与 failed 状态下生效。
func (s State) SetField(key string, value any) (State, bool) {
	return s.SetFields(map[string]any{key: value})
}

// SetFields 批量修改字段，不触发校验，也不清除当前步骤已有的错误。
func (s State) SetFields(values map[string]any) (State, bool) {
	if s.def == nil || !s.Status.Editable() || len(values) == 0 {
		return s, false
	}
	s.Fields = s.Fields.Merge(values)
	return s.bump(), true
}

// Advance 校验当前步骤并前进。最后一步校验通过后进入 submitting。
// failed 状态下 Advance 会重新校验最后一步并再次提交。
func (s State) Advance() (State, Outcome) {
	if s.def == nil {
		return s, OutcomeIgnored
	}
	switch s.Status {
	case StatusInProgress, StatusFailed:
	default:
		return s, OutcomeIgnored
	}

	var errs map[string]string
	if step := s.Step(); step.Active(s.Fields) {
		errs = step.check(s.Fields)
	}
	s.StepErrors = errs
	if len(errs) > 0 {
		return s.bump(), OutcomeBlocked
	}

	if s.Status == StatusInProgress {
		if next := s.def.next(s.StepIndex, s.Fields); next >= 0 {
			s.StepIndex = next
			return s.bump(), OutcomeMoved
		}
	}

	s.StepIndex = s.def.lastIndex()
	s.Status = StatusSubmitting
	s.FailureReason = ""
	s.Attempts++
	return s.bump(), OutcomeSubmit
}

// Retreat 回到上一个激活的步骤，保留所有已填写的字段。
func (s State) Retreat() (State, bool) {
	if s.def == nil || s.Status != StatusInProgress {
		return s, false
	}
	prev := s.def.prev(s.StepIndex, s.Fields)
	if prev < 0 {
		return s, false
	}
	s.StepIndex = prev
	s.StepErrors = nil
	return s.bump(), true
}

// Cancel 在任意非终结状态下终止向导并丢弃字段。
func (s State) Cancel() (State, bool) {
	if s.def == nil || s.Status.Terminal() {
		return s, false
	}
	s.Status = StatusCancelled
	s.Fields = Fields{}
	s.StepErrors = nil
	return s.bump(), true
}

// Complete 应用提交结果，只在 submitting 状态下生效。失败时保留全部字段。
func (s State) Complete(result Result, err error) (State, bool) {
	if s.def == nil || s.Status != StatusSubmitting {
		return s, false
	}
	if err != nil {
		s.Status = StatusFailed
		s.FailureReason = xerrors.MessageOf(err)
		if s.FailureReason == "" {
			s.FailureReason = xerrors.AttributesOf(xerrors.CodeSubmissionFailure).Message
		}
		return s.bump(), true
	}
	s.Status = StatusSucceeded
	s.Result = &result
	s.StepErrors = nil
	return s.bump(), true
}

// Retry 把失败的向导带回最后一步，不重新校验之前的步骤。
func (s State) Retry() (State, bool) {
	if s.def == nil || s.Status != StatusFailed {
		return s, false
	}
	s.Status = StatusInProgress
	s.StepIndex = s.def.lastIndex()
	s.StepErrors = nil
	return s.bump(), true
}

// Err 把当前状态中的可恢复错误表示为统一错误类型，没有错误时返回 nil。
func (s State) Err() error {
	switch {
	case s.Status == StatusFailed:
		return xerrors.New(xerrors.CodeSubmissionFailure, s.FailureReason,
			xerrors.WithMetadata("wizard", string(s.Kind)))
	case len(s.StepErrors) > 0:
		keys := make([]string, 0, len(s.StepErrors))
		for key := range s.StepErrors {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		return xerrors.New(xerrors.CodeStepValidation, "",
			xerrors.WithMetadata("step", s.Step().Name),
			xerrors.WithMetadata("fields", strings.Join(keys, ",")))
	default:
		return nil
	}
}
