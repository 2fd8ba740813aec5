package workflow

import (
	"fmt"
	"log/slog"
	"time"

	"Agentrix-Chat/pkg/logger"
)

// Observer 是工作流在各生命周期节点上接收回调的接口。
// 记录器只被动接收回调，不轮询也不推断状态。
type Observer interface {
	IntentResolved(intent, source, detail string)
	ActionTaken(title, description string)
	Decision(title, description string)
	StepAdvanced(wizardKind string, from, to int, stepTitle string)
	StepBlocked(wizardKind string, step int, errorCount int)
	SubmissionAttempted(wizardKind string, attempt int)
	APICall(name string, elapsed time.Duration, err error)
	ResultReceived(title, description string)
}

// Recorder 把生命周期回调转换为轨迹事件，并同步写入审计日志。
type Recorder struct {
	trail *Trail
	attrs []any
}

// NewRecorder 为一次对话轮次创建记录器，attrs 会附加到每条审计日志上。
func NewRecorder(attrs ...slog.Attr) *Recorder {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return &Recorder{trail: NewTrail(), attrs: args}
}

// Record 追加任意类别的事件。
func (r *Recorder) Record(kind Kind, title, description string) Event {
	event := r.trail.Record(kind, title, description)
	args := append([]any{
		slog.String("event_id", event.ID),
		slog.String("kind", string(event.Kind)),
		slog.String("title", event.Title),
		slog.String("description", event.Description),
	}, r.attrs...)
	logger.Audit().Info("workflow event", args...)
	return event
}

// Events 返回当前轨迹的副本。
func (r *Recorder) Events() []Event {
	return r.trail.Events()
}

// Len 返回已记录的事件数量。
func (r *Recorder) Len() int {
	return r.trail.Len()
}

func (r *Recorder) IntentResolved(intent, source, detail string) {
	r.Record(KindIntent, "意图识别", fmt.Sprintf("意图: %s, 来源: %s, %s", intent, source, detail))
}

func (r *Recorder) ActionTaken(title, description string) {
	r.Record(KindAction, title, description)
}

func (r *Recorder) Decision(title, description string) {
	r.Record(KindDecision, title, description)
}

func (r *Recorder) StepAdvanced(wizardKind string, from, to int, stepTitle string) {
	r.Record(KindAction, "向导步骤推进", fmt.Sprintf("%s: 第 %d 步 -> 第 %d 步 (%s)", wizardKind, from+1, to+1, stepTitle))
}

func (r *Recorder) StepBlocked(wizardKind string, step int, errorCount int) {
	r.Record(KindDecision, "步骤校验未通过", fmt.Sprintf("%s: 第 %d 步存在 %d 个错误", wizardKind, step+1, errorCount))
}

func (r *Recorder) SubmissionAttempted(wizardKind string, attempt int) {
	r.Record(KindAction, "提交向导", fmt.Sprintf("%s: 第 %d 次提交", wizardKind, attempt))
}

func (r *Recorder) APICall(name string, elapsed time.Duration, err error) {
	description := fmt.Sprintf("调用: %s, 耗时: %dms", name, elapsed.Milliseconds())
	if err != nil {
		description = fmt.Sprintf("%s, 失败: %v", description, err)
	}
	r.Record(KindAPICall, "API调用完成", description)
}

func (r *Recorder) ResultReceived(title, description string) {
	r.Record(KindResult, title, description)
}

var _ Observer = (*Recorder)(nil)
