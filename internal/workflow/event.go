// Package workflow records the append-only audit trail attached to an
// assistant message: which intent was resolved, what action was taken, which
// decision was made, which external calls happened and what came out.
package workflow

import (
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind 表示工作流事件的类别。
type Kind string

const (
	KindIntent   Kind = "intent"
	KindAction   Kind = "action"
	KindDecision Kind = "decision"
	KindAPICall  Kind = "api_call"
	KindResult   Kind = "result"
)

// Valid 判断事件类别是否受支持。
func (k Kind) Valid() bool {
	switch k {
	case KindIntent, KindAction, KindDecision, KindAPICall, KindResult:
		return true
	default:
		return false
	}
}

// Event 是审计轨迹中的一条记录，追加后不可修改。
type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Trail 是单条助手消息对应的事件序列，只支持追加。
type Trail struct {
	mu     sync.Mutex
	events []Event
	now    func() time.Time
}

// NewTrail 创建空的事件轨迹。
func NewTrail() *Trail {
	return &Trail{now: time.Now}
}

// Record 追加一条事件并返回其副本。时间戳保证单调不减，
// 即使系统时钟回拨也不会出现后记录的事件早于前一条。
func (t *Trail) Record(kind Kind, title, description string) Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now
	if t.now != nil {
		now = t.now
	}
	ts := now()
	if n := len(t.events); n > 0 && ts.Before(t.events[n-1].Timestamp) {
		ts = t.events[n-1].Timestamp
	}
	event := Event{
		ID:          uuid.NewString(),
		Kind:        kind,
		Title:       title,
		Description: description,
		Timestamp:   ts,
	}
	t.events = append(t.events, event)
	return event
}

// Events 返回事件副本，调用方无法借此改写轨迹。
func (t *Trail) Events() []Event {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.events)
}

// Len 返回已记录的事件数量。
func (t *Trail) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
