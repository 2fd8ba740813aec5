// Package conversation owns conversation sessions: the ordered message log,
// the backend session token and the active wizard. The Router is the only
// writer; every other component works on copies and returns new values.
package conversation

import (
	"context"
	"slices"
	"time"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/payload"
	"Agentrix-Chat/internal/wizard"
	"Agentrix-Chat/internal/workflow"
)

// Role 标识消息的发送方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 是会话中的一条消息，追加后不可修改，更正以新消息的形式出现。
type Message struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role"`
	Content   string           `json:"content"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   *payload.Payload `json:"structuredPayload,omitempty"`
	Trail     []workflow.Event `json:"workflowTrail,omitempty"`
}

// clone 返回与会话存储不共享轨迹与载荷的副本。
func (m Message) clone() Message {
	m.Trail = slices.Clone(m.Trail)
	if m.Payload != nil {
		p := m.Payload.Clone()
		m.Payload = &p
	}
	return m
}

// Snapshot 是会话的只读视图。
type Snapshot struct {
	ConversationID string       `json:"conversationId"`
	SessionID      string       `json:"sessionId,omitempty"`
	Messages       []Message    `json:"messages"`
	Wizard         *wizard.View `json:"wizard,omitempty"`
	Generation     uint64       `json:"generation"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// Last 返回最后一条消息。
func (s Snapshot) Last() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Archive 持久化追加的消息。归档失败只记录日志，不影响对话。
type Archive interface {
	Append(ctx context.Context, conversationID, sessionID string, msg Message) error
}

// Metrics 接收对话链路的计数回调。
type Metrics interface {
	IntentClassified(kind, source string)
	WizardTransition(kind, transition string)
	MessageAppended(role string)
}

// 对话层的错误码。
const (
	CodeSessionNotFound   xerrors.Code = "SESSION_NOT_FOUND"
	CodeWizardNotActive   xerrors.Code = "WIZARD_NOT_ACTIVE"
	CodeWizardConflict    xerrors.Code = "WIZARD_CONFLICT"
	CodeWizardUnavailable xerrors.Code = "WIZARD_UNAVAILABLE"
)

func init() {
	xerrors.Register(CodeSessionNotFound, xerrors.Attributes{Message: "会话不存在", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeWizardNotActive, xerrors.Attributes{Message: "当前没有进行中的向导", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeWizardConflict, xerrors.Attributes{Message: "向导状态不允许该操作", Severity: xerrors.SeverityInfo})
	xerrors.Register(CodeWizardUnavailable, xerrors.Attributes{Message: "暂不支持该向导，请换个需求试试", Severity: xerrors.SeverityWarning})
}
