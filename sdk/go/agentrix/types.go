package agentrix

import (
	"encoding/json"
	"time"
)

// Conversation mirrors the snapshot returned by every conversation endpoint.
type Conversation struct {
	ConversationID string    `json:"conversationId"`
	SessionID      string    `json:"sessionId,omitempty"`
	Messages       []Message `json:"messages"`
	Wizard         *Wizard   `json:"wizard,omitempty"`
	Generation     uint64    `json:"generation"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Last returns the most recent message, if any.
func (c Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Message is one entry of the conversation log.
type Message struct {
	ID        string          `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   *Payload        `json:"structuredPayload,omitempty"`
	Trail     []WorkflowEvent `json:"workflowTrail,omitempty"`
}

// ArchivedMessage is one persisted message returned by History.
type ArchivedMessage struct {
	ConversationID string  `json:"conversationId"`
	SessionID      string  `json:"sessionId,omitempty"`
	Message        Message `json:"message"`
}

// Payload is the tagged structured payload. Data is left raw so callers can
// decode the variant they care about.
type Payload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the payload data into v.
func (p *Payload) Decode(v any) error {
	return json.Unmarshal(p.Data, v)
}

// Payload type tags.
const (
	PayloadProductSearch = "product_search"
	PayloadCart          = "cart"
	PayloadOrder         = "order"
	PayloadCode          = "code"
	PayloadGuidedWizard  = "guided_wizard"
	PayloadPayment       = "payment"
	PayloadError         = "error"
)

// ProductSearchPayload carries catalog search results.
type ProductSearchPayload struct {
	Products []map[string]any `json:"products"`
	Query    string           `json:"query"`
	Total    int              `json:"total"`
}

// CartPayload carries the current cart items.
type CartPayload struct {
	Items []map[string]any `json:"items"`
}

// OrderPayload tracks checkout progress.
type OrderPayload struct {
	OrderID string `json:"orderId"`
	Step    int    `json:"step"`
}

// CodePayload carries generated source code.
type CodePayload struct {
	Source   string `json:"source"`
	Language string `json:"language"`
}

// GuidedWizardPayload snapshots a wizard at the time the message was produced.
type GuidedWizardPayload struct {
	WizardKind string         `json:"wizardKind"`
	Step       int            `json:"step"`
	Fields     map[string]any `json:"fields"`
	View       *Wizard        `json:"view,omitempty"`
}

// PaymentPayload describes a payment request.
type PaymentPayload struct {
	PaymentID string  `json:"paymentId"`
	Amount    float64 `json:"amount"`
	Currency  string  `json:"currency"`
}

// ErrorPayload describes a failure shown to the user.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// WorkflowEvent is one step of the reasoning trail attached to assistant messages.
type WorkflowEvent struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Wizard is the rendering view of an active guided wizard.
type Wizard struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Title         string            `json:"title"`
	Status        string            `json:"status"`
	StepIndex     int               `json:"stepIndex"`
	StepName      string            `json:"stepName"`
	StepTitle     string            `json:"stepTitle"`
	StepFields    []string          `json:"stepFields,omitempty"`
	StepCount     int               `json:"stepCount"`
	Position      int               `json:"position"`
	ActiveSteps   []string          `json:"activeSteps"`
	Fields        map[string]any    `json:"fields"`
	Errors        map[string]string `json:"errors,omitempty"`
	Result        *WizardResult     `json:"result,omitempty"`
	FailureReason string            `json:"failureReason,omitempty"`
	Attempts      int               `json:"attempts"`
}

// WizardResult is the outcome of a successful submission.
type WizardResult struct {
	Reference string         `json:"reference"`
	Summary   string         `json:"summary"`
	Data      map[string]any `json:"data,omitempty"`
}

// Submission is a queued wizard submission job.
type Submission struct {
	ID         string            `json:"id"`
	WizardKind string            `json:"wizard_kind"`
	SessionID  string            `json:"session_id,omitempty"`
	Fields     map[string]any    `json:"fields"`
	Status     string            `json:"status"`
	Attempts   int               `json:"attempts"`
	MaxRetries int               `json:"max_retries"`
	LastError  string            `json:"last_error,omitempty"`
	ErrorCode  string            `json:"error_code,omitempty"`
	Result     *SubmissionResult `json:"result,omitempty"`
	CreatedAt  int64             `json:"created_at"`
	UpdatedAt  int64             `json:"updated_at"`
}

// SubmissionResult holds the on-chain outcome of a submission.
type SubmissionResult struct {
	Reference       string `json:"reference"`
	ContractAddress string `json:"contract_address,omitempty"`
	TxHash          string `json:"tx_hash,omitempty"`
	ChainID         string `json:"chain_id,omitempty"`
	BlockNumber     string `json:"block_number,omitempty"`
	Observations    string `json:"observations,omitempty"`
}

// SubmissionStats aggregates submissions by status.
type SubmissionStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// SubmissionFilter narrows ListSubmissions and SubmissionStats.
type SubmissionFilter struct {
	Statuses []string
	Wizard   string
	Session  string
	Query    string
	Limit    int
	Offset   int
}
