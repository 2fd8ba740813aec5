// Package agentrix is a Go client for the Agentrix conversation REST API.
package agentrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Wizard submissions wait for on-chain confirmation, so it is generous.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with the Agentrix REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentrix api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentrix api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the Agentrix API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// OpenConversation starts a new conversation.
func (c *Client) OpenConversation(ctx context.Context) (Conversation, error) {
	var conv Conversation
	err := c.send(ctx, http.MethodPost, "/api/v1/conversations", nil, nil, &conv)
	return conv, err
}

// GetConversation returns the current snapshot of a conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := c.send(ctx, http.MethodGet, conversationPath(id), nil, nil, &conv)
	return conv, err
}

// SendMessage submits one user turn and returns the updated conversation.
func (c *Client) SendMessage(ctx context.Context, id, text string) (Conversation, error) {
	var conv Conversation
	err := c.send(ctx, http.MethodPost, conversationPath(id, "messages"), nil, map[string]string{"text": text}, &conv)
	return conv, err
}

// ResetConversation clears messages, the backend session and any wizard.
func (c *Client) ResetConversation(ctx context.Context, id string) (Conversation, error) {
	var conv Conversation
	err := c.send(ctx, http.MethodPost, conversationPath(id, "reset"), nil, nil, &conv)
	return conv, err
}

// AdvanceWizard validates the current step and moves forward, submitting on the last step.
func (c *Client) AdvanceWizard(ctx context.Context, id string) (Conversation, error) {
	return c.wizardOp(ctx, id, "advance")
}

// RetreatWizard returns to the previous active step.
func (c *Client) RetreatWizard(ctx context.Context, id string) (Conversation, error) {
	return c.wizardOp(ctx, id, "retreat")
}

// CancelWizard abandons the active wizard.
func (c *Client) CancelWizard(ctx context.Context, id string) (Conversation, error) {
	return c.wizardOp(ctx, id, "cancel")
}

// RetryWizard brings a failed wizard back to its last step.
func (c *Client) RetryWizard(ctx context.Context, id string) (Conversation, error) {
	return c.wizardOp(ctx, id, "retry")
}

// SetWizardFields edits wizard fields without running validation.
func (c *Client) SetWizardFields(ctx context.Context, id string, fields map[string]any) (Conversation, error) {
	var conv Conversation
	err := c.send(ctx, http.MethodPatch, conversationPath(id, "wizard", "fields"), nil, map[string]any{"fields": fields}, &conv)
	return conv, err
}

// History returns archived messages of a conversation in chronological order.
// A limit of zero returns the whole archive.
func (c *Client) History(ctx context.Context, id string, limit int) ([]ArchivedMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages []ArchivedMessage `json:"messages"`
	}
	if err := c.send(ctx, http.MethodGet, conversationPath(id, "history"), q, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GetSubmission fetches a submission job by identifier.
func (c *Client) GetSubmission(ctx context.Context, id string) (Submission, error) {
	var sub Submission
	err := c.send(ctx, http.MethodGet, "/api/v1/submissions/"+id, nil, nil, &sub)
	return sub, err
}

// ListSubmissions lists submission jobs matching filter, newest first.
func (c *Client) ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]Submission, error) {
	var out struct {
		Tasks []Submission `json:"tasks"`
	}
	if err := c.send(ctx, http.MethodGet, "/api/v1/submissions", filter.values(), nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// SubmissionStats aggregates submission jobs matching filter.
func (c *Client) SubmissionStats(ctx context.Context, filter SubmissionFilter) (SubmissionStats, error) {
	var stats SubmissionStats
	err := c.send(ctx, http.MethodGet, "/api/v1/submissions/stats", filter.values(), nil, &stats)
	return stats, err
}

func (c *Client) wizardOp(ctx context.Context, id, op string) (Conversation, error) {
	var conv Conversation
	err := c.send(ctx, http.MethodPost, conversationPath(id, "wizard", op), nil, nil, &conv)
	return conv, err
}

func conversationPath(id string, parts ...string) string {
	segments := append([]string{"/api/v1/conversations", id}, parts...)
	return strings.Join(segments, "/")
}

func (f SubmissionFilter) values() url.Values {
	q := url.Values{}
	if len(f.Statuses) > 0 {
		q.Set("status", strings.Join(f.Statuses, ","))
	}
	if f.Wizard != "" {
		q.Set("wizard", f.Wizard)
	}
	if f.Session != "" {
		q.Set("session", f.Session)
	}
	if f.Query != "" {
		q.Set("q", f.Query)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
