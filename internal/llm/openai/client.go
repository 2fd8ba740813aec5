package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"Agentrix-Chat/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second
	maxHistory       = 8
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client 通过 HTTP 调用 OpenAI 提供的大模型能力。
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 OpenAI API Key")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Generate 调用 OpenAI 生成带判别字段的回复。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建 OpenAI 请求失败: %w", err)
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("请求 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("OpenAI 返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Choices []struct {
			Message message `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return nil, errors.New("OpenAI 响应中没有有效的 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, errors.New("OpenAI 响应内容为空")
	}
	return parseContent(content), nil
}

// parseContent 解析模型输出的 JSON，无法解析时整段内容作为回复，类型视为 unknown。
func parseContent(content string) *llm.Response {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var structured struct {
		Type    string         `json:"type"`
		Thought string         `json:"thought"`
		Reply   string         `json:"reply"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal([]byte(content), &structured); err != nil {
		return &llm.Response{Type: "unknown", Reply: content}
	}
	if strings.TrimSpace(structured.Reply) == "" {
		structured.Reply = content
	}
	if strings.TrimSpace(structured.Type) == "" {
		structured.Type = "unknown"
	}
	return &llm.Response{
		Type:    structured.Type,
		Thought: structured.Thought,
		Reply:   structured.Reply,
		Data:    structured.Data,
	}
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	messages := []message{{Role: "system", Content: buildSystemPrompt(req.Types)}}

	history := req.History
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}
	for _, entry := range history {
		role := entry.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, message{Role: role, Content: entry.Content})
	}
	messages = append(messages, message{Role: "user", Content: buildUserPrompt(req)})

	body := map[string]any{
		"model":           c.model,
		"messages":        messages,
		"temperature":     0.2,
		"response_format": map[string]string{"type": "json_object"},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

func buildSystemPrompt(types []string) string {
	if len(types) == 0 {
		types = []string{"product_search", "view_cart", "query_order", "code", "payment", "unknown"}
	}
	return "" +
		"You are Agentrix, a shopping and Web3 assistant. " +
		"Always respond with a compact JSON object: " +
		"{\"type\": string, \"thought\": string, \"reply\": string, \"data\": object}. " +
		"\"type\" must be one of: " + strings.Join(types, ", ") + ". " +
		"Use Chinese for the reply and summarise the reasoning in \"thought\"."
}

func buildUserPrompt(req llm.Request) string {
	var builder strings.Builder
	builder.WriteString("## 用户消息\n")
	builder.WriteString(strings.TrimSpace(req.Message))
	builder.WriteString("\n")

	if len(req.Knowledge) > 0 {
		builder.WriteString("\n## 参考信息\n")
		for idx, card := range req.Knowledge {
			builder.WriteString(fmt.Sprintf("[%d] %s: %s\n",
				idx+1,
				strings.TrimSpace(card.Title),
				truncate(card.Content),
			))
			if idx >= 4 {
				break
			}
		}
	}

	builder.WriteString("\n请判断用户意图并给出回复。")
	return builder.String()
}

func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len([]rune(text)) > 80 {
		return string([]rune(text)[:80]) + "..."
	}
	return text
}
