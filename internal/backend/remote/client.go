// Package remote talks to an execution collaborator over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"Agentrix-Chat/internal/backend"
	"Agentrix-Chat/internal/intent"
)

// DefaultHTTPTimeout 是未提供 http.Client 时使用的超时时间。
const DefaultHTTPTimeout = 30 * time.Second

const (
	chatEndpoint   = "/api/agent/chat"
	searchEndpoint = "/api/products/search"
)

// Client 封装与远端对话后端的 HTTP 交互。
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
}

// Option 定义客户端的可选配置。
type Option func(*Client)

// WithHTTPClient 替换默认的 http.Client。
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithAPIKey 为每个请求附加 Bearer 凭证。
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// APIError 表示远端返回的错误。
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agent backend error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agent backend error (%d): %s", e.StatusCode, e.Message)
}

// NewClient 创建远端后端客户端。
func NewClient(rawURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("无效的后端地址 %q", rawURL)
	}
	c := &Client{baseURL: parsed, httpClient: &http.Client{Timeout: DefaultHTTPTimeout}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Execute 实现 backend.Executor，请求失败统一包装为 NETWORK_FAILURE。
func (c *Client) Execute(ctx context.Context, req backend.Request) (*intent.Response, error) {
	var resp intent.Response
	if err := c.post(ctx, chatEndpoint, req, &resp); err != nil {
		return nil, backend.NetworkError("chat", err)
	}
	return &resp, nil
}

// SearchProducts 实现 backend.Searcher。
func (c *Client) SearchProducts(ctx context.Context, query string) ([]map[string]any, error) {
	var body struct {
		Products []map[string]any `json:"products"`
		Items    []map[string]any `json:"items"`
	}
	endpoint := searchEndpoint + "?q=" + url.QueryEscape(query)
	if err := c.get(ctx, endpoint, &body); err != nil {
		return nil, backend.NetworkError("search", err)
	}
	if body.Products != nil {
		return body.Products, nil
	}
	if body.Items != nil {
		return body.Items, nil
	}
	return []map[string]any{}, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel.Path = path.Join(c.baseURL.Path, rel.Path)
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr}); err != nil || apiErr.Message == "" {
				_ = json.Unmarshal(data, apiErr)
			}
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

var (
	_ backend.Executor = (*Client)(nil)
	_ backend.Searcher = (*Client)(nil)
)
