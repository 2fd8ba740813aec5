// Package pythonbridge runs an external script as the language model. The
// script reads one JSON request on stdin and writes its JSON reply as the last
// non-empty line on stdout, so it is free to print diagnostics before it.
package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/llm"
)

// Client 通过调用 Python 脚本实现大模型推理。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
	env        []string
}

// Option 调整 Client 的可选参数。
type Option func(*Client)

// WithEnv 追加传给脚本的环境变量，格式为 KEY=VALUE。
func WithEnv(env ...string) Option {
	return func(c *Client) {
		c.env = append(c.env, env...)
	}
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(scriptPath) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	c := &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type bridgeTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bridgeCard struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type bridgeRequest struct {
	Message   string       `json:"message"`
	History   []bridgeTurn `json:"history"`
	Knowledge []bridgeCard `json:"knowledge"`
	Types     []string     `json:"types"`
	Timestamp int64        `json:"timestamp"`
}

type bridgeReply struct {
	Type    string         `json:"type"`
	Thought string         `json:"thought"`
	Reply   string         `json:"reply"`
	Data    map[string]any `json:"data"`
}

// Generate 调用外部脚本，并解析输出。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	in := bridgeRequest{
		Message:   req.Message,
		History:   make([]bridgeTurn, 0, len(req.History)),
		Knowledge: make([]bridgeCard, 0, len(req.Knowledge)),
		Types:     req.Types,
		Timestamp: time.Now().Unix(),
	}
	for _, turn := range req.History {
		in.History = append(in.History, bridgeTurn{Role: turn.Role, Content: turn.Content})
	}
	for _, card := range req.Knowledge {
		in.Knowledge = append(in.Knowledge, bridgeCard{Title: card.Title, Content: card.Content})
	}
	encoded, err := json.Marshal(in)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化脚本请求失败")
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	command.Dir = c.workingDir
	if len(c.env) > 0 {
		command.Env = append(command.Environ(), c.env...)
	}
	command.Stdin = bytes.NewReader(encoded)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			code := xerrors.CodeNetworkFailure
			if stdErrors.Is(ctxErr, context.DeadlineExceeded) {
				code = xerrors.CodeTimeout
			}
			return nil, xerrors.Wrap(code, ctxErr, "Python 脚本被中断")
		}
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err,
			fmt.Sprintf("执行 Python 脚本失败: %s", strings.TrimSpace(stderr.String())))
	}

	line := lastLine(stdout.Bytes())
	if len(line) == 0 {
		return nil, xerrors.New(xerrors.CodeExecutorFailure, "Python 脚本没有输出")
	}
	var out bridgeReply
	if err := json.Unmarshal(line, &out); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExecutorFailure, err, "解析 Python 输出失败")
	}
	if strings.TrimSpace(out.Type) == "" {
		out.Type = "unknown"
	}
	return &llm.Response{
		Type:    out.Type,
		Thought: out.Thought,
		Reply:   out.Reply,
		Data:    out.Data,
	}, nil
}

func lastLine(output []byte) []byte {
	lines := bytes.Split(bytes.TrimSpace(output), []byte("\n"))
	return bytes.TrimSpace(lines[len(lines)-1])
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" || filepath.IsAbs(script) || baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}

var _ llm.Client = (*Client)(nil)
