package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"Agentrix-Chat/internal/conversation"
	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/observability/metrics"
	archive "Agentrix-Chat/internal/storage/mysql"
	"Agentrix-Chat/internal/task"
	"Agentrix-Chat/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Conversations 是会话存储对外的操作集合，由 *conversation.Router 实现。
type Conversations interface {
	Open(ctx context.Context) conversation.Snapshot
	Get(id string) (conversation.Snapshot, error)
	Reset(ctx context.Context, id string) (conversation.Snapshot, error)
	HandleTurn(ctx context.Context, id, text string) (conversation.Snapshot, error)
	Advance(ctx context.Context, id string) (conversation.Snapshot, error)
	Retreat(ctx context.Context, id string) (conversation.Snapshot, error)
	Cancel(ctx context.Context, id string) (conversation.Snapshot, error)
	Retry(ctx context.Context, id string) (conversation.Snapshot, error)
	SetFields(ctx context.Context, id string, fields map[string]any) (conversation.Snapshot, error)
}

// Submissions 提供提交任务的查询能力，由 *task.Service 实现。
type Submissions interface {
	Get(ctx context.Context, id string) (*task.Task, error)
	List(ctx context.Context, opts ...task.ListOption) ([]*task.Task, error)
	Stats(ctx context.Context, opts ...task.ListOption) (task.TaskStats, error)
}

// History 读取归档中的会话消息。
type History interface {
	ListConversation(ctx context.Context, conversationID string, limit int) ([]archive.ArchivedMessage, error)
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr          string
	conversations Conversations
	submissions   Submissions
	history       History
	metrics       *metrics.Collector
	log           *slog.Logger
}

// Option 定义 Server 的可选配置。
type Option func(*Server)

// WithSubmissions 启用提交任务查询接口。
func WithSubmissions(submissions Submissions) Option {
	return func(s *Server) {
		s.submissions = submissions
	}
}

// WithHistory 启用会话归档查询接口。
func WithHistory(history History) Option {
	return func(s *Server) {
		s.history = history
	}
}

// WithMetrics 启用请求指标与 /metrics 端点。
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Server) {
		s.metrics = collector
	}
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, conversations Conversations, opts ...Option) *Server {
	s := &Server{addr: addr, conversations: conversations, log: logger.Named("api")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler 返回挂载了全部路由的 http.Handler。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /api/v1/conversations", "conversation_open", s.handleOpen)
	s.route(mux, "GET /api/v1/conversations/{id}", "conversation_get", s.handleGet)
	s.route(mux, "GET /api/v1/conversations/{id}/history", "conversation_history", s.handleHistory)
	s.route(mux, "POST /api/v1/conversations/{id}/messages", "conversation_turn", s.handleTurn)
	s.route(mux, "POST /api/v1/conversations/{id}/reset", "conversation_reset", s.handleReset)
	s.route(mux, "POST /api/v1/conversations/{id}/wizard/{op}", "wizard_op", s.handleWizardOp)
	s.route(mux, "PATCH /api/v1/conversations/{id}/wizard/fields", "wizard_fields", s.handleWizardFields)
	s.route(mux, "GET /api/v1/submissions", "submission_list", s.handleListSubmissions)
	s.route(mux, "GET /api/v1/submissions/stats", "submission_stats", s.handleSubmissionStats)
	s.route(mux, "GET /api/v1/submissions/{id}", "submission_get", s.handleGetSubmission)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info("API 服务已启动", slog.String("addr", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, handler http.HandlerFunc) {
	var h http.Handler = handler
	if s.metrics != nil {
		h = s.metrics.Middleware(name, h)
	}
	mux.Handle(pattern, h)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, s.conversations.Open(r.Context()))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := s.conversations.Get(r.PathValue("id"))
	s.respond(w, r, snap, err)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeInitializationFailure, "会话归档未启用"))
		return
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	records, err := s.history.ListConversation(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []archive.ArchivedMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": records})
}

type turnRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.conversations.HandleTurn(r.Context(), r.PathValue("id"), req.Text)
	s.respond(w, r, snap, err)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	snap, err := s.conversations.Reset(r.Context(), r.PathValue("id"))
	s.respond(w, r, snap, err)
}

func (s *Server) handleWizardOp(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()
	var (
		snap conversation.Snapshot
		err  error
	)
	switch r.PathValue("op") {
	case "advance":
		snap, err = s.conversations.Advance(ctx, id)
	case "retreat":
		snap, err = s.conversations.Retreat(ctx, id)
	case "cancel":
		snap, err = s.conversations.Cancel(ctx, id)
	case "retry":
		snap, err = s.conversations.Retry(ctx, id)
	default:
		http.NotFound(w, r)
		return
	}
	s.respond(w, r, snap, err)
}

type fieldsRequest struct {
	Fields map[string]any `json:"fields"`
}

func (s *Server) handleWizardFields(w http.ResponseWriter, r *http.Request) {
	var req fieldsRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := s.conversations.SetFields(r.Context(), r.PathValue("id"), req.Fields)
	s.respond(w, r, snap, err)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	if s.submissions == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeInitializationFailure, "提交任务服务未启用"))
		return
	}
	t, err := s.submissions.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.submissions == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeInitializationFailure, "提交任务服务未启用"))
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	tasks, err := s.submissions.List(r.Context(), opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleSubmissionStats(w http.ResponseWriter, r *http.Request) {
	if s.submissions == nil {
		s.writeError(w, r, xerrors.New(xerrors.CodeInitializationFailure, "提交任务服务未启用"))
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	stats, err := s.submissions.Stats(r.Context(), opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// listOptions 把查询参数转换为任务过滤条件。
func listOptions(r *http.Request) ([]task.ListOption, error) {
	q := r.URL.Query()
	var opts []task.ListOption
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		var statuses []task.Status
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				statuses = append(statuses, task.Status(part))
			}
		}
		opts = append(opts, task.WithStatuses(statuses...))
	}
	if kind := strings.TrimSpace(q.Get("wizard")); kind != "" {
		opts = append(opts, task.WithWizardKind(kind))
	}
	if session := strings.TrimSpace(q.Get("session")); session != "" {
		opts = append(opts, task.WithSession(session))
	}
	if query := strings.TrimSpace(q.Get("q")); query != "" {
		opts = append(opts, task.WithQuery(query))
	}
	if q.Get("order") == "asc" {
		opts = append(opts, task.WithSortOrder(task.SortByUpdatedAsc))
	}
	if raw := q.Get("has_result"); raw != "" {
		hasResult, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "has_result 参数无效")
		}
		opts = append(opts, task.WithResultPresence(hasResult))
	}
	for _, name := range []string{"since", "until"} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, name+" 参数需要 RFC3339 时间")
		}
		if name == "since" {
			opts = append(opts, task.WithUpdatedSince(ts))
		} else {
			opts = append(opts, task.WithUpdatedUntil(ts))
		}
	}
	limit, err := intParam(r, "limit")
	if err != nil {
		return nil, err
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		return nil, err
	}
	if limit > 0 {
		opts = append(opts, task.WithLimit(limit))
	}
	if offset > 0 {
		opts = append(opts, task.WithOffset(offset))
	}
	return opts, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, name+" 参数必须是非负整数")
	}
	return value, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "请求体解析失败")
	}
	return nil
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, snap conversation.Snapshot, err error) {
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := xerrors.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("code", string(code)),
			slog.Any("error", err))
	}
	body := errorBody{Code: string(code), Message: xerrors.MessageOf(err)}
	if coded, ok := xerrors.From(err); ok {
		body.Metadata = coded.Metadata()
	}
	writeJSON(w, status, map[string]errorBody{"error": body})
}

// statusFor 把错误码映射为 HTTP 状态码。
func statusFor(code xerrors.Code) int {
	switch code {
	case conversation.CodeSessionNotFound, task.CodeTaskNotFound, xerrors.CodeNotFound:
		return http.StatusNotFound
	case xerrors.CodeInvalidArgument, task.CodeTaskValidation:
		return http.StatusBadRequest
	case conversation.CodeWizardNotActive, conversation.CodeWizardConflict, task.CodeTaskConflict, xerrors.CodeConflict:
		return http.StatusConflict
	case xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
