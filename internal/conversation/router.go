package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"Agentrix-Chat/internal/backend"
	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/intent"
	"Agentrix-Chat/internal/payload"
	"Agentrix-Chat/internal/wizard"
	"Agentrix-Chat/internal/workflow"
	"Agentrix-Chat/pkg/logger"
)

// session 是单个会话的聚合根。turnMu 串行化对话轮次，mu 保护状态本身；
// 提交与补充检索期间不持有 mu，结果回来后按 generation 与向导标识校验再应用。
type session struct {
	id        string
	createdAt time.Time

	turnMu sync.Mutex

	mu           sync.Mutex
	sessionID    string
	messages     []Message
	wizard       *wizard.State
	generation   uint64
	submitCancel context.CancelFunc
}

func (s *session) snapshotLocked() Snapshot {
	messages := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		messages[i] = msg.clone()
	}
	snap := Snapshot{
		ConversationID: s.id,
		SessionID:      s.sessionID,
		Messages:       messages,
		Generation:     s.generation,
		CreatedAt:      s.createdAt,
	}
	if s.wizard != nil {
		view := s.wizard.View()
		snap.Wizard = &view
	}
	return snap
}

// submitting 报告向导是否正在等待提交结果。
func (s *session) submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wizard != nil && s.wizard.Status == wizard.StatusSubmitting
}

// teardownLocked 销毁当前向导并使所有在途的异步结果失效。
func (s *session) teardownLocked() {
	if s.submitCancel != nil {
		s.submitCancel()
		s.submitCancel = nil
	}
	s.wizard = nil
	s.generation++
}

// Router 是会话存储，负责把每轮输入路由到分类器、执行后端或进行中的向导。
type Router struct {
	classifier *intent.Classifier
	wizards    *wizard.Catalog
	submitter  wizard.Submitter
	executor   backend.Executor
	searcher   backend.Searcher
	archive    Archive
	metrics    Metrics
	now        func() time.Time
	log        *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option 定义 Router 的可选配置。
type Option func(*Router)

// WithExecutor 配置执行后端。
func WithExecutor(executor backend.Executor) Option {
	return func(r *Router) {
		r.executor = executor
	}
}

// WithSearcher 配置商品补充检索。
func WithSearcher(searcher backend.Searcher) Option {
	return func(r *Router) {
		r.searcher = searcher
	}
}

// WithArchive 配置消息归档。
func WithArchive(archive Archive) Option {
	return func(r *Router) {
		r.archive = archive
	}
}

// WithMetrics 配置指标回调。
func WithMetrics(metrics Metrics) Option {
	return func(r *Router) {
		if metrics != nil {
			r.metrics = metrics
		}
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRouter 创建会话存储。缺少分类器、向导目录或提交器属于装配错误。
func NewRouter(classifier *intent.Classifier, wizards *wizard.Catalog, submitter wizard.Submitter, opts ...Option) (*Router, error) {
	if classifier == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置意图分类器")
	}
	if wizards == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置向导目录")
	}
	if submitter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置向导提交器")
	}
	r := &Router{
		classifier: classifier,
		wizards:    wizards,
		submitter:  submitter,
		metrics:    noopMetrics{},
		now:        time.Now,
		log:        logger.Named("conversation"),
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Open 创建新的会话。
func (r *Router) Open(ctx context.Context) Snapshot {
	s := &session{id: uuid.NewString(), createdAt: r.now()}
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
	r.log.InfoContext(ctx, "conversation opened", slog.String("conversation_id", s.id))
	return r.snapshot(s)
}

// Get 返回会话快照。
func (r *Router) Get(id string) (Snapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(s), nil
}

// Reset 清空会话：销毁向导、清除消息与后端会话标识，在途结果随之作废。
func (r *Router) Reset(ctx context.Context, id string) (Snapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	if s.wizard != nil {
		r.metrics.WizardTransition(string(s.wizard.Kind), "reset")
		r.auditWizard(s, *s.wizard, "reset")
	}
	s.teardownLocked()
	s.messages = nil
	s.sessionID = ""
	snap := s.snapshotLocked()
	s.mu.Unlock()
	r.log.InfoContext(ctx, "conversation reset", slog.String("conversation_id", id))
	return snap, nil
}

// HandleTurn 处理一轮用户输入。用户消息先完整追加，再处理助手回复。
// 向导进行中时输入被解析为向导指令；否则依次经过执行后端、分类器与载荷整形。
func (r *Router) HandleTurn(ctx context.Context, id, text string) (Snapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Snapshot{}, xerrors.New(xerrors.CodeInvalidArgument, "消息内容不能为空")
	}

	// 提交不设超时，提交中的取消指令不能排在进行中的轮次之后。
	op, fields := parseCommand(text)
	cancelSubmit := op == opCancel && s.submitting()
	if !cancelSubmit {
		s.turnMu.Lock()
		defer s.turnMu.Unlock()
	}

	s.mu.Lock()
	user := r.appendLocked(s, r.newMessage(RoleUser, text, nil, nil))
	sessionID := s.sessionID
	generation := s.generation
	var activeKind wizard.Kind
	if s.wizard != nil {
		activeKind = s.wizard.Kind
	}
	s.mu.Unlock()
	r.persist(ctx, s.id, sessionID, user)

	rec := workflow.NewRecorder(slog.String("conversation_id", s.id))
	if activeKind != "" || cancelSubmit {
		rec.IntentResolved(string(activeKind), "wizard", fmt.Sprintf("向导进行中, 指令: %s", op))
		rec.ActionTaken("向导操作", fmt.Sprintf("指令: %s, 字段: %d", op, len(fields)))
		r.metrics.IntentClassified(string(activeKind), "wizard")
		if _, err := r.runWizard(ctx, s, op, fields, rec, true); err != nil {
			return r.snapshot(s), err
		}
		return r.snapshot(s), nil
	}
	return r.handleFreeTurn(ctx, s, text, sessionID, generation, rec)
}

// Advance 校验当前步骤并前进，最后一步时提交。提交进行中再次调用不会重复提交。
func (r *Router) Advance(ctx context.Context, id string) (Snapshot, error) {
	return r.wizardCommand(ctx, id, opAdvance, nil)
}

// Retreat 回到上一步，保留已填写的字段。
func (r *Router) Retreat(ctx context.Context, id string) (Snapshot, error) {
	return r.wizardCommand(ctx, id, opRetreat, nil)
}

// Cancel 取消进行中的向导，提交中的请求会收到取消信号，其结果被丢弃。
func (r *Router) Cancel(ctx context.Context, id string) (Snapshot, error) {
	return r.wizardCommand(ctx, id, opCancel, nil)
}

// Retry 把提交失败的向导带回最后一步。
func (r *Router) Retry(ctx context.Context, id string) (Snapshot, error) {
	return r.wizardCommand(ctx, id, opRetry, nil)
}

// SetFields 修改向导字段，不触发校验。
func (r *Router) SetFields(ctx context.Context, id string, fields map[string]any) (Snapshot, error) {
	if len(fields) == 0 {
		return Snapshot{}, xerrors.New(xerrors.CodeInvalidArgument, "字段不能为空")
	}
	return r.wizardCommand(ctx, id, opEdit, fields)
}

func (r *Router) wizardCommand(ctx context.Context, id string, op wizardOp, fields map[string]any) (Snapshot, error) {
	s, err := r.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	rec := workflow.NewRecorder(slog.String("conversation_id", s.id))
	rec.ActionTaken("向导操作", fmt.Sprintf("指令: %s, 字段: %d", op, len(fields)))
	if _, err := r.runWizard(ctx, s, op, fields, rec, false); err != nil {
		return r.snapshot(s), err
	}
	return r.snapshot(s), nil
}

// runWizard 对进行中的向导执行一次操作。chat 为 true 时任何结果都会生成回复消息，
// 否则未生效的操作返回错误且不追加消息。返回值表示提交结果是否因取消而被丢弃。
func (r *Router) runWizard(ctx context.Context, s *session, op wizardOp, fields map[string]any, rec *workflow.Recorder, chat bool) (bool, error) {
	s.mu.Lock()
	if s.wizard == nil {
		if !chat {
			s.mu.Unlock()
			return false, xerrors.New(CodeWizardNotActive, "")
		}
		msg := r.appendLocked(s, r.newMessage(RoleAssistant, xerrors.AttributesOf(CodeWizardNotActive).Message, nil, rec.Events()))
		sessionID := s.sessionID
		s.mu.Unlock()
		r.persist(ctx, s.id, sessionID, msg)
		return false, nil
	}

	before := *s.wizard
	current := before
	title := before.Definition().Title
	kind := string(before.Kind)
	edited := false
	if len(fields) > 0 {
		if next, ok := current.SetFields(fields); ok {
			current = next
			edited = true
		}
	}

	var (
		transition string
		content    string
		changed    bool
		submit     bool
	)
	switch op {
	case opEdit:
		changed = edited
		transition, content = "edited", editedText(current.View())
		if !edited {
			transition, content = "ignored", ignoredText(current.View())
		}
	case opAdvance:
		next, outcome := current.Advance()
		current = next
		switch outcome {
		case wizard.OutcomeBlocked:
			changed = true
			rec.StepBlocked(kind, current.StepIndex, len(current.StepErrors))
			transition, content = "blocked", blockedText(current.View())
		case wizard.OutcomeMoved:
			changed = true
			rec.StepAdvanced(kind, before.StepIndex, current.StepIndex, current.Step().Title)
			transition, content = "advanced", stepPrompt(current.View())
		case wizard.OutcomeSubmit:
			changed, submit = true, true
			transition = "submitting"
		default:
			changed = edited
			transition, content = "ignored", ignoredText(current.View())
		}
	case opRetreat:
		if next, ok := current.Retreat(); ok {
			current, changed = next, true
			transition, content = "retreated", stepPrompt(current.View())
		} else {
			changed = edited
			transition, content = "ignored", ignoredText(current.View())
		}
	case opRetry:
		if next, ok := current.Retry(); ok {
			current, changed = next, true
			transition, content = "retried", retriedText(current.View())
		} else {
			changed = edited
			transition, content = "ignored", ignoredText(current.View())
		}
	case opCancel:
		if next, ok := current.Cancel(); ok {
			current, changed = next, true
			transition, content = "cancelled", cancelledText(title)
		} else {
			changed = edited
			transition, content = "ignored", ignoredText(current.View())
		}
	}

	if !changed && !chat {
		s.mu.Unlock()
		return false, xerrors.New(CodeWizardConflict, "",
			xerrors.WithMetadata("status", string(before.Status)),
			xerrors.WithMetadata("op", string(op)))
	}
	r.metrics.WizardTransition(kind, transition)

	if current.Status == wizard.StatusCancelled {
		r.auditWizard(s, current, "cancelled")
		s.teardownLocked()
	} else {
		stored := current
		s.wizard = &stored
	}

	if submit {
		return r.submit(ctx, s, current, rec)
	}

	var p *payload.Payload
	if current.Status != wizard.StatusCancelled {
		wp := payload.FromWizard(current.View())
		p = &wp
	}
	rec.ResultReceived("响应生成完成", fmt.Sprintf("向导: %s, 结果: %s", kind, transition))
	msg := r.appendLocked(s, r.newMessage(RoleAssistant, content, p, rec.Events()))
	sessionID := s.sessionID
	s.mu.Unlock()
	r.persist(ctx, s.id, sessionID, msg)
	return false, nil
}

// submit 在不持有状态锁的情况下调用提交器，且每次进入 submitting 只调用一次。
// 调用方持有 s.mu 进入，本函数负责释放。
func (r *Router) submit(ctx context.Context, s *session, st wizard.State, rec *workflow.Recorder) (bool, error) {
	submitCtx, cancel := context.WithCancel(wizard.WithSubmissionInfo(context.WithoutCancel(ctx), wizard.SubmissionInfo{
		ConversationID: s.id,
		SessionID:      s.sessionID,
		WizardID:       st.ID,
		Attempt:        st.Attempts,
	}))
	s.submitCancel = cancel
	wizardID := st.ID
	kind := string(st.Kind)
	fields := st.Fields.Clone()
	s.mu.Unlock()

	rec.SubmissionAttempted(kind, st.Attempts)
	start := r.now()
	result, err := r.submitter.Submit(submitCtx, st.Kind, fields)
	rec.APICall("wizard.submit", r.now().Sub(start), err)
	cancel()

	s.mu.Lock()
	current := s.wizard
	if current == nil || current.ID != wizardID || current.Status != wizard.StatusSubmitting {
		s.mu.Unlock()
		r.log.InfoContext(ctx, "discard submission result",
			slog.String("conversation_id", s.id),
			slog.String("wizard_id", wizardID))
		return true, nil
	}
	s.submitCancel = nil

	done, _ := current.Complete(result, err)
	var (
		content    string
		transition string
	)
	wp := payload.FromWizard(done.View())
	if done.Status == wizard.StatusSucceeded {
		transition, content = "succeeded", succeededText(done.View())
		r.auditWizard(s, done, "succeeded")
		s.teardownLocked()
	} else {
		transition, content = "failed", failedText(done.View())
		r.auditWizard(s, done, "failed")
		r.log.WarnContext(ctx, "wizard submission failed",
			slog.String("conversation_id", s.id),
			slog.String("wizard", kind),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.Any("error", err))
		stored := done
		s.wizard = &stored
	}
	r.metrics.WizardTransition(kind, transition)
	rec.ResultReceived("响应生成完成", fmt.Sprintf("向导: %s, 结果: %s", kind, transition))
	msg := r.appendLocked(s, r.newMessage(RoleAssistant, content, &wp, rec.Events()))
	sessionID := s.sessionID
	s.mu.Unlock()
	r.persist(ctx, s.id, sessionID, msg)
	return false, nil
}

func (r *Router) handleFreeTurn(ctx context.Context, s *session, text, sessionID string, generation uint64, rec *workflow.Recorder) (Snapshot, error) {
	in := r.classifier.Classify(text, nil)

	var (
		resp       *intent.Response
		backendErr error
	)
	if !in.Kind.IsWizard() && r.executor != nil {
		start := r.now()
		resp, backendErr = r.executor.Execute(ctx, backend.Request{Text: text, SessionID: sessionID})
		rec.APICall("agent.chat", r.now().Sub(start), backendErr)
		if backendErr != nil {
			backendErr = backend.NetworkError("chat", backendErr)
			r.log.WarnContext(ctx, "execution backend failed",
				slog.String("conversation_id", s.id), slog.Any("error", backendErr))
			resp = nil
		}
		in = r.classifier.Classify(text, resp)
	}
	rec.IntentResolved(string(in.Kind), string(in.Source), in.Rule)
	r.metrics.IntentClassified(string(in.Kind), string(in.Source))

	data := in.Data
	if in.NeedsFallbackSearch() && r.searcher != nil {
		query, _ := data["query"].(string)
		if strings.TrimSpace(query) == "" {
			query = text
		}
		start := r.now()
		products, err := r.searcher.SearchProducts(ctx, query)
		rec.APICall("products.search", r.now().Sub(start), err)
		if err != nil {
			r.log.WarnContext(ctx, "fallback product search failed",
				slog.String("conversation_id", s.id), slog.Any("error", backend.NetworkError("search", err)))
			rec.Decision("降级处理", "商品补充检索失败，使用原始结果")
		} else {
			data = maps.Clone(data)
			if data == nil {
				data = make(map[string]any)
			}
			data["products"] = products
			data["query"] = query
		}
	}

	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		r.log.InfoContext(ctx, "discard turn result after teardown", slog.String("conversation_id", s.id))
		return r.snapshot(s), nil
	}
	if resp != nil && resp.SessionID != "" {
		switch {
		case s.sessionID == "":
			s.sessionID = resp.SessionID
		case s.sessionID != resp.SessionID:
			r.log.WarnContext(ctx, "ignore backend session id change",
				slog.String("conversation_id", s.id),
				slog.String("session_id", s.sessionID),
				slog.String("received", resp.SessionID))
		}
	}

	var msg Message
	if in.Kind.IsWizard() && s.wizard == nil {
		if def, ok := r.wizards.Lookup(wizard.Kind(in.Kind)); ok {
			st := wizard.Start(def)
			s.wizard = &st
			r.metrics.WizardTransition(string(st.Kind), "started")
			view := st.View()
			rec.ActionTaken("启动向导", def.Title)
			rec.Decision("生成结构化响应", "类型: "+string(payload.TypeGuidedWizard))
			rec.ResultReceived("响应生成完成", fmt.Sprintf("向导: %s, 步骤: %s", st.Kind, view.StepName))
			wp := payload.FromWizard(view)
			msg = r.newMessage(RoleAssistant, startedText(view), &wp, rec.Events())
		} else {
			r.log.WarnContext(ctx, "wizard kind not configured",
				slog.String("conversation_id", s.id), slog.String("wizard", string(in.Kind)))
			ep := payload.NewError(xerrors.AttributesOf(CodeWizardUnavailable).Message, string(CodeWizardUnavailable))
			rec.Decision("向导不可用", fmt.Sprintf("未配置向导: %s", in.Kind))
			rec.ResultReceived("响应生成完成", "已生成错误响应")
			msg = r.newMessage(RoleAssistant, ep.Error.Message, &ep, rec.Events())
		}
	}
	if msg.ID == "" {
		content, p := reply(in, resp, data, backendErr)
		rec.ActionTaken("执行动作", fmt.Sprintf("类型: %s", in.Kind))
		decision := "纯文本回复"
		if p != nil {
			decision = "类型: " + string(p.Type)
		}
		rec.Decision("生成结构化响应", decision)
		rec.ResultReceived("响应生成完成", "已生成用户响应")
		msg = r.newMessage(RoleAssistant, content, p, rec.Events())
	}
	msg = r.appendLocked(s, msg)
	currentSession := s.sessionID
	snap := s.snapshotLocked()
	s.mu.Unlock()
	r.persist(ctx, s.id, currentSession, msg)
	return snap, nil
}

// reply 生成非向导轮次的回复文本与载荷。后端失败且没有任何数据时返回 error 载荷。
func reply(in intent.Intent, resp *intent.Response, data map[string]any, backendErr error) (string, *payload.Payload) {
	content := ""
	if resp != nil {
		content = strings.TrimSpace(resp.Response)
	}
	if backendErr != nil && len(data) == 0 {
		p := payload.NewError(xerrors.MessageOf(backendErr), string(xerrors.CodeOf(backendErr)))
		if content == "" {
			content = "暂时无法连接服务，请稍后再试。"
		}
		return content, &p
	}
	if in.Kind == intent.KindUnknown && len(data) == 0 {
		if content == "" {
			content = "抱歉，我没有理解你的意思，可以换个说法吗？"
		}
		return content, nil
	}
	p := payload.NormalizeOrError(in, data)
	if content == "" {
		content = defaultContent(p)
	}
	return content, &p
}

func defaultContent(p payload.Payload) string {
	switch p.Type {
	case payload.TypeProductSearch:
		return fmt.Sprintf("为你找到 %d 件商品。", p.ProductSearch.Total)
	case payload.TypeCart:
		return fmt.Sprintf("购物车中有 %d 件商品。", len(p.Cart.Items))
	case payload.TypeOrder:
		return fmt.Sprintf("订单 %s 当前处于第 %d 步。", p.Order.OrderID, p.Order.Step)
	case payload.TypeCode:
		return fmt.Sprintf("已生成 %s 代码。", p.Code.Language)
	case payload.TypePayment:
		return fmt.Sprintf("请确认支付 %.2f %s。", p.Payment.Amount, p.Payment.Currency)
	case payload.TypeError:
		return p.Error.Message
	default:
		return ""
	}
}

func (r *Router) lookup(id string) (*session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(CodeSessionNotFound, "", xerrors.WithMetadata("conversation_id", id))
	}
	return s, nil
}

func (r *Router) snapshot(s *session) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (r *Router) newMessage(role Role, content string, p *payload.Payload, trail []workflow.Event) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: r.now(),
		Payload:   p,
		Trail:     trail,
	}
}

// appendLocked 追加消息，时间戳不早于上一条消息。调用方必须持有 s.mu。
func (r *Router) appendLocked(s *session, msg Message) Message {
	if n := len(s.messages); n > 0 && msg.Timestamp.Before(s.messages[n-1].Timestamp) {
		msg.Timestamp = s.messages[n-1].Timestamp
	}
	s.messages = append(s.messages, msg.clone())
	r.metrics.MessageAppended(string(msg.Role))
	return msg
}

func (r *Router) persist(ctx context.Context, conversationID, sessionID string, msgs ...Message) {
	if r.archive == nil {
		return
	}
	for _, msg := range msgs {
		if err := r.archive.Append(ctx, conversationID, sessionID, msg); err != nil {
			r.log.WarnContext(ctx, "archive message failed",
				slog.String("conversation_id", conversationID),
				slog.String("message_id", msg.ID),
				slog.Any("error", err))
		}
	}
}

func (r *Router) auditWizard(s *session, st wizard.State, outcome string) {
	logger.Audit().Info("wizard terminal",
		slog.String("conversation_id", s.id),
		slog.String("wizard_id", st.ID),
		slog.String("wizard", string(st.Kind)),
		slog.String("outcome", outcome),
		slog.Int("attempts", st.Attempts),
	)
}

type noopMetrics struct{}

func (noopMetrics) IntentClassified(string, string) {}
func (noopMetrics) WizardTransition(string, string) {}
func (noopMetrics) MessageAppended(string)          {}
