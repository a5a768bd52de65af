package handler

import (
	"context"
	"net/http"
	"time"

	"cdpoverride/internal/ctxkeys"
	"cdpoverride/internal/logger"
	"cdpoverride/internal/session"
	"cdpoverride/pkg/model"
	"cdpoverride/pkg/traffic"
)

// Resolver 将 URL 映射为本地文件
type Resolver interface {
	Resolve(rawURL string) (traffic.Resolution, bool)
}

// Builder 根据本地文件构造替代响应
type Builder interface {
	Build(localPath string) (*traffic.SyntheticResponse, error)
}

// Submitter 向浏览器会话提交处置，每个 requestId 只能调用一次
type Submitter interface {
	Continue(ctx context.Context, ex *traffic.Exchange) error
	Fulfill(ctx context.Context, ex *traffic.Exchange, res *traffic.SyntheticResponse) error
}

// Handler 拦截事务调度器：判断放行还是用本地文件响应
type Handler struct {
	resolver Resolver
	builder  Builder
	sessions *session.Manager
	events   chan<- model.Event
	timeout  time.Duration
	log      logger.Logger
}

// Config 配置选项
type Config struct {
	Resolver      Resolver
	Builder       Builder
	Sessions      *session.Manager
	Events        chan<- model.Event
	SubmitTimeout time.Duration // 单次提交处置的超时，<=0 不限制
	Logger        logger.Logger
}

// New 创建调度器
func New(cfg Config) *Handler {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	sm := cfg.Sessions
	if sm == nil {
		sm = session.NewManager(l)
	}
	return &Handler{
		resolver: cfg.Resolver,
		builder:  cfg.Builder,
		sessions: sm,
		events:   cfg.Events,
		timeout:  cfg.SubmitTimeout,
		log:      l,
	}
}

// Eligible 只有源站返回 200 或 404 的事务才可能被本地文件替换
func Eligible(status *int) bool {
	if status == nil {
		return false
	}
	return *status == http.StatusOK || *status == http.StatusNotFound
}

// Handle 处理一次拦截事务并提交唯一的处置。
// 解析与读取文件不受超时限制，超时只作用于每次提交
func (h *Handler) Handle(ctx context.Context, target model.TargetID, sub Submitter, ex *traffic.Exchange) model.Disposition {
	ctx, traceID := ctxkeys.WithTraceID(ctx)
	l := h.log.With("traceId", traceID, "requestID", ex.RequestID)
	evt := model.Event{
		Target:     target,
		TraceID:    traceID,
		RequestID:  ex.RequestID,
		URL:        ex.URL,
		StatusCode: ex.Status(),
	}

	if _, ok := h.sessions.Create(ex.RequestID, ex.URL); !ok {
		evt.Type = model.EventDuplicate
		h.sendEvent(evt)
		return model.DispositionNone
	}
	defer h.sessions.Delete(ex.RequestID)

	if !Eligible(ex.StatusCode) {
		l.Debug("忽略请求，状态码不匹配", "url", ex.URL, "statusCode", ex.Status())
		return h.pass(ctx, sub, ex, evt, model.EventIgnored, "status", l)
	}

	l.Debug("拦截到请求", "url", ex.URL, "statusCode", ex.Status())

	res, ok := h.resolver.Resolve(ex.URL)
	if !ok {
		l.Warn("本地文件不存在", "url", ex.URL)
		return h.pass(ctx, sub, ex, evt, model.EventMissed, "not found", l)
	}
	evt.LocalPath = res.LocalPath
	evt.IndexFallback = res.IndexFallback

	syn, err := h.builder.Build(res.LocalPath)
	if err != nil {
		l.Err(err, "读取本地文件失败，降级放行", "url", ex.URL, "path", res.LocalPath)
		return h.pass(ctx, sub, ex, evt, model.EventFault, err.Error(), l)
	}

	l.Debug("发送本地文件", "path", res.LocalPath, "indexFallback", res.IndexFallback)
	sctx, cancel := h.submitContext(ctx)
	err = sub.Fulfill(sctx, ex, syn)
	cancel()
	if err != nil {
		l.Err(err, "提交本地响应失败，降级放行", "url", ex.URL)
		return h.pass(ctx, sub, ex, evt, model.EventFault, err.Error(), l)
	}

	evt.Type = model.EventFulfilled
	evt.Disposition = model.DispositionFulfill
	evt.ContentType = syn.Header("Content-Type")
	evt.Bytes = len(syn.Body)
	h.sendEvent(evt)
	return model.DispositionFulfill
}

// pass 放行事务并记录原因
func (h *Handler) pass(ctx context.Context, sub Submitter, ex *traffic.Exchange, evt model.Event, typ, reason string, l logger.Logger) model.Disposition {
	sctx, cancel := h.submitContext(ctx)
	defer cancel()
	if err := sub.Continue(sctx, ex); err != nil {
		l.Err(err, "放行请求失败", "url", ex.URL)
	}
	evt.Type = typ
	evt.Reason = reason
	evt.Disposition = model.DispositionContinue
	h.sendEvent(evt)
	return model.DispositionContinue
}

func (h *Handler) submitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

// sendEvent 安全发送事件到通道，自动添加时间戳
func (h *Handler) sendEvent(evt model.Event) {
	if h.events == nil {
		return
	}
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case h.events <- evt:
	default:
	}
}
