package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cdpoverride/internal/config"
	"cdpoverride/internal/executor"
	"cdpoverride/internal/handler"
	"cdpoverride/internal/logger"
	"cdpoverride/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/rpcc"
)

// ErrNotAttached 尚未连接到目标
var ErrNotAttached = errors.New("not attached")

// Options 会话配置
type Options struct {
	DevToolsURL      string
	Target           string // 目标ID，为空时选择第一个页面
	StartURL         string // 非空时新建标签页
	Concurrency      int
	PendingCapacity  int
	ProcessTimeoutMS int
	Events           chan<- model.Event
}

// Manager 管理与浏览器目标的 CDP 会话并把拦截事件交给调度器
type Manager struct {
	opts     Options
	ov       config.Override
	handler  *handler.Handler
	log      logger.Logger
	pool     *workerPool
	sub      handler.Submitter
	target   model.TargetID
	conn     *rpcc.Conn
	client   *cdp.Client
	ctx      context.Context
	cancel   context.CancelFunc
	stop     context.CancelFunc // 结束事件流
	done     chan struct{}
	inflight sync.WaitGroup
}

// New 创建会话管理器
func New(opts Options, ov config.Override, h *handler.Handler, l logger.Logger) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	return &Manager{opts: opts, ov: ov, handler: h, log: l, done: make(chan struct{})}
}

// Patterns 只拦截响应阶段：远程前缀下的资源与入口路由
func Patterns(ov config.Override) []fetch.RequestPattern {
	prefix := "*" + ov.RemotePrefix + "*"
	entry := "*" + ov.EntryRouteSuffix
	return []fetch.RequestPattern{
		{URLPattern: &prefix, RequestStage: fetch.RequestStageResponse},
		{URLPattern: &entry, RequestStage: fetch.RequestStageResponse},
	}
}

// ListTargets 列出可附加的页面目标
func ListTargets(ctx context.Context, devtoolsURL string) ([]model.TargetInfo, error) {
	targets, err := devtool.New(devtoolsURL).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	out := make([]model.TargetInfo, 0, len(targets))
	for _, t := range targets {
		out = append(out, model.TargetInfo{
			ID:    model.TargetID(t.ID),
			Type:  string(t.Type),
			URL:   t.URL,
			Title: t.Title,
		})
	}
	return out, nil
}

// Attach 选择目标并建立 websocket 连接
func (m *Manager) Attach(ctx context.Context) error {
	dt := devtool.New(m.opts.DevToolsURL)

	var sel *devtool.Target
	if m.opts.StartURL != "" {
		t, err := dt.CreateURL(ctx, m.opts.StartURL)
		if err != nil {
			return fmt.Errorf("create target %s: %w", m.opts.StartURL, err)
		}
		sel = t
	} else {
		targets, err := dt.List(ctx)
		if err != nil {
			return fmt.Errorf("list targets: %w", err)
		}
		sel = selectTarget(targets, m.opts.Target)
	}
	if sel == nil {
		return fmt.Errorf("no page target at %s", m.opts.DevToolsURL)
	}

	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", sel.WebSocketDebuggerURL, err)
	}
	m.conn = conn
	m.client = cdp.NewClient(conn)
	m.sub = executor.New(m.client.Fetch, executor.ConnInvoker(conn), m.log)
	m.target = model.TargetID(sel.ID)
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.log.Info("已附加目标", "target", sel.ID, "url", sel.URL)
	return nil
}

func selectTarget(targets []*devtool.Target, id string) *devtool.Target {
	for _, t := range targets {
		if id != "" {
			if t.ID == id {
				return t
			}
			continue
		}
		if t.Type == devtool.Page {
			return t
		}
	}
	return nil
}

// Enable 启用 Fetch 拦截并开始消费事件
func (m *Manager) Enable(ctx context.Context) error {
	if m.client == nil {
		return ErrNotAttached
	}
	streamCtx, stop := context.WithCancel(m.ctx)
	stream, err := m.client.Fetch.RequestPaused(streamCtx)
	if err != nil {
		stop()
		return fmt.Errorf("subscribe requestPaused: %w", err)
	}
	if err := m.client.Fetch.Enable(ctx, &fetch.EnableArgs{Patterns: Patterns(m.ov)}); err != nil {
		stop()
		stream.Close()
		return fmt.Errorf("fetch enable: %w", err)
	}
	m.stop = stop
	m.pool = newWorkerPool(m.opts.Concurrency, m.opts.PendingCapacity)
	m.log.Info("拦截已启用", "prefix", m.ov.RemotePrefix, "entry", m.ov.EntryRouteSuffix, "root", m.ov.LocalRoot)
	go m.consume(stream)
	return nil
}

// Done 事件流结束时关闭
func (m *Manager) Done() <-chan struct{} { return m.done }

// Detach 停止拦截、等待在途事务并关闭连接
func (m *Manager) Detach() error {
	if m.client == nil {
		return ErrNotAttached
	}
	if m.stop != nil {
		m.stop()
		<-m.done
	}
	if m.pool != nil {
		m.pool.stop()
	}
	m.inflight.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.client.Fetch.Disable(ctx); err != nil {
		m.log.Warn("禁用拦截失败", "error", err)
	}
	m.cancel()
	return m.conn.Close()
}
