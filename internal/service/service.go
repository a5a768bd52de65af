package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"cdpoverride/internal/cdp"
	"cdpoverride/internal/config"
	"cdpoverride/internal/handler"
	"cdpoverride/internal/logger"
	"cdpoverride/internal/resolver"
	"cdpoverride/internal/responder"
	"cdpoverride/internal/session"
	"cdpoverride/internal/storage"
	"cdpoverride/pkg/model"
	"cdpoverride/pkg/traffic"
)

// eventBuffer 事件通道在并发队列之外的余量
const eventBuffer = 64

// Service 组装存储、调度器与 CDP 会话
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	sessions *session.Manager
	store    *storage.Store
	events   chan model.Event
	mgr      *cdp.Manager
	recDone  chan struct{}
	started  bool
}

// New 创建服务，cfg 在启动后只读
func New(cfg *config.Config, l logger.Logger) *Service {
	if l == nil {
		l = logger.NewNop()
	}
	return &Service{cfg: cfg, log: l, sessions: session.NewManager(l)}
}

// Start 打开审计存储、附加目标并启用拦截
func (s *Service) Start(ctx context.Context) error {
	if s.started {
		return errors.New("service already started")
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	if err := s.openStore(); err != nil {
		return err
	}

	ov := s.cfg.Override
	h := handler.New(handler.Config{
		Resolver:      resolver.New(ov, s.log),
		Builder:       responder.New(),
		Sessions:      s.sessions,
		Events:        s.events,
		SubmitTimeout: s.cfg.SubmitTimeout(),
		Logger:        s.log,
	})
	s.mgr = cdp.New(cdp.Options{
		DevToolsURL:      s.cfg.Browser.DevToolsURL,
		Target:           s.cfg.Browser.Target,
		StartURL:         s.cfg.Browser.StartURL,
		Concurrency:      s.cfg.Intercept.Concurrency,
		PendingCapacity:  s.cfg.Intercept.PendingCapacity,
		ProcessTimeoutMS: s.cfg.Intercept.ProcessTimeoutMS,
		Events:           s.events,
	}, ov, h, s.log)

	if err := s.mgr.Attach(ctx); err != nil {
		s.stopRecorder()
		return fmt.Errorf("attach: %w", err)
	}
	if err := s.mgr.Enable(ctx); err != nil {
		_ = s.mgr.Detach()
		s.stopRecorder()
		return fmt.Errorf("enable interception: %w", err)
	}
	s.started = true
	return nil
}

func (s *Service) openStore() error {
	store, err := storage.Open(s.cfg.Sqlite.Dsn, s.cfg.Sqlite.Prefix, s.log)
	if err != nil {
		return err
	}
	s.store = store
	s.events = make(chan model.Event, s.cfg.Intercept.PendingCapacity+eventBuffer)
	s.recDone = make(chan struct{})
	rec := storage.NewRecorder(store, s.log)
	go func() {
		defer close(s.recDone)
		rec.Run(context.Background(), s.events)
	}()
	return nil
}

func (s *Service) stopRecorder() {
	if s.events == nil {
		return
	}
	close(s.events)
	<-s.recDone
	s.events = nil
}

// Done 拦截事件流结束（浏览器关闭或连接断开）时关闭
func (s *Service) Done() <-chan struct{} {
	if s.mgr == nil {
		return nil
	}
	return s.mgr.Done()
}

// Stop 停止拦截并等待所有事件落库
func (s *Service) Stop() error {
	if !s.started {
		return nil
	}
	s.started = false
	err := s.mgr.Detach()
	for _, p := range s.sessions.List() {
		s.log.Warn("停止时仍有未处置的事务", "requestID", p.RequestID, "url", p.URL)
	}
	s.stopRecorder()
	return err
}

// Stats 本次运行的处置统计
func (s *Service) Stats(ctx context.Context) (model.Stats, error) {
	if s.store == nil {
		return model.Stats{}, errors.New("store not open")
	}
	return s.store.Stats(ctx)
}

// Close 释放审计存储
func (s *Service) Close() error {
	if s.store == nil {
		return nil
	}
	return s.store.Close()
}

// Explanation 离线解析结果
type Explanation struct {
	Candidate   string
	Resolution  traffic.Resolution
	Found       bool
	ContentType string
}

// Explain 不连接浏览器，解析 URL 会映射到哪个本地文件
func Explain(ov config.Override, rawURL string, l logger.Logger) Explanation {
	r := resolver.New(ov, l)
	ex := Explanation{}
	if u, err := url.Parse(rawURL); err == nil {
		ex.Candidate = r.Candidate(u.EscapedPath())
	}
	res, ok := r.Resolve(rawURL)
	ex.Resolution, ex.Found = res, ok
	if ok {
		ex.ContentType, _ = responder.ContentType(res.LocalPath)
	}
	return ex
}
