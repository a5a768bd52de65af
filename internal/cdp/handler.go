package cdp

import (
	"context"
	"errors"
	"time"

	adapter "cdpoverride/internal/adapter/cdp"
	"cdpoverride/pkg/model"

	"github.com/mafredri/cdp/protocol/fetch"
)

// consume 持续接收拦截事件并按并发限制分发处理
func (m *Manager) consume(stream fetch.RequestPausedClient) {
	defer close(m.done)
	defer stream.Close()
	for {
		ev, err := stream.Recv()
		if err != nil {
			if !errors.Is(err, context.Canceled) && m.ctx.Err() == nil {
				m.log.Err(err, "接收拦截事件失败", "target", string(m.target))
			}
			return
		}
		m.dispatchPaused(ev)
	}
}

// dispatchPaused 调度单次拦截事件，队列满时降级放行
func (m *Manager) dispatchPaused(ev *fetch.RequestPausedReply) {
	m.inflight.Add(1)
	run := func() {
		defer m.inflight.Done()
		m.handle(ev)
	}
	if m.pool == nil {
		go run()
		return
	}
	if !m.pool.submit(run) {
		m.inflight.Done()
		m.degradeAndContinue(ev, "并发队列已满")
	}
}

func (m *Manager) handle(ev *fetch.RequestPausedReply) {
	m.handler.Handle(m.ctx, m.target, m.sub, adapter.ToExchange(ev))
}

// submitTimeout 单次提交处置的超时
func (m *Manager) submitTimeout() time.Duration {
	to := m.opts.ProcessTimeoutMS
	if to <= 0 {
		to = 3000
	}
	return time.Duration(to) * time.Millisecond
}

// degradeAndContinue 统一的降级处理：直接放行请求
func (m *Manager) degradeAndContinue(ev *fetch.RequestPausedReply, reason string) {
	m.log.Warn("执行降级策略：直接放行", "target", string(m.target), "reason", reason, "requestID", ev.RequestID)
	ctx, cancel := context.WithTimeout(m.ctx, m.submitTimeout())
	defer cancel()
	ex := adapter.ToExchange(ev)
	if err := m.sub.Continue(ctx, ex); err != nil {
		m.log.Err(err, "降级放行失败", "requestID", ev.RequestID)
	}
	m.sendEvent(model.Event{
		Type:        model.EventDegraded,
		Target:      m.target,
		RequestID:   ex.RequestID,
		URL:         ex.URL,
		StatusCode:  ex.Status(),
		Disposition: model.DispositionContinue,
		Reason:      reason,
	})
}

// sendEvent 安全发送事件到通道，自动添加时间戳
func (m *Manager) sendEvent(evt model.Event) {
	if m.opts.Events == nil {
		return
	}
	evt.Timestamp = time.Now().UnixMilli()
	select {
	case m.opts.Events <- evt:
	default:
	}
}
