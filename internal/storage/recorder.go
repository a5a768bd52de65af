package storage

import (
	"context"

	"cdpoverride/internal/ctxkeys"
	"cdpoverride/internal/logger"
	"cdpoverride/pkg/model"
)

// Recorder 消费事件通道并写入存储，单协程持有写入
type Recorder struct {
	store *Store
	log   logger.Logger
}

// NewRecorder 创建记录器
func NewRecorder(s *Store, l logger.Logger) *Recorder {
	if l == nil {
		l = logger.NewNop()
	}
	return &Recorder{store: s, log: l}
}

// Run 持续写入直到通道关闭；ctx 取消后仍会写完通道中剩余事件
func (r *Recorder) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.save(evt)
		case <-ctx.Done():
			r.drain(events)
			return
		}
	}
}

func (r *Recorder) drain(events <-chan model.Event) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			r.save(evt)
		default:
			return
		}
	}
}

func (r *Recorder) save(evt model.Event) {
	// 记录器的 ctx 可能已取消，写库使用独立的上下文
	ctx := ctxkeys.WithExchange(context.Background(), evt.TraceID, evt.RequestID)
	if err := r.store.Save(ctx, evt); err != nil {
		r.log.Err(err, "写入审计记录失败", "requestID", evt.RequestID)
	}
}
