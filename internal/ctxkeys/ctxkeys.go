package ctxkeys

import (
	"context"

	"github.com/google/uuid"
)

// TraceIDKey 上下文中追踪ID的键
type TraceIDKey struct{}

// RequestIDKey 上下文中拦截事务ID的键
type RequestIDKey struct{}

// WithTraceID 为上下文生成并注入新的追踪ID
func WithTraceID(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return context.WithValue(ctx, TraceIDKey{}, id), id
}

// WithExchange 注入已有的追踪ID与事务ID，空值不注入
func WithExchange(ctx context.Context, traceID, requestID string) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, TraceIDKey{}, traceID)
	}
	if requestID != "" {
		ctx = context.WithValue(ctx, RequestIDKey{}, requestID)
	}
	return ctx
}

// TraceID 读取上下文中的追踪ID，不存在时返回空串
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey{}).(string); ok {
		return v
	}
	return ""
}

// RequestID 读取上下文中的事务ID
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(RequestIDKey{}).(string); ok {
		return v
	}
	return ""
}
