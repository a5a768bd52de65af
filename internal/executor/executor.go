package executor

import (
	"context"
	"fmt"

	adapter "cdpoverride/internal/adapter/cdp"
	"cdpoverride/internal/logger"
	"cdpoverride/pkg/traffic"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/rpcc"
)

// Invoker 直接发送一条 CDP 命令
type Invoker func(ctx context.Context, method string, args, reply interface{}) error

// ConnInvoker 通过已建立的连接发送命令
func ConnInvoker(conn *rpcc.Conn) Invoker {
	return func(ctx context.Context, method string, args, reply interface{}) error {
		return rpcc.Invoke(ctx, method, args, reply, conn)
	}
}

// Executor 通过 CDP Fetch 域提交处置
type Executor struct {
	fetch  cdp.Fetch
	invoke Invoker
	log    logger.Logger
}

// New 创建执行器
func New(f cdp.Fetch, inv Invoker, l logger.Logger) *Executor {
	if l == nil {
		l = logger.NewNop()
	}
	return &Executor{fetch: f, invoke: inv, log: l}
}

// Continue 放行事务；响应阶段使用 continueResponse，请求阶段使用 continueRequest
func (e *Executor) Continue(ctx context.Context, ex *traffic.Exchange) error {
	id := fetch.RequestID(ex.RequestID)
	if ex.StatusCode != nil {
		if err := e.fetch.ContinueResponse(ctx, &fetch.ContinueResponseArgs{RequestID: id}); err != nil {
			return fmt.Errorf("continue response %s: %w", ex.RequestID, err)
		}
		e.log.Debug("continue_response", "requestID", ex.RequestID)
		return nil
	}
	if err := e.fetch.ContinueRequest(ctx, &fetch.ContinueRequestArgs{RequestID: id}); err != nil {
		return fmt.Errorf("continue request %s: %w", ex.RequestID, err)
	}
	e.log.Debug("continue_request", "requestID", ex.RequestID)
	return nil
}

// Fulfill 使用替代响应完成事务
func (e *Executor) Fulfill(ctx context.Context, ex *traffic.Exchange, res *traffic.SyntheticResponse) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("fulfill request %s: %w", ex.RequestID, err)
	}
	if err := e.invoke(ctx, adapter.FulfillMethod, adapter.ToFulfillArgs(ex.RequestID, res), nil); err != nil {
		return fmt.Errorf("fulfill request %s: %w", ex.RequestID, err)
	}
	e.log.Debug("fulfill_request", "requestID", ex.RequestID, "bytes", len(res.Body))
	return nil
}
