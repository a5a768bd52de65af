package api

import (
	"context"

	"cdpoverride/internal/config"
	"cdpoverride/internal/logger"
	"cdpoverride/internal/service"
	"cdpoverride/pkg/model"
)

// Service 服务接口
type Service interface {
	// Start 附加浏览器目标并启用拦截
	Start(ctx context.Context) error

	// Done 事件流结束时关闭
	Done() <-chan struct{}

	// Stop 停止拦截，等待在途事务完成
	Stop() error

	// Stats 获取本次运行的处置统计
	Stats(ctx context.Context) (model.Stats, error)

	// Close 释放资源
	Close() error
}

// NewService 创建并返回服务接口实现
func NewService(cfg *config.Config, l logger.Logger) Service {
	return service.New(cfg, l)
}
