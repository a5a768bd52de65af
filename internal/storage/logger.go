package storage

import (
	"context"
	"time"

	"cdpoverride/internal/ctxkeys"
	ilog "cdpoverride/internal/logger"

	"gorm.io/gorm/logger"
)

// slowQuery 内存库上超过该耗时的语句视为慢查询
const slowQuery = 200 * time.Millisecond

// GormLogger 将审计库的 GORM 日志转发到项目日志器，
// 并带上触发写入的拦截事务
type GormLogger struct {
	log      ilog.Logger
	LogLevel logger.LogLevel
}

// NewGormLogger 默认只输出警告及以上
func NewGormLogger(l ilog.Logger) *GormLogger {
	return &GormLogger{log: l, LogLevel: logger.Warn}
}

func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	nl := *l
	nl.LogLevel = level
	return &nl
}

// exchange 当前语句所属事务的日志字段
func (l *GormLogger) exchange(ctx context.Context, kv ...any) []any {
	fields := make([]any, 0, len(kv)+4)
	if id := ctxkeys.RequestID(ctx); id != "" {
		fields = append(fields, "requestID", id)
	}
	if id := ctxkeys.TraceID(ctx); id != "" {
		fields = append(fields, "traceId", id)
	}
	return append(fields, kv...)
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.log.Info("审计库: "+msg, l.exchange(ctx, "data", data)...)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.log.Warn("审计库: "+msg, l.exchange(ctx, "data", data)...)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.log.Error("审计库: "+msg, l.exchange(ctx, "data", data)...)
	}
}

// Trace 出错或慢写入时记录语句；Info 级别下记录所有语句
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.LogLevel >= logger.Error:
		sql, rows := fc()
		l.log.Err(err, "审计库语句执行失败", l.exchange(ctx, "sql", sql, "rows", rows)...)
	case elapsed > slowQuery && l.LogLevel >= logger.Warn:
		sql, _ := fc()
		l.log.Warn("审计库语句过慢", l.exchange(ctx, "sql", sql, "elapsed", elapsed.String())...)
	case l.LogLevel == logger.Info:
		sql, rows := fc()
		l.log.Debug("审计库语句", l.exchange(ctx, "sql", sql, "rows", rows)...)
	}
}
