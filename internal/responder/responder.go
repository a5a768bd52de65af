package responder

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"cdpoverride/pkg/traffic"
)

// ReadError 解析时存在但构造响应时无法读取的本地文件
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read local file %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// Builder 根据本地文件构造替代响应
type Builder struct {
	now func() time.Time
}

// Option 构造器选项
type Option func(*Builder)

// WithClock 替换 Date 头使用的时钟
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New 创建响应构造器
func New(opts ...Option) *Builder {
	b := &Builder{now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build 读取 localPath 并生成 200 响应，读取失败返回 *ReadError
func (b *Builder) Build(localPath string) (*traffic.SyntheticResponse, error) {
	content, err := os.ReadFile(localPath)
	if err != nil {
		return nil, &ReadError{Path: localPath, Err: err}
	}

	ct, known := ContentType(localPath)
	text := isTextType(ct)
	if !known {
		text = sniffText(content)
	}
	if text {
		content, _ = rewriteSourceMap(content, localPath)
	}

	res := traffic.NewSyntheticResponse()
	res.Body = content
	res.Headers = []traffic.HeaderEntry{
		{Name: "Date", Value: b.now().UTC().Format(http.TimeFormat)},
		{Name: "Connection", Value: "closed"},
		{Name: "Content-Length", Value: strconv.Itoa(len(content))},
		{Name: "Content-Type", Value: ct},
	}
	return res, nil
}
