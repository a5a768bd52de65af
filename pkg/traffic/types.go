package traffic

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// Header 封装通用的头部操作
type Header map[string]string

// Get 获取指定 Header 的值（大小写不敏感）
func (h Header) Get(key string) string {
	if h == nil {
		return ""
	}
	return h[strings.ToLower(key)]
}

// Set 设置指定 Header 的值（自动转换为小写）
func (h Header) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Exchange 中立的拦截事务模型，对应浏览器暂停的一次请求
type Exchange struct {
	RequestID    string // 事务唯一ID，由浏览器会话持有
	URL          string // 完整URL
	Method       string // HTTP方法
	StatusCode   *int   // 源站响应状态码，请求阶段为 nil
	ResourceType string // 资源类型 (如 Document, Script)
	Headers      Header // 请求头
}

// NewExchange 创建初始化事务对象
func NewExchange() *Exchange {
	return &Exchange{Headers: make(Header)}
}

// Status 返回状态码，缺失时为 0
func (e *Exchange) Status() int {
	if e.StatusCode == nil {
		return 0
	}
	return *e.StatusCode
}

// Resolution 远程路径映射到的本地文件
type Resolution struct {
	LocalPath     string
	IndexFallback bool
}

// HeaderEntry 有序响应头条目
type HeaderEntry struct {
	Name  string
	Value string
}

// SyntheticResponse 由本地文件构造的替代响应
type SyntheticResponse struct {
	StatusCode int
	Headers    []HeaderEntry // 顺序固定
	Body       []byte        // 原始字节，传输时 base64
}

// NewSyntheticResponse 创建状态码为 200 的空响应
func NewSyntheticResponse() *SyntheticResponse {
	return &SyntheticResponse{StatusCode: http.StatusOK}
}

// Header 按名称查找响应头（大小写不敏感）
func (r *SyntheticResponse) Header(name string) string {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// EncodedBody 返回 base64 编码后的响应体
func (r *SyntheticResponse) EncodedBody() string {
	return base64.StdEncoding.EncodeToString(r.Body)
}
