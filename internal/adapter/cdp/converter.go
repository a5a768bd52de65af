package cdp

import (
	"cdpoverride/pkg/traffic"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/tidwall/gjson"
)

// ToExchange 将 CDP 事件转换为中立 Exchange 模型
func ToExchange(ev *fetch.RequestPausedReply) *traffic.Exchange {
	ex := traffic.NewExchange()
	ex.RequestID = string(ev.RequestID)
	ex.URL = ev.Request.URL
	ex.Method = ev.Request.Method
	ex.ResourceType = string(ev.ResourceType)
	if ev.ResponseStatusCode != nil {
		code := *ev.ResponseStatusCode
		ex.StatusCode = &code
	}

	// 处理 Header
	if len(ev.Request.Headers) > 0 {
		gjson.ParseBytes(ev.Request.Headers).ForEach(func(k, v gjson.Result) bool {
			ex.Headers.Set(k.String(), v.String())
			return true
		})
	}
	return ex
}

// ToHeaderEntries 将有序响应头转换为 CDP Header 条目，保持顺序
func ToHeaderEntries(h []traffic.HeaderEntry) []fetch.HeaderEntry {
	entries := make([]fetch.HeaderEntry, 0, len(h))
	for _, e := range h {
		entries = append(entries, fetch.HeaderEntry{Name: e.Name, Value: e.Value})
	}
	return entries
}

// FulfillParams Fetch.fulfillRequest 的参数，body 即使为空也必须出现，
// 缺省时响应阶段的浏览器会沿用源站响应体
type FulfillParams struct {
	RequestID       fetch.RequestID     `json:"requestId"`
	ResponseCode    int                 `json:"responseCode"`
	ResponseHeaders []fetch.HeaderEntry `json:"responseHeaders,omitempty"`
	Body            string              `json:"body"` // base64
}

// FulfillMethod CDP 方法名
const FulfillMethod = "Fetch.fulfillRequest"

// ToFulfillArgs 构造 Fetch.fulfillRequest 参数，Body 以 base64 传输
func ToFulfillArgs(requestID string, res *traffic.SyntheticResponse) *FulfillParams {
	return &FulfillParams{
		RequestID:       fetch.RequestID(requestID),
		ResponseCode:    res.StatusCode,
		ResponseHeaders: ToHeaderEntries(res.Headers),
		Body:            res.EncodedBody(),
	}
}
