package model

type TargetID string

// Disposition 对暂停事务的最终处置
type Disposition string

const (
	DispositionNone     Disposition = "" // 未提交（重复事务）
	DispositionContinue Disposition = "continue"
	DispositionFulfill  Disposition = "fulfill"
)

// 事件类型
const (
	EventIgnored   = "ignored"   // 状态码不在 {200, 404}
	EventMissed    = "missed"    // 本地无对应文件
	EventFulfilled = "fulfilled" // 使用本地文件响应
	EventFault     = "fault"     // 读取本地文件失败，降级放行
	EventDegraded  = "degraded"  // 并发队列已满，直接放行
	EventDuplicate = "duplicate" // 重复的 requestId，已丢弃
)

// Event 单次拦截处理结果
type Event struct {
	Type          string      `json:"type"`
	Target        TargetID    `json:"target"`
	TraceID       string      `json:"traceId"`
	RequestID     string      `json:"requestId"`
	URL           string      `json:"url"`
	StatusCode    int         `json:"statusCode"`
	Disposition   Disposition `json:"disposition"`
	Reason        string      `json:"reason,omitempty"`
	LocalPath     string      `json:"localPath,omitempty"`
	IndexFallback bool        `json:"indexFallback"`
	ContentType   string      `json:"contentType,omitempty"`
	Bytes         int         `json:"bytes"`
	Timestamp     int64       `json:"timestamp"`
}

// Stats 本次运行的处置统计
type Stats struct {
	Total         int64            `json:"total"`
	Fulfilled     int64            `json:"fulfilled"`
	Continued     int64            `json:"continued"`
	Faults        int64            `json:"faults"`
	IndexFallback int64            `json:"indexFallback"`
	Bytes         int64            `json:"bytes"`
	ByType        map[string]int64 `json:"byType"`
	ByContentType map[string]int64 `json:"byContentType"`
}

type TargetInfo struct {
	ID    TargetID `json:"id"`
	Type  string   `json:"type"`
	URL   string   `json:"url"`
	Title string   `json:"title"`
}
