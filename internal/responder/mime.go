package responder

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultContentType 未知扩展名使用的类型
const DefaultContentType = "application/octet-stream"

var mimes = map[string]string{
	".js":    "text/javascript",
	".mjs":   "text/javascript",
	".css":   "text/css",
	".html":  "text/html",
	".htm":   "text/html",
	".json":  "application/json",
	".map":   "application/json",
	".txt":   "text/plain",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".svg":   "image/svg+xml",
	".gif":   "image/gif",
	".ico":   "image/x-icon",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".wasm":  "application/wasm",
}

// ContentType 按扩展名查表，大小写不敏感
func ContentType(path string) (string, bool) {
	ct, ok := mimes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return DefaultContentType, false
	}
	return ct, true
}

// isTextType 判断 MIME 是否属于可以安全改写的文本类
func isTextType(ct string) bool {
	switch {
	case strings.HasPrefix(ct, "text/"):
		return true
	case ct == "application/json", ct == "application/javascript", ct == "application/xml":
		return true
	}
	return false
}

// sniffText 未知扩展名时根据内容判断是否为文本
func sniffText(content []byte) bool {
	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		if m.Is("text/plain") || m.Is("application/json") || m.Is("application/xml") || m.Is("application/javascript") {
			return true
		}
		if isTextType(m.String()) {
			return true
		}
	}
	return false
}
