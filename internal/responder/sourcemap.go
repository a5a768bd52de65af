package responder

import (
	"bytes"
)

const sourceMapMarker = "//# sourceMappingURL="

// rewriteSourceMap 将第一条 sourceMappingURL 注释行的值替换为 file://<localPath>.map。
// 标记必须位于行首（允许前导空白），字符串字面量里的标记不会被匹配。
func rewriteSourceMap(content []byte, localPath string) ([]byte, bool) {
	marker := []byte(sourceMapMarker)
	for start := 0; start < len(content); {
		end := bytes.IndexByte(content[start:], '\n')
		if end < 0 {
			end = len(content)
		} else {
			end += start
		}
		line := content[start:end]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		indent := len(line) - len(bytes.TrimLeft(line, " \t"))
		rest := line[indent:]
		if bytes.HasPrefix(rest, marker) && len(rest) > len(marker) {
			valueStart := start + indent + len(marker)
			valueEnd := start + len(line)
			out := make([]byte, 0, len(content)+len(localPath))
			out = append(out, content[:valueStart]...)
			out = append(out, "file://"...)
			out = append(out, localPath...)
			out = append(out, ".map"...)
			out = append(out, content[valueEnd:]...)
			return out, true
		}
		start = end + 1
	}
	return content, false
}
