package resolver

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"cdpoverride/internal/config"
	"cdpoverride/internal/logger"
	"cdpoverride/pkg/traffic"
)

// IndexFile SPA 回退时使用的入口文件
const IndexFile = "index.html"

// Resolver 将拦截到的 URL 映射为本地构建目录下的文件
type Resolver struct {
	ov  config.Override
	log logger.Logger
}

// New 创建解析器，配置按值保存
func New(ov config.Override, l logger.Logger) *Resolver {
	if l == nil {
		l = logger.NewNop()
	}
	return &Resolver{ov: ov, log: l}
}

// Resolve 查找 URL 对应的本地文件，找不到时返回 false
func (r *Resolver) Resolve(rawURL string) (traffic.Resolution, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		r.log.Debug("URL 解析失败", "url", rawURL, "error", err)
		return traffic.Resolution{}, false
	}
	p := u.EscapedPath()

	candidate := r.Candidate(p)
	if r.inRoot(candidate) && isRegularFile(candidate) {
		return traffic.Resolution{LocalPath: candidate}, true
	}

	if !strings.HasSuffix(p, r.ov.EntryRouteSuffix) {
		return traffic.Resolution{}, false
	}

	index := filepath.Join(r.ov.LocalRoot, IndexFile)
	if isRegularFile(index) {
		return traffic.Resolution{LocalPath: index, IndexFallback: true}, true
	}
	return traffic.Resolution{}, false
}

// Candidate 去掉远程前缀后拼接到本地根目录，不做路径规范化
func (r *Resolver) Candidate(escapedPath string) string {
	return r.ov.LocalRoot + strings.Replace(escapedPath, r.ov.RemotePrefix, "", 1)
}

// inRoot 拒绝通过 ".." 逃出本地根目录的路径
func (r *Resolver) inRoot(candidate string) bool {
	if r.ov.AllowTraversal {
		return true
	}
	root := filepath.Clean(r.ov.LocalRoot)
	rel, err := filepath.Rel(root, filepath.Clean(candidate))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		r.log.Warn("拒绝越出本地根目录的路径", "candidate", candidate, "root", root)
		return false
	}
	return true
}

// isRegularFile stat 失败一律视为不存在
func isRegularFile(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular()
}
