package platform

import (
	"net/url"
	"os"
	"strings"
	"unicode"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// Classification 是分类结果。
type Classification struct {
	SourceType domain.SourceType
	Platform   domain.Platform
	VideoPath  string // 仅本地输入非空
}

// Classify 是全函数：永不失败、不访问网络。
//
// 规则：
// - 输入指向已存在的普通文件（非目录）=> Local/Local，videoPath=输入
// - 否则按 URL 处理：解析 host 并按规则表优先级匹配；无匹配 => Other
func (t Table) Classify(input string) Classification {
	if fi, err := os.Stat(input); err == nil && !fi.IsDir() {
		return Classification{SourceType: domain.SourceLocal, Platform: domain.PlatformLocal, VideoPath: input}
	}
	return Classification{SourceType: domain.SourceRemote, Platform: t.Match(hostOf(input))}
}

// Classify 使用默认规则表。
func Classify(input string) Classification {
	return defaultTable.Classify(input)
}

var defaultTable = DefaultTable()

// hostOf 取 URL 的 host；拿不到 host 时返回空串（匹配结果为 Other）。
//
// 没有 scheme 的 "youtu.be/xxx" 仍按 host 处理：第一个 '/' 之前的部分含 '.'、
// 不含空白、且不以 '/' 或 '.' 开头。路径和普通文本不参与匹配。
func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err == nil && u.Host != "" {
		return strings.ToLower(u.Host)
	}
	if err == nil && u.Scheme != "" {
		return ""
	}
	head := raw
	if i := strings.IndexByte(raw, '/'); i >= 0 {
		head = raw[:i]
	}
	if !looksLikeHost(head) {
		return ""
	}
	return strings.ToLower(head)
}

func looksLikeHost(s string) bool {
	if s == "" || strings.HasPrefix(s, ".") || !strings.Contains(s, ".") {
		return false
	}
	return !strings.ContainsFunc(s, unicode.IsSpace)
}
