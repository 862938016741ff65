package domain

import (
	"regexp"
	"strings"
)

// RunKey 是一次运行的派生标识（平台视频 ID 或本地文件名），用于给下载/关键帧目录做命名空间。
//
// 约束：只允许文件系统安全字符；同一输入必须得到同一 RunKey。
type RunKey string

var runKeyRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,79}$`)

// ParseRunKey 校验已经规范化的 RunKey。
func ParseRunKey(s string) (RunKey, bool) {
	s = strings.TrimSpace(s)
	if !runKeyRE.MatchString(s) || strings.Contains(s, "..") {
		return "", false
	}
	return RunKey(s), true
}
