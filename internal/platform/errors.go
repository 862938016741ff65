package platform

import (
	"fmt"
	"strings"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码（媒体直链下载时常见 403）。
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// BlockedError 表示页面被引导到了验证/拦截页面。
// 产品约束：不尝试绕过，直接作为 anti_bot 结果上报。
type BlockedError struct {
	URL    string
	Reason string // 例如 "title-verify" / "url-verify"
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	if strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}

var verifyMarkers = []string{"验证", "verify", "captcha"}

// DetectChallenge 按标题与当前 URL 判断是否落在验证页。
func DetectChallenge(pageURL, title string) *BlockedError {
	lt := strings.ToLower(title)
	for _, m := range verifyMarkers {
		if strings.Contains(lt, m) {
			return &BlockedError{URL: pageURL, Reason: "title-verify"}
		}
	}
	if strings.Contains(strings.ToLower(pageURL), "verify") {
		return &BlockedError{URL: pageURL, Reason: "url-verify"}
	}
	return nil
}
