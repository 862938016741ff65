package acquire

import (
	"strings"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// DownloadError 是 Acquire 的失败结果。
// Fallback 为空表示没有升级（平台不允许或错误不可重试）。
type DownloadError struct {
	URL      string
	Platform domain.Platform
	Primary  error
	Fallback error
}

func (e *DownloadError) Error() string {
	if e == nil {
		return "download failed"
	}
	var b strings.Builder
	b.WriteString("download failed: ")
	if e.Primary != nil {
		b.WriteString(e.Primary.Error())
	}
	if e.Fallback != nil {
		b.WriteString(" | fallback: " + e.Fallback.Error())
	}
	return b.String()
}

func (e *DownloadError) Unwrap() []error {
	var out []error
	if e.Primary != nil {
		out = append(out, e.Primary)
	}
	if e.Fallback != nil {
		out = append(out, e.Fallback)
	}
	return out
}

// Diagnostics 渲染为 RunState.Errors 条目：主提取器一条；升级过则 fallback 再一条。
func (e *DownloadError) Diagnostics() []domain.Diagnostic {
	if e == nil {
		return nil
	}
	out := make([]domain.Diagnostic, 0, 2)
	if e.Primary != nil {
		msg := e.Primary.Error()
		if e.Fallback == nil {
			out = append(out, domain.Diagnostic{Kind: domain.KindDownload, Message: msg})
		} else {
			out = append(out, domain.Diagnostic{Kind: domain.KindDownload, Source: domain.SourcePrimary, Message: msg})
		}
	}
	if e.Fallback != nil {
		out = append(out, domain.Diagnostic{Kind: domain.KindDownload, Source: domain.SourceFallback, Message: e.Fallback.Error()})
	}
	return out
}
