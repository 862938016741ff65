package domain

import "strings"

// ErrorKind 是运行期错误分类（跟随阶段划分）。
type ErrorKind string

const (
	KindClassification ErrorKind = "ClassificationError"
	KindDownload       ErrorKind = "DownloadError"
	KindProcessing     ErrorKind = "ProcessingError"
	KindAnalysis       ErrorKind = "AnalysisError"
	KindGeneration     ErrorKind = "GenerationError"
	KindConfig         ErrorKind = "ConfigError"
)

const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
)

// Diagnostic 是 RunState.Errors 的元素。
//
// Source 只在下载阶段有意义：区分主提取器与 fallback worker 的诊断。
type Diagnostic struct {
	Kind    ErrorKind `json:"kind"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(string(d.Kind))
	if d.Source != "" {
		b.WriteString("(" + d.Source + ")")
	}
	b.WriteString(": ")
	b.WriteString(d.Message)
	return b.String()
}

// Guidance 选出对用户最具体的一条诊断：
// - 优先最后一条 fallback 诊断（通常比主提取器的报错更具体）
// - 否则取最后一条
func Guidance(ds []Diagnostic) string {
	if len(ds) == 0 {
		return ""
	}
	for i := len(ds) - 1; i >= 0; i-- {
		if ds[i].Source == SourceFallback {
			return ds[i].String()
		}
	}
	return ds[len(ds)-1].String()
}

// Strings 把诊断渲染为字符串序列（报告/日志用）。
func Strings(ds []Diagnostic) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.String())
	}
	return out
}
