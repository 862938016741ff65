package domain

import (
	"strings"

	"github.com/google/uuid"
)

// RunState 是一次流水线运行里唯一的上下文记录，按值在各阶段之间传递。
//
// 约束（每个阶段都必须遵守）：
// - 阶段返回“旧状态 + 本阶段拥有的字段”的新副本，不得清空上游字段
// - Errors 只追加，不截断、不改写；追加时必须复制底层数组，避免与上游副本共享
// - InputSource 一经设置不可变
type RunState struct {
	RunID       string     `json:"run_id"`
	Key         RunKey     `json:"key,omitempty"`
	InputSource string     `json:"input_source"`
	SourceType  SourceType `json:"source_type,omitempty"`
	Platform    Platform   `json:"platform,omitempty"`

	VideoPath string    `json:"video_path,omitempty"`
	Metadata  *Metadata `json:"metadata,omitempty"`
	Keyframes Keyframes `json:"keyframes"`

	Errors []Diagnostic `json:"errors"`

	AnalysisResult string `json:"analysis_result,omitempty"`
	DocumentPath   string `json:"document_path,omitempty"`
}

// NewRunID 生成运行 ID（短 uuid，日志里更易读）。
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewRunState 在提交时创建初始状态。
func NewRunState(input string) RunState {
	return RunState{
		RunID:       NewRunID(),
		InputSource: input,
		Errors:      []Diagnostic{},
	}
}

// WithClassification 由分类阶段调用；videoPath 仅本地输入非空。
func (s RunState) WithClassification(st SourceType, p Platform, videoPath string) RunState {
	s.SourceType = st
	s.Platform = p
	if videoPath != "" {
		s.VideoPath = videoPath
	}
	return s
}

func (s RunState) WithKey(k RunKey) RunState {
	if k != "" {
		s.Key = k
	}
	return s
}

// WithVideo 由下载阶段调用。
func (s RunState) WithVideo(path string, meta Metadata) RunState {
	if path != "" {
		s.VideoPath = path
	}
	m := meta
	s.Metadata = &m
	return s
}

func (s RunState) WithKeyframes(k Keyframes) RunState {
	s.Keyframes = k.Clone()
	return s
}

func (s RunState) WithAnalysis(text string) RunState {
	if text != "" {
		s.AnalysisResult = text
	}
	return s
}

func (s RunState) WithDocument(path string) RunState {
	if path != "" {
		s.DocumentPath = path
	}
	return s
}

// WithErrors 追加诊断；永远复制，保证旧副本的 Errors 不受影响。
func (s RunState) WithErrors(ds ...Diagnostic) RunState {
	if len(ds) == 0 {
		return s
	}
	out := make([]Diagnostic, 0, len(s.Errors)+len(ds))
	out = append(out, s.Errors...)
	out = append(out, ds...)
	s.Errors = out
	return s
}

// WithError 是 WithErrors 的便捷形式。
func (s RunState) WithError(kind ErrorKind, msg string) RunState {
	return s.WithErrors(Diagnostic{Kind: kind, Message: msg})
}

// Succeeded：成功仅由“生成了文档路径”定义。
func (s RunState) Succeeded() bool { return s.DocumentPath != "" }

func (s RunState) Guidance() string { return Guidance(s.Errors) }

// Title 返回可用于命名的标题（无元数据时退化为 RunKey）。
func (s RunState) Title() string {
	if s.Metadata != nil && s.Metadata.Title != "" {
		return s.Metadata.Title
	}
	if s.Key != "" {
		return string(s.Key)
	}
	return UnknownTitle
}
