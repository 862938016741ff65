package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

const (
	ErrCodeDuplicateInput = "duplicate_input"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
	ErrCodeInputMissing   = "input_missing"
	ErrCodeInputInvalid   = "input_invalid"
	ErrCodeCancelled      = "cancelled"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	WorkDir string `json:"work_dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type ItemResult struct {
	RunID    string `json:"run_id"`
	Key      string `json:"key"`
	Input    string `json:"input"`
	Platform string `json:"platform"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`

	Title        string   `json:"title"`
	VideoPath    string   `json:"video_path"`
	Keyframes    int      `json:"keyframes"`
	DocumentPath string   `json:"document_path"`
	Errors       []string `json:"errors"`
	Guidance     string   `json:"guidance"`
}

// ItemFromState 把终态 RunState 折叠成报告条目。
func ItemFromState(s RunState) ItemResult {
	it := ItemResult{
		RunID:        s.RunID,
		Key:          string(s.Key),
		Input:        s.InputSource,
		Platform:     string(s.Platform),
		VideoPath:    s.VideoPath,
		Keyframes:    s.Keyframes.Len(),
		DocumentPath: s.DocumentPath,
		Errors:       Strings(s.Errors),
		Guidance:     s.Guidance(),
		Status:       StatusFailed,
	}
	if s.Metadata != nil {
		it.Title = s.Metadata.Title
	}
	if s.Succeeded() {
		it.Status = StatusSucceeded
	} else if len(s.Errors) > 0 {
		// 首条诊断的类别就是最早失败的阶段。
		it.ErrorCode = string(s.Errors[0].Kind)
	}
	return it
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 key 字典序；key=="" 的条目排在最后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Key
		b := r.Items[j].Key
		if a == "" && b == "" {
			return false
		}
		if a == "" {
			return false
		}
		if b == "" {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusSucceeded:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	return json.Marshal(Alias(r))
}
