// Package handoff 定义关键帧交给分析器、分析结果交给生成器时的两个契约：
// 采样上限，以及图片占位符到关键帧文件的最近邻解析。
package handoff

import (
	"regexp"
	"strings"

	"github.com/John-Robertt/vidnote/internal/domain"
)

const (
	DefaultMaxFrames    = 20
	DefaultToleranceSec = 10
)

// SelectForAnalysis 按时间顺序返回交给分析器的关键帧。
//
// 规则：
// - n <= max 时全部返回
// - 否则 stride = n / max，取第 0, stride, 2*stride... 条，最多 max 条
func SelectForAnalysis(k domain.Keyframes, max int) []domain.Keyframe {
	if max <= 0 {
		max = DefaultMaxFrames
	}
	all := k.Entries()
	if len(all) <= max {
		return all
	}
	stride := len(all) / max
	out := make([]domain.Keyframe, 0, max)
	for i := 0; i < len(all) && len(out) < max; i += stride {
		out = append(out, all[i])
	}
	return out
}

// Resolve 找出与 ts 最接近的关键帧；差值超过 toleranceSec 或 ts 无法解析时 ok=false。
// 差值相同时取先出现的一条。
func Resolve(ts string, k domain.Keyframes, toleranceSec int) (domain.Keyframe, bool) {
	target, ok := domain.ParseTimestamp(ts)
	if !ok {
		return domain.Keyframe{}, false
	}
	var (
		best     domain.Keyframe
		bestDiff = -1
	)
	for _, e := range k.Entries() {
		sec, ok := domain.ParseTimestamp(e.Timestamp)
		if !ok {
			continue
		}
		d := sec - target
		if d < 0 {
			d = -d
		}
		if bestDiff < 0 || d < bestDiff {
			best, bestDiff = e, d
		}
	}
	if bestDiff < 0 || bestDiff > toleranceSec {
		return domain.Keyframe{}, false
	}
	return best, true
}

var placeholderRE = regexp.MustCompile(`\[INSERT_IMAGE:\s*(.*?)\]`)

// Placeholder 渲染占位符。
func Placeholder(ts string) string { return "[INSERT_IMAGE: " + ts + "]" }

// Unavailable 是无法解析的占位符的替换文本。
func Unavailable(ts string) string { return "(Image at " + ts + " not available)" }

// ResolveImageRefs 改写内容中的占位符并返回“被引用时间戳 -> 图片路径”映射：
// - 可解析的占位符规范化为 [INSERT_IMAGE: <被引用的 ts>]，映射 key 是被引用的 ts
// - 不可解析的替换为 (Image at <ts> not available)
func ResolveImageRefs(content string, k domain.Keyframes, toleranceSec int) (string, map[string]string) {
	images := make(map[string]string)
	out := placeholderRE.ReplaceAllStringFunc(content, func(m string) string {
		sub := placeholderRE.FindStringSubmatch(m)
		ts := strings.TrimSpace(sub[1])
		if kf, ok := Resolve(ts, k, toleranceSec); ok {
			images[ts] = kf.Path
			return Placeholder(ts)
		}
		return Unavailable(ts)
	})
	return out, images
}

// FindPlaceholders 返回内容中按出现顺序的占位符时间戳（生成器渲染时用）。
func FindPlaceholders(line string) []string {
	var out []string
	for _, m := range placeholderRE.FindAllStringSubmatch(line, -1) {
		out = append(out, strings.TrimSpace(m[1]))
	}
	return out
}

// SplitPlaceholders 把一行切成文本片段与占位符片段（保持原顺序）。
func SplitPlaceholders(line string) []Segment {
	var out []Segment
	last := 0
	for _, loc := range placeholderRE.FindAllStringSubmatchIndex(line, -1) {
		if loc[0] > last {
			out = append(out, Segment{Text: line[last:loc[0]]})
		}
		out = append(out, Segment{Image: strings.TrimSpace(line[loc[2]:loc[3]])})
		last = loc[1]
	}
	if last < len(line) {
		out = append(out, Segment{Text: line[last:]})
	}
	return out
}

// Segment 要么是文本（Text），要么是图片占位符（Image 为时间戳）。
type Segment struct {
	Text  string
	Image string
}
