package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/vidnote/internal/app/pipeline"
	"github.com/John-Robertt/vidnote/internal/app/run"
	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run/pipeline 层只发事件，CLI 决定如何展示
// - 阶段完成即打印：后面的阶段失败时，用户仍能看到已经走到哪一步
// - keepalive：长时间无输出时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int

	// runID -> 最近完成的阶段（用于 keepalive 展示活跃条目）
	active map[string]string

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		active:             map[string]string{},
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] vidnote run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  work_dir: %s\n", eff.WorkDir)
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  threshold: %g\n", eff.Threshold)
	fmt.Fprintf(p.w, "  max_analysis_frames: %d\n", eff.MaxAnalysisFrames)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  llm: %s (%s)\n", eff.LLM.Model, formatAPIKey(eff.LLM.APIKey))
	fmt.Fprintf(p.w, "  cache: %s\n", onOff(eff.CacheEnabled))
	fmt.Fprintf(p.w, "  exclude_dirs: %s + 固定排除 temp/, outputs/, cache/\n", formatStringListJSON(eff.ExcludeDirs))

	fmt.Fprintln(p.w, "输出:")
	fmt.Fprintf(p.w, "  downloads: %s\n", eff.DownloadDir)
	fmt.Fprintf(p.w, "  keyframes: %s\n", eff.KeyframeDir)
	fmt.Fprintf(p.w, "  outputs: %s\n", eff.OutputDir)
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "expand":
		fmt.Fprintf(p.w, "输入: inputs=%d expanded=%d (%s)\n",
			intField(fields, "inputs"), intField(fields, "expanded"), formatShortDuration(dur),
		)
	case "group":
		fmt.Fprintf(p.w, "分组: runs=%d duplicates=%d rejected=%d (%s)\n",
			intField(fields, "runs"), intField(fields, "duplicates"), intField(fields, "rejected"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_runs")
		fmt.Fprintf(p.w, "执行: workers=%d total_runs=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnStageDone(runID string, stage pipeline.Stage, s domain.RunState, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.active[runID] = string(stage)
	mark := "ok"
	if n := len(s.Errors); n > 0 && s.Errors[n-1].Kind == stageKind(stage) {
		mark = "error"
	}
	fmt.Fprintf(p.w, "  %s %-8s %-5s %s (%s)\n", labelOf(s), stage, mark, stageDetail(stage, s), formatShortDuration(dur))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnRunDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total
	delete(p.active, res.RunID)

	switch res.Status {
	case domain.StatusSucceeded:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] %s OK keyframes=%d -> %s (%s)\n",
			idx, total, anchorOf(res), res.Keyframes, res.DocumentPath, formatShortDuration(dur),
		)
	case domain.StatusSkipped:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] %s SKIP %s (%s)\n",
			idx, total, anchorOf(res), truncate(res.Guidance, 120), formatShortDuration(dur),
		)
	default:
		p.fail++
		fmt.Fprintf(p.w, "[%d/%d] %s FAIL %s: %s (%s)\n",
			idx, total, anchorOf(res), res.ErrorCode, truncate(res.Guidance, 160), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

// Stop 停止 keepalive（批次提前结束时也要调用）。
func (p *progressUI) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					fmt.Fprintln(p.w, p.keepaliveLineLocked(time.Since(p.startedAt)))
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func (p *progressUI) keepaliveLineLocked(elapsed time.Duration) string {
	stages := make([]string, 0, len(p.active))
	for id, st := range p.active {
		stages = append(stages, id+"@"+st)
	}
	sort.Strings(stages)
	line := fmt.Sprintf("进度: done=%d/%d ok=%d fail=%d skip=%d active=%d elapsed=%s",
		p.done, p.total, p.ok, p.fail, p.skip, len(p.active), formatElapsed(elapsed),
	)
	if len(stages) > 0 {
		line += " [" + truncate(strings.Join(stages, " "), 120) + "]"
	}
	return line
}

func labelOf(s domain.RunState) string {
	if s.Key != "" {
		return string(s.Key)
	}
	return s.RunID
}

func stageKind(stage pipeline.Stage) domain.ErrorKind {
	switch stage {
	case pipeline.StageClassify:
		return domain.KindClassification
	case pipeline.StageDownload:
		return domain.KindDownload
	case pipeline.StageProcess:
		return domain.KindProcessing
	case pipeline.StageAnalyze:
		return domain.KindAnalysis
	default:
		return domain.KindGeneration
	}
}

func stageDetail(stage pipeline.Stage, s domain.RunState) string {
	switch stage {
	case pipeline.StageClassify:
		return fmt.Sprintf("source=%s platform=%s", s.SourceType, s.Platform)
	case pipeline.StageDownload:
		if s.Metadata != nil {
			return "title=" + truncate(s.Metadata.Title, 60)
		}
		return ""
	case pipeline.StageProcess:
		return fmt.Sprintf("keyframes=%d", s.Keyframes.Len())
	case pipeline.StageAnalyze:
		return fmt.Sprintf("chars=%d", len([]rune(s.AnalysisResult)))
	default:
		return s.DocumentPath
	}
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatAPIKey(k string) string {
	if strings.TrimSpace(k) == "" {
		return "api_key=missing"
	}
	return "api_key=set"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}
