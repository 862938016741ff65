// Package pipeline 实现单次运行的状态机：Classify -> [Download] -> Process -> Analyze -> Generate -> Terminal。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/acquire"
	"github.com/John-Robertt/vidnote/internal/app/planner"
	"github.com/John-Robertt/vidnote/internal/docgen"
	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/handoff"
	"github.com/John-Robertt/vidnote/internal/keyframe"
	"github.com/John-Robertt/vidnote/internal/logx"
	"github.com/John-Robertt/vidnote/internal/platform"
	"github.com/John-Robertt/vidnote/internal/videoid"
)

// Stage 是状态机里的阶段名。
type Stage string

const (
	StageClassify Stage = "classify"
	StageDownload Stage = "download"
	StageProcess  Stage = "process"
	StageAnalyze  Stage = "analyze"
	StageGenerate Stage = "generate"
)

// StageFunc 接收状态并返回新状态；实现不得清空上游字段，失败只追加诊断。
type StageFunc func(ctx context.Context, s domain.RunState) domain.RunState

// Observer 接收阶段完成事件（UI 可据此渲染部分进度）。实现必须并发安全。
type Observer interface {
	OnStageDone(runID string, stage Stage, s domain.RunState, dur time.Duration)
}

type Acquirer interface {
	Acquire(ctx context.Context, rawURL string, p domain.Platform) (acquire.Result, error)
}

type KeyframeExtractor interface {
	ExtractFile(ctx context.Context, path, outDir string) keyframe.Result
}

type Analyzer interface {
	Analyze(ctx context.Context, frames []domain.Keyframe) (string, error)
}

type Generator interface {
	Generate(doc docgen.Document) (string, error)
}

// Orchestrator 组装各阶段。
//
// 约束：
// - 同一次运行的阶段严格串行
// - 每个阶段都是防御式的：上游字段缺失时只追加诊断并原样返回，状态机总会走到 Terminal
// - 成功仅由 DocumentPath 非空定义
type Orchestrator struct {
	Table      platform.Table
	Downloader Acquirer
	Keyframes  KeyframeExtractor
	Analyzer   Analyzer
	Generator  Generator

	DownloadDir  string
	KeyframeRoot string
	OutputDir    string

	MaxAnalysisFrames int
	ToleranceSec      int

	Observer Observer
	Log      logrus.FieldLogger
}

// Run 为 input 创建新的 RunState 并运行到 Terminal。
func (o *Orchestrator) Run(ctx context.Context, input string) domain.RunState {
	return o.RunWithKey(ctx, input, "")
}

// RunWithKey 与 Run 相同，但使用调用方已分配的 RunKey（批处理去重后可能带序号）。
func (o *Orchestrator) RunWithKey(ctx context.Context, input string, key domain.RunKey) domain.RunState {
	s := domain.NewRunState(input).WithKey(key)
	log := o.logger().WithFields(logrus.Fields{"run_id": s.RunID, "input": input})
	log.Info("开始运行")

	s = o.step(ctx, StageClassify, domain.KindClassification, s, o.classify)
	if s.SourceType == domain.SourceRemote {
		s = o.step(ctx, StageDownload, domain.KindDownload, s, o.download)
	}
	s = o.step(ctx, StageProcess, domain.KindProcessing, s, o.process)
	s = o.step(ctx, StageAnalyze, domain.KindAnalysis, s, o.analyze)
	s = o.step(ctx, StageGenerate, domain.KindGeneration, s, o.generate)

	if s.Succeeded() {
		log.WithField("document", s.DocumentPath).Info("运行成功")
	} else {
		log.WithField("guidance", s.Guidance()).Warn("运行失败")
	}
	return s
}

// step 计时、通知 Observer，并把阶段内的 panic 转成该阶段的诊断。
func (o *Orchestrator) step(ctx context.Context, stage Stage, kind domain.ErrorKind, s domain.RunState, fn StageFunc) (out domain.RunState) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o.logger().WithFields(logrus.Fields{"run_id": s.RunID, "stage": stage}).Errorf("阶段 panic：%v", r)
			out = s.WithError(kind, fmt.Sprintf("%s stage panicked: %v", stage, r))
		}
		if o.Observer != nil {
			o.Observer.OnStageDone(out.RunID, stage, out, time.Since(started))
		}
	}()
	return fn(ctx, s)
}

func (o *Orchestrator) classify(_ context.Context, s domain.RunState) domain.RunState {
	cls := o.Table.Classify(s.InputSource)
	s = s.WithClassification(cls.SourceType, cls.Platform, cls.VideoPath)
	if s.Key != "" {
		return s
	}
	k, err := videoid.Derive(s.InputSource, cls.Platform)
	if err != nil {
		return s.WithError(domain.KindClassification, err.Error())
	}
	return s.WithKey(k)
}

func (o *Orchestrator) download(ctx context.Context, s domain.RunState) domain.RunState {
	if o.Downloader == nil {
		return s.WithError(domain.KindDownload, "downloader not configured")
	}
	res, err := o.Downloader.Acquire(ctx, s.InputSource, s.Platform)
	if err != nil {
		var de *acquire.DownloadError
		if errors.As(err, &de) {
			return s.WithErrors(de.Diagnostics()...)
		}
		return s.WithError(domain.KindDownload, err.Error())
	}
	return s.WithVideo(res.VideoPath, res.Metadata)
}

func (o *Orchestrator) process(ctx context.Context, s domain.RunState) domain.RunState {
	if s.VideoPath == "" {
		return s.WithError(domain.KindProcessing, "no video available to process")
	}
	if o.Keyframes == nil {
		return s.WithError(domain.KindProcessing, "keyframe extractor not configured")
	}
	key := s.Key
	if key == "" {
		key = domain.RunKey(s.RunID)
	}
	ws, err := planner.PlanWorkspace(o.DownloadDir, o.KeyframeRoot, o.OutputDir, key)
	if err != nil {
		return s.WithError(domain.KindProcessing, fmt.Sprintf("prepare keyframe dir: %v", err))
	}
	res := o.Keyframes.ExtractFile(ctx, s.VideoPath, ws.KeyframeDir)
	if res.Keyframes.Len() == 0 {
		return s.WithError(domain.KindProcessing, fmt.Sprintf("no keyframes extracted from %s", s.VideoPath))
	}
	return s.WithKeyframes(res.Keyframes)
}

func (o *Orchestrator) analyze(ctx context.Context, s domain.RunState) domain.RunState {
	if s.Keyframes.Len() == 0 {
		return s.WithError(domain.KindAnalysis, "no keyframes available for analysis")
	}
	if o.Analyzer == nil {
		return s.WithError(domain.KindAnalysis, "analyzer not configured")
	}
	frames := handoff.SelectForAnalysis(s.Keyframes, o.MaxAnalysisFrames)
	text, err := o.Analyzer.Analyze(ctx, frames)
	if err != nil {
		return s.WithError(domain.KindAnalysis, err.Error())
	}
	if strings.TrimSpace(text) == "" {
		return s.WithError(domain.KindAnalysis, "analyzer returned empty content")
	}
	return s.WithAnalysis(text)
}

func (o *Orchestrator) generate(_ context.Context, s domain.RunState) domain.RunState {
	if s.AnalysisResult == "" {
		return s.WithError(domain.KindGeneration, "no content to render")
	}
	if o.Generator == nil {
		return s.WithError(domain.KindGeneration, "generator not configured")
	}
	tol := o.ToleranceSec
	if tol <= 0 {
		tol = handoff.DefaultToleranceSec
	}
	content, images := handoff.ResolveImageRefs(s.AnalysisResult, s.Keyframes, tol)
	path, err := o.Generator.Generate(docgen.Document{
		Content: content,
		Images:  images,
		Title:   s.Title(),
		Source:  s.InputSource,
		Meta:    s.Metadata,
	})
	if err != nil {
		return s.WithError(domain.KindGeneration, err.Error())
	}
	return s.WithDocument(path)
}

func (o *Orchestrator) logger() logrus.FieldLogger {
	if o.Log == nil {
		return logx.Discard()
	}
	return o.Log
}
