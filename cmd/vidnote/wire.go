package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/acquire"
	"github.com/John-Robertt/vidnote/internal/analyze"
	"github.com/John-Robertt/vidnote/internal/app/pipeline"
	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/docgen"
	"github.com/John-Robertt/vidnote/internal/grab"
	"github.com/John-Robertt/vidnote/internal/infra/cache"
	"github.com/John-Robertt/vidnote/internal/keyframe"
	"github.com/John-Robertt/vidnote/internal/media"
	"github.com/John-Robertt/vidnote/internal/platform"
)

const workerName = "vidnote-grab"

// stack 是一次进程生命周期内共享的组件（各次运行之间不共享可变状态，cache 除外）。
type stack struct {
	Table        platform.Table
	Orchestrator *pipeline.Orchestrator
	Cache        *cache.Store
}

func (s *stack) Close() {
	if s != nil && s.Cache != nil {
		s.Cache.Close()
	}
}

// buildStack 按生效配置组装流水线。obs 可为空。
func buildStack(eff config.EffectiveConfig, log *logrus.Logger, obs pipeline.Observer) (*stack, error) {
	tb := platform.DefaultTable()

	var store *cache.Store
	if eff.CacheEnabled {
		s, err := cache.New(eff.WorkDir, false)
		if err != nil {
			return nil, err
		}
		store = s
	}

	dl := &acquire.Downloader{
		Table:       tb,
		Primary:     &acquire.YtdlpExtractor{Bin: eff.YtdlpBin, ProxyURL: eff.ProxyURL},
		Cache:       store,
		DownloadDir: eff.DownloadDir,
		Log:         log.WithField("component", "acquire"),
	}
	if bin := resolveWorkerBin(eff.WorkerBin); bin != "" {
		dl.Fallback = &grab.ProcessRunner{
			Bin: bin,
			Env: workerEnv(eff),
			Log: log.WithField("component", "worker"),
		}
	} else {
		log.Warnf("未找到 %s：浏览器兜底下载不可用", workerName)
	}

	an, err := analyze.New(analyze.Options{
		APIKey:   eff.LLM.APIKey,
		APIBase:  eff.LLM.APIBase,
		Model:    eff.LLM.Model,
		Timeout:  eff.LLM.Timeout,
		ProxyURL: eff.ProxyURL,
	}, log.WithField("component", "analyze"))
	if err != nil {
		if store != nil {
			store.Close()
		}
		return nil, fmt.Errorf("初始化分析器失败：%w", err)
	}

	mopts := media.Options{FFmpegBin: eff.FFmpegBin, FFprobeBin: eff.FFprobeBin}
	kx := &keyframe.Extractor{
		Threshold: eff.Threshold,
		Log:       log.WithField("component", "keyframe"),
		Open: func(ctx context.Context, path string) (keyframe.FrameSource, error) {
			src, err := media.Open(ctx, mopts, path)
			if err != nil {
				return nil, err
			}
			return src, nil
		},
	}

	o := &pipeline.Orchestrator{
		Table:             tb,
		Downloader:        dl,
		Keyframes:         kx,
		Analyzer:          an,
		Generator:         &docgen.Generator{OutputDir: eff.OutputDir},
		DownloadDir:       eff.DownloadDir,
		KeyframeRoot:      eff.KeyframeDir,
		OutputDir:         eff.OutputDir,
		MaxAnalysisFrames: eff.MaxAnalysisFrames,
		ToleranceSec:      eff.ToleranceSec,
		Observer:          obs,
		Log:               log.WithField("component", "pipeline"),
	}
	return &stack{Table: tb, Orchestrator: o, Cache: store}, nil
}

// resolveWorkerBin 查找采集 worker：显式配置 > 与当前可执行文件同目录 > PATH。
func resolveWorkerBin(configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	if exe, err := os.Executable(); err == nil {
		cand := filepath.Join(filepath.Dir(exe), workerName)
		if fi, err := os.Stat(cand); err == nil && !fi.IsDir() {
			return cand
		}
	}
	if p, err := exec.LookPath(workerName); err == nil {
		return p
	}
	return ""
}

// workerEnv 把 worker 需要的配置通过环境变量传下去（argv 固定为 [url, outputPath]）。
func workerEnv(eff config.EffectiveConfig) []string {
	env := append([]string{}, os.Environ()...)
	env = append(env, "VIDNOTE_GRAB_DEADLINE="+eff.WorkerDeadline.String())
	if eff.ChromePath != "" {
		env = append(env, "VIDNOTE_CHROME_PATH="+eff.ChromePath)
	}
	if eff.ProxyURL != "" {
		env = append(env, "VIDNOTE_PROXY_URL="+eff.ProxyURL)
	}
	if eff.Log.Level != "" {
		env = append(env, "VIDNOTE_LOG_LEVEL="+eff.Log.Level)
	}
	return env
}
