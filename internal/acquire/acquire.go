// Package acquire 负责把远程 URL 变成本地视频文件：主提取器优先，必要时升级到隔离 worker。
package acquire

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/grab/wire"
	"github.com/John-Robertt/vidnote/internal/infra/cache"
	"github.com/John-Robertt/vidnote/internal/logx"
	"github.com/John-Robertt/vidnote/internal/platform"
)

// Stage 标记一次尝试走的是哪条路径。
type Stage string

const (
	StageCache    Stage = "cache"
	StagePrimary  Stage = "primary"
	StageFallback Stage = "fallback"
)

// Attempt 是一次尝试的追溯记录（成功时 Err 为空）。
type Attempt struct {
	Stage Stage
	Err   error
}

// Result 是一次成功获取的结果。
type Result struct {
	VideoPath     string
	Metadata      domain.Metadata
	NormalizedURL string
	UsedFallback  bool
	FromCache     bool
	Attempts      []Attempt
}

// Request 是交给主提取器的一次下载请求。
type Request struct {
	URL       string
	Headers   http.Header
	OutputDir string
	Stem      string // 输出文件名（不含扩展名）
}

// Download 是主提取器的产物；Metadata 字段允许为空，由 Downloader 补占位值。
type Download struct {
	Path     string
	Metadata domain.Metadata
}

// Extractor 是主提取器（进程内调用，通常是 yt-dlp）。
type Extractor interface {
	Extract(ctx context.Context, req Request) (Download, error)
}

// Fallback 是隔离采集 worker；grab.ProcessRunner 满足该接口。
// 返回 error 时 Outcome 仍可能携带 worker 的诊断。
type Fallback interface {
	Run(ctx context.Context, url, outPath string) (wire.Outcome, error)
}

// Downloader 编排“缓存 -> 主提取器 -> (可重试时) 恰好一次 fallback”。
//
// 约束：
// - 主提取器只调用一次；fallback 最多一次，且只在 Table.Retryable 为真时
// - 两条路径都失败时，两条诊断都要保留（见 DownloadError）
// - fallback 输出路径在并发下不能冲突
type Downloader struct {
	Table       platform.Table
	Primary     Extractor
	Fallback    Fallback
	Cache       *cache.Store // 可为空
	DownloadDir string
	Log         logrus.FieldLogger

	now func() time.Time
}

// Acquire 下载 rawURL 指向的视频。
func (d *Downloader) Acquire(ctx context.Context, rawURL string, p domain.Platform) (Result, error) {
	if d.Primary == nil {
		return Result{}, errors.New("acquire: 主提取器未配置")
	}
	if strings.TrimSpace(d.DownloadDir) == "" {
		return Result{}, errors.New("acquire: download_dir 不能为空")
	}
	log := d.logger().WithFields(logrus.Fields{"url": rawURL, "platform": string(p)})

	u := d.Table.Normalize(rawURL, p)
	if u != rawURL {
		log.WithField("normalized", u).Debug("URL 已规范化")
	}
	res := Result{NormalizedURL: u}

	if r, ok := d.fromCache(u, log); ok {
		res.VideoPath = r.VideoPath
		res.Metadata = r.Metadata
		res.UsedFallback = r.UsedFallback
		res.FromCache = true
		res.Attempts = append(res.Attempts, Attempt{Stage: StageCache})
		return res, nil
	}

	if err := os.MkdirAll(d.DownloadDir, 0o755); err != nil {
		return res, fmt.Errorf("acquire: 创建下载目录失败：%w", err)
	}

	log.Info("主提取器下载")
	dl, perr := d.Primary.Extract(ctx, Request{
		URL:       u,
		Headers:   d.Table.Headers(p),
		OutputDir: d.DownloadDir,
		Stem:      stemOf(p, u),
	})
	res.Attempts = append(res.Attempts, Attempt{Stage: StagePrimary, Err: perr})
	if perr == nil {
		res.VideoPath = dl.Path
		res.Metadata = dl.Metadata.WithDefaults(domain.UnknownTitle)
		d.remember(res, log)
		return res, nil
	}

	derr := &DownloadError{URL: u, Platform: p, Primary: perr}
	if d.Fallback == nil || !d.Table.Retryable(p, perr) {
		log.WithError(perr).Warn("主提取器失败，不升级")
		return res, derr
	}

	out := d.fallbackPath(p)
	log.WithError(perr).WithField("output", out).Warn("主提取器失败，升级到隔离 worker")
	o, ferr := d.Fallback.Run(ctx, u, out)
	if ferr == nil && o.Status != wire.StatusSuccess {
		ferr = errors.New(o.Describe())
	}
	res.Attempts = append(res.Attempts, Attempt{Stage: StageFallback, Err: ferr})
	if ferr != nil {
		derr.Fallback = ferr
		return res, derr
	}

	res.VideoPath = o.Path
	if res.VideoPath == "" {
		res.VideoPath = out
	}
	title := domain.WebVideoTitle
	if r, ok := d.Table.Rule(p); ok && r.FallbackTitle != "" {
		title = r.FallbackTitle
	}
	var meta domain.Metadata
	if o.Metadata != nil {
		meta = *o.Metadata
	}
	res.Metadata = meta.WithDefaults(title)
	res.UsedFallback = true
	d.remember(res, log)
	return res, nil
}

func (d *Downloader) fromCache(u string, log logrus.FieldLogger) (cache.DownloadEntry, bool) {
	if d.Cache == nil {
		return cache.DownloadEntry{}, false
	}
	e, ok, err := d.Cache.ReadDownload(u)
	if err != nil {
		log.WithError(err).Warn("读取下载缓存失败，忽略")
		return cache.DownloadEntry{}, false
	}
	if ok {
		log.WithField("video", e.VideoPath).Info("命中下载缓存")
	}
	return e, ok
}

func (d *Downloader) remember(r Result, log logrus.FieldLogger) {
	if d.Cache == nil {
		return
	}
	err := d.Cache.WriteDownload(cache.DownloadEntry{
		URL:          r.NormalizedURL,
		VideoPath:    r.VideoPath,
		Metadata:     r.Metadata,
		UsedFallback: r.UsedFallback,
		SavedAt:      d.clock(),
	})
	if err != nil && !errors.Is(err, cache.ErrReadOnly) {
		log.WithError(err).Warn("写入下载缓存失败，忽略")
	}
}

// fallbackPath: <download_dir>/<platform>_fallback_<unixnano>_<8 hex>.mp4
func (d *Downloader) fallbackPath(p domain.Platform) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	name := fmt.Sprintf("%s_fallback_%d_%s.mp4", p, d.clock().UnixNano(), suffix)
	return filepath.Join(d.DownloadDir, name)
}

func (d *Downloader) clock() time.Time {
	if d.now != nil {
		return d.now()
	}
	return time.Now()
}

func (d *Downloader) logger() logrus.FieldLogger {
	if d.Log == nil {
		return logx.Discard()
	}
	return d.Log
}

// stemOf 生成稳定的主提取器输出名：同一 URL 重复下载会覆盖同一个文件。
func stemOf(p domain.Platform, u string) string {
	sum := sha1.Sum([]byte(u))
	return string(p) + "_" + hex.EncodeToString(sum[:])[:12]
}
