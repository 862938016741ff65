// Package grab 实现隔离进程里的浏览器采集（worker 侧）以及父进程侧的调用器。
package grab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/grab/wire"
	"github.com/John-Robertt/vidnote/internal/infra/fsx"
	"github.com/John-Robertt/vidnote/internal/logx"
	"github.com/John-Robertt/vidnote/internal/platform"
)

const (
	DefaultNavigateTimeout = 45 * time.Second
	DefaultIdleTimeout     = 10 * time.Second
	DefaultElementTimeout  = 8 * time.Second
	DefaultChunkSize       = 1 << 20
	DefaultTitleMax        = 50
)

// Page 是一个浏览器标签页的最小能力集。
// 每个方法自带超时；所有方法都必须在 Close 之后立即返回错误。
type Page interface {
	Navigate(url string, timeout time.Duration) error
	WaitNetworkIdle(timeout time.Duration) error
	WaitVideo(timeout time.Duration) error
	Title() (string, error)
	Location() (string, error)
	HTML() (string, error)
	// MediaSources 在页面内执行脚本，按 DOM 顺序返回全部 <video>/<source> 的 src。
	MediaSources() ([]string, error)
	Close() error
}

// Browser 是一次 worker 运行独占的浏览器实例。
type Browser interface {
	NewPage() (Page, error)
	Close() error
}

// Launcher 启动浏览器；ctx 取消时浏览器必须随之退出。
type Launcher func(ctx context.Context) (Browser, error)

// Grabber 在浏览器里定位媒体直链并下载。
//
// 约束：
// - 无论成功、验证页、未找到还是异常，浏览器与页面都必须在返回前关闭
// - 只做一次尝试，不重试
// - 标题抓取失败只记日志，保留占位标题
type Grabber struct {
	Launch Launcher
	HTTP   *http.Client
	Table  platform.Table
	Log    logrus.FieldLogger

	NavigateTimeout time.Duration
	IdleTimeout     time.Duration
	ElementTimeout  time.Duration
	ChunkSize       int
	TitleMax        int
}

// Grab 执行一次采集并返回权威结果（不会 panic）。
func (g *Grabber) Grab(ctx context.Context, rawURL, outPath string) (out wire.Outcome) {
	log := g.logger().WithField("url", rawURL)
	defer func() {
		if r := recover(); r != nil {
			out = wire.Outcome{Status: wire.StatusException, Message: fmt.Sprint(r), Trace: string(debug.Stack())}
		}
	}()

	meta := domain.Metadata{}.WithDefaults(domain.WebVideoTitle)
	rule, hasRule := g.Table.RuleForURL(rawURL)
	if hasRule && rule.FallbackTitle != "" {
		meta.Title = rule.FallbackTitle
	}
	selectors := []string{"h1", ".video-info-title", ".video-title"}
	if hasRule && len(rule.TitleSelectors) > 0 {
		selectors = rule.TitleSelectors
	}

	log.Info("启动浏览器")
	b, err := g.Launch(ctx)
	if err != nil {
		return exception("启动浏览器失败", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("关闭浏览器失败")
		}
	}()

	page, err := b.NewPage()
	if err != nil {
		return exception("创建页面失败", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.WithError(err).Warn("关闭页面失败")
		}
	}()

	log.Info("打开页面")
	if err := page.Navigate(rawURL, orDefault(g.NavigateTimeout, DefaultNavigateTimeout)); err != nil {
		return exception("打开页面失败", err)
	}
	if err := page.WaitNetworkIdle(orDefault(g.IdleTimeout, DefaultIdleTimeout)); err != nil {
		// 网络静默只是尽力而为：超时继续。
		log.WithError(err).Warn("等待网络静默超时，继续处理")
	}

	title, err := page.Title()
	if err != nil {
		log.WithError(err).Warn("读取页面标题失败")
	}
	loc, err := page.Location()
	if err != nil {
		log.WithError(err).Warn("读取当前 URL 失败")
		loc = rawURL
	}
	if be := platform.DetectChallenge(loc, title); be != nil {
		log.WithField("reason", be.Reason).Warn("检测到验证页")
		return wire.Outcome{Status: wire.StatusAntiBot, Message: be.Error()}
	}

	if err := page.WaitVideo(orDefault(g.ElementTimeout, DefaultElementTimeout)); err != nil {
		log.WithError(err).Warn("等待 video 元素超时")
	}

	var info PageInfo
	if html, err := page.HTML(); err != nil {
		log.WithError(err).Warn("读取页面 DOM 失败")
	} else if info, err = ParsePage(html, loc, selectors, orDefaultInt(g.TitleMax, DefaultTitleMax)); err != nil {
		log.WithError(err).Warn("解析页面 DOM 失败")
	}

	mediaURL := info.MediaURL
	sawBlob := info.SawBlob
	if mediaURL == "" {
		srcs, err := page.MediaSources()
		if err != nil {
			log.WithError(err).Warn("脚本扫描媒体源失败")
		}
		var blob bool
		mediaURL, blob = PickMediaSource(srcs)
		sawBlob = sawBlob || blob
	}
	if mediaURL == "" {
		return wire.Outcome{Status: wire.StatusNotFound, Blob: sawBlob}
	}

	if info.Title != "" {
		meta.Title = info.Title
	} else {
		log.Warn("未解析到标题，使用占位标题")
	}

	log.WithField("media", mediaURL).Info("开始下载媒体")
	referer := ""
	if hasRule {
		referer = rule.Referer
	}
	if err := g.download(ctx, mediaURL, referer, outPath); err != nil {
		var hs *platform.HTTPStatusError
		if errors.As(err, &hs) {
			return wire.Outcome{Status: wire.StatusDownloadError, HTTPStatus: hs.StatusCode}
		}
		return exception("下载媒体失败", err)
	}
	return wire.Outcome{Status: wire.StatusSuccess, Path: outPath, Metadata: &meta}
}

// download 以固定大小分块流式写入：先写 .part，成功后 rename 到目标路径。
func (g *Grabber) download(ctx context.Context, mediaURL, referer, outPath string) error {
	if g.HTTP == nil {
		return errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", platform.DesktopUserAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	resp, err := g.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &platform.HTTPStatusError{URL: mediaURL, StatusCode: resp.StatusCode}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	part := outPath + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	buf := make([]byte, orDefaultInt(g.ChunkSize, DefaultChunkSize))
	_, cerr := io.CopyBuffer(f, resp.Body, buf)
	if err := f.Close(); err != nil && cerr == nil {
		cerr = err
	}
	if cerr != nil {
		_ = os.Remove(part)
		return cerr
	}
	return fsx.Rename(part, outPath)
}

func (g *Grabber) logger() logrus.FieldLogger {
	if g.Log == nil {
		return logx.Discard()
	}
	return g.Log
}

func exception(what string, err error) wire.Outcome {
	return wire.Outcome{Status: wire.StatusException, Message: what + "：" + err.Error()}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

func orDefaultInt(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}
