package grab

import (
	"context"
	"errors"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	opTimeout    = 10 * time.Second
	idlePoll     = 250 * time.Millisecond
	idleQuietFor = 500 * time.Millisecond
)

// 页面内脚本：按 DOM 顺序收集所有 video/source 的 src（包含 currentSrc）。
const mediaSourcesJS = `(() => {
  const out = [];
  document.querySelectorAll('video, source').forEach(el => {
    if (el.src) out.push(el.src);
    if (el.currentSrc && el.currentSrc !== el.src) out.push(el.currentSrc);
  });
  return out;
})()`

const resourceCountJS = `performance.getEntriesByType('resource').length`

const readyStateJS = `document.readyState`

// ChromeOptions 描述 headless Chrome 的启动参数。
type ChromeOptions struct {
	ExecPath  string // 空表示使用 PATH 中的 Chrome/Chromium
	UserAgent string
	ProxyURL  string
}

// NewChromeLauncher 返回基于 chromedp 的 Launcher。
func NewChromeLauncher(o ChromeOptions) Launcher {
	return func(ctx context.Context) (Browser, error) {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts, chromedp.Flag("mute-audio", true))
		if o.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(o.UserAgent))
		}
		if o.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(o.ExecPath))
		}
		if o.ProxyURL != "" {
			opts = append(opts, chromedp.ProxyServer(o.ProxyURL))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
		bctx, bcancel := chromedp.NewContext(allocCtx)
		// 空 Run 会真正拉起浏览器进程；后续超时必须从 bctx 派生。
		if err := chromedp.Run(bctx); err != nil {
			bcancel()
			allocCancel()
			return nil, err
		}
		return &chromeBrowser{ctx: bctx, cancel: bcancel, allocCancel: allocCancel}, nil
	}
}

type chromeBrowser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

func (b *chromeBrowser) NewPage() (Page, error) {
	pctx, pcancel := chromedp.NewContext(b.ctx)
	if err := chromedp.Run(pctx); err != nil {
		pcancel()
		return nil, err
	}
	return &chromePage{ctx: pctx, cancel: pcancel}, nil
}

// Close 优雅关闭浏览器；最后取消 allocator，保证子进程被回收。
func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancel()
	b.allocCancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

type chromePage struct {
	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func (p *chromePage) run(timeout time.Duration, actions ...chromedp.Action) error {
	if p.closed {
		return errors.New("page 已关闭")
	}
	ctx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (p *chromePage) Navigate(url string, timeout time.Duration) error {
	return p.run(timeout, chromedp.Navigate(url))
}

// WaitNetworkIdle 以“资源条目数在 idleQuietFor 内不再增长且文档加载完成”近似网络静默。
func (p *chromePage) WaitNetworkIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	last, stableSince := -1, time.Now()
	for {
		var (
			n     int
			state string
		)
		if err := p.run(opTimeout, chromedp.Evaluate(resourceCountJS, &n), chromedp.Evaluate(readyStateJS, &state)); err != nil {
			return err
		}
		now := time.Now()
		if n != last {
			last, stableSince = n, now
		} else if state == "complete" && now.Sub(stableSince) >= idleQuietFor {
			return nil
		}
		if now.After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-p.ctx.Done():
			return p.ctx.Err()
		case <-time.After(idlePoll):
		}
	}
}

func (p *chromePage) WaitVideo(timeout time.Duration) error {
	return p.run(timeout, chromedp.WaitReady("video", chromedp.ByQuery))
}

func (p *chromePage) Title() (string, error) {
	var s string
	err := p.run(opTimeout, chromedp.Title(&s))
	return s, err
}

func (p *chromePage) Location() (string, error) {
	var s string
	err := p.run(opTimeout, chromedp.Location(&s))
	return s, err
}

func (p *chromePage) HTML() (string, error) {
	var s string
	err := p.run(opTimeout, chromedp.OuterHTML("html", &s, chromedp.ByQuery))
	return s, err
}

func (p *chromePage) MediaSources() ([]string, error) {
	var srcs []string
	err := p.run(opTimeout, chromedp.Evaluate(mediaSourcesJS, &srcs))
	return srcs, err
}

func (p *chromePage) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
