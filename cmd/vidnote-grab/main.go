// vidnote-grab 是隔离进程里的浏览器采集 worker。
//
// 用法：vidnote-grab <url> <outputPath>
//
// stdout 只写协议帧（见 internal/grab/wire），恰好一个 outcome 帧；退出码不是权威信号。
// 配置走环境变量：VIDNOTE_GRAB_DEADLINE、VIDNOTE_CHROME_PATH、VIDNOTE_PROXY_URL、VIDNOTE_LOG_LEVEL。
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/grab"
	"github.com/John-Robertt/vidnote/internal/grab/wire"
	"github.com/John-Robertt/vidnote/internal/infra/httpx"
	"github.com/John-Robertt/vidnote/internal/logx"
	"github.com/John-Robertt/vidnote/internal/platform"
)

const (
	defaultDeadline = 10 * time.Minute
	// 截止时间到达后再给 Grab 这么久收尾（关闭浏览器）；仍未返回就直接报告异常并退出。
	watchdogGrace = 15 * time.Second
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Getenv))
}

func run(args []string, stdout io.Writer, getenv func(string) string) int {
	w := wire.NewWriter(stdout)
	if len(args) != 2 || strings.TrimSpace(args[0]) == "" || strings.TrimSpace(args[1]) == "" {
		_ = w.Outcome(wire.Outcome{Status: wire.StatusException, Message: "usage: vidnote-grab <url> <outputPath>"})
		return 2
	}
	url, outPath := args[0], args[1]

	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logx.ParseLevel(getenv("VIDNOTE_LOG_LEVEL")))
	log.AddHook(wire.LogHook{W: w})

	deadline := defaultDeadline
	if v := strings.TrimSpace(getenv("VIDNOTE_GRAB_DEADLINE")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			log.Warnf("VIDNOTE_GRAB_DEADLINE 无效（%q），使用默认值 %s", v, defaultDeadline)
		} else {
			deadline = d
		}
	}

	proxyURL := strings.TrimSpace(getenv("VIDNOTE_PROXY_URL"))
	hc, err := httpx.NewMediaClient(proxyURL)
	if err != nil {
		_ = w.Outcome(wire.Outcome{Status: wire.StatusException, Message: fmt.Sprintf("初始化 HTTP client 失败：%v", err)})
		return 1
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(sigCtx, deadline)
	defer cancel()

	g := &grab.Grabber{
		Launch: grab.NewChromeLauncher(grab.ChromeOptions{
			ExecPath:  strings.TrimSpace(getenv("VIDNOTE_CHROME_PATH")),
			UserAgent: platform.DesktopUserAgent,
			ProxyURL:  proxyURL,
		}),
		HTTP:  hc,
		Table: platform.DefaultTable(),
		Log:   log,
	}

	done := make(chan wire.Outcome, 1)
	go func() { done <- g.Grab(ctx, url, outPath) }()

	var out wire.Outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		select {
		case out = <-done:
		case <-time.After(watchdogGrace):
			out = wire.Outcome{Status: wire.StatusException, Message: fmt.Sprintf("worker 超过截止时间 %s 仍未结束：%v", deadline, ctx.Err())}
		}
	}
	if ctx.Err() != nil && out.Status != wire.StatusSuccess && out.Message == "" {
		out.Message = ctx.Err().Error()
	}

	if err := w.Outcome(out); err != nil {
		return 1
	}
	if out.Status != wire.StatusSuccess {
		return 1
	}
	return 0
}
