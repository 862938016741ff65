package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/logx"
)

const (
	defaultAddr         = "127.0.0.1:8080"
	shutdownGracePeriod = 10 * time.Second
)

// runner 执行单条输入直到 Terminal；*pipeline.Orchestrator 满足该接口。
type runner interface {
	Run(ctx context.Context, input string) domain.RunState
}

type runRequest struct {
	Input string `json:"input" binding:"required"`
}

func serveCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printUsage()
			return 0
		}
	}
	addr := defaultAddr
	var cli config.CLIArgs
	for i := 0; i < len(args); i++ {
		a := args[i]
		var next *string
		switch {
		case a == "--addr":
			next = &addr
		case strings.HasPrefix(a, "--addr="):
			addr = strings.TrimPrefix(a, "--addr=")
		case a == "--work-dir":
			next = &cli.WorkDir
		case strings.HasPrefix(a, "--work-dir="):
			cli.WorkDir = strings.TrimPrefix(a, "--work-dir=")
		case a == "--config":
			next = &cli.ConfigFile
		case strings.HasPrefix(a, "--config="):
			cli.ConfigFile = strings.TrimPrefix(a, "--config=")
		default:
			fmt.Fprintf(os.Stderr, "参数错误：未知参数 %q\n", a)
			return 2
		}
		if next != nil {
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "参数错误：%s 需要一个值\n", a)
				return 2
			}
			i++
			*next = args[i]
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	log, closeLog, err := logx.New(logx.Config{Level: eff.Log.Level, Format: eff.Log.Format, File: eff.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败：%v\n", err)
		return 1
	}
	defer func() { _ = closeLog() }()

	st, err := buildStack(eff, log, nil)
	if err != nil {
		log.WithError(err).Error("初始化失败")
		return 1
	}
	defer st.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    addr,
		Handler: newRouter(st.Orchestrator, eff.Concurrency, log),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("HTTP 服务已启动")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP 服务异常退出")
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Error("HTTP 服务关闭失败")
		return 1
	}
	return 0
}

// newRouter 注册接口：
// - POST /api/runs {"input": "..."}：同步执行一次运行，返回终态 RunState；失败运行同样返回 200（看 document_path / errors）
// - GET /healthz
//
// 并发运行数受 maxRuns 限制；超出时排队等待，直到客户端放弃请求。
func newRouter(r runner, maxRuns int, log logrus.FieldLogger) *gin.Engine {
	if maxRuns < 1 {
		maxRuns = 1
	}
	sem := make(chan struct{}, maxRuns)

	engine := gin.New()
	engine.Use(gin.Recovery(), accessLog(log))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.POST("/api/runs", func(c *gin.Context) {
		var req runRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Input) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "请求体必须是 {\"input\": \"<url 或本地路径>\"}"})
			return
		}
		select {
		case sem <- struct{}{}:
		case <-c.Request.Context().Done():
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "请求已取消"})
			return
		}
		defer func() { <-sem }()

		s := r.Run(c.Request.Context(), strings.TrimSpace(req.Input))
		c.JSON(http.StatusOK, gin.H{
			"state":     s,
			"succeeded": s.Succeeded(),
			"guidance":  s.Guidance(),
		})
	})
	return engine
}

func accessLog(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
			"cost":   time.Since(started).String(),
		}).Info("http request")
	}
}
