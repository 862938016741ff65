package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/John-Robertt/vidnote/internal/app/run"
	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/infra/fsx"
	"github.com/John-Robertt/vidnote/internal/logx"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 || isHelp(args[0]) {
		printUsage()
		return
	}

	switch args[0] {
	case "run":
		if code := runCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	case "serve":
		if code := serveCmd(args[1:]); code != 0 {
			os.Exit(code)
		}
	default:
		fmt.Fprintf(os.Stderr, "未知命令：%q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
}

func runCmd(args []string) int {
	for _, a := range args {
		if isHelp(a) {
			printRunUsage()
			return 0
		}
	}

	ra, err := parseRunArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "参数错误：%v\n\n", err)
		printRunUsage()
		return 2
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		return 1
	}
	cwdAbs, _ := filepath.Abs(cwd)

	eff, err := config.LoadEffective(cwd, ra.CLI)
	if err != nil {
		emitReport(reportForConfigError(cwdAbs, err))
		return 1
	}

	log, closeLog, err := logx.New(logx.Config{Level: eff.Log.Level, Format: eff.Log.Format, File: eff.Log.File})
	if err != nil {
		emitReport(reportForConfigError(eff.WorkDir, &config.Error{Code: config.ErrCodeInvalid, Err: err}))
		return 1
	}
	defer func() { _ = closeLog() }()

	progressW, interactive := pickProgressWriter()
	var obs run.Observer
	if interactive {
		ui := newProgressUI(progressW)
		defer ui.Stop()
		obs = ui
		// 交互终端下日志只保留告警，避免与进度行交错。
		if eff.Log.Level == "" || strings.EqualFold(eff.Log.Level, "info") {
			log.SetLevel(logx.ParseLevel("warn"))
		}
	}

	st, err := buildStack(eff, log, obs)
	if err != nil {
		emitReport(reportForConfigError(eff.WorkDir, &config.Error{Code: config.ErrCodeInvalid, Err: err}))
		return 1
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rr domain.RunReport
	if obs != nil {
		rr = run.ExecuteWithObserver(ctx, eff, ra.Inputs, st.Table, st.Orchestrator, obs)
	} else {
		rr = run.Execute(ctx, eff, ra.Inputs, st.Table, st.Orchestrator)
	}

	if ra.Report {
		if err := writeReportFile(eff.WorkDir, rr); err != nil {
			fmt.Fprintf(os.Stderr, "写入 report.json 失败：%v\n", err)
			emitReport(rr)
			return 1
		}
	}

	emitReport(rr)
	if interactive {
		emitLocations(progressW, eff, ra.Report)
	}
	if rr.Summary.Failed == 0 {
		return 0
	}
	return 1
}

type runArgs struct {
	Inputs []string
	Report bool
	CLI    config.CLIArgs
}

func parseRunArgs(args []string) (runArgs, error) {
	ra := runArgs{}

	// value 同时支持 "--flag v" 与 "--flag=v" 两种写法。
	value := func(i *int, a, name string) (string, bool, error) {
		if a == name {
			if *i+1 >= len(args) {
				return "", true, fmt.Errorf("%s 需要一个值", name)
			}
			*i++
			return args[*i], true, nil
		}
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"="), true, nil
		}
		return "", false, nil
	}

	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--report" {
			ra.Report = true
			continue
		}
		if a == "--no-cache" {
			ra.CLI.NoCache = true
			continue
		}
		if v, ok, err := value(&i, a, "--work-dir"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.CLI.WorkDir = v
			continue
		}
		if v, ok, err := value(&i, a, "--config"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.CLI.ConfigFile = v
			continue
		}
		if v, ok, err := value(&i, a, "--concurrency"); ok {
			if err != nil {
				return runArgs{}, err
			}
			n, e := strconv.Atoi(v)
			if e != nil {
				return runArgs{}, fmt.Errorf("--concurrency 必须是整数，实际是 %q", v)
			}
			ra.CLI.Concurrency, ra.CLI.ConcurrencySet = n, true
			continue
		}
		if v, ok, err := value(&i, a, "--threshold"); ok {
			if err != nil {
				return runArgs{}, err
			}
			f, e := strconv.ParseFloat(v, 64)
			if e != nil {
				return runArgs{}, fmt.Errorf("--threshold 必须是数字，实际是 %q", v)
			}
			ra.CLI.Threshold, ra.CLI.ThresholdSet = f, true
			continue
		}
		if v, ok, err := value(&i, a, "--log-level"); ok {
			if err != nil {
				return runArgs{}, err
			}
			ra.CLI.LogLevel, ra.CLI.LogLevelSet = v, true
			continue
		}
		if strings.HasPrefix(a, "-") && a != "-" {
			return runArgs{}, fmt.Errorf("未知参数 %q", a)
		}
		ra.Inputs = append(ra.Inputs, a)
	}

	if len(ra.Inputs) == 0 {
		return runArgs{}, fmt.Errorf("至少需要一个输入（URL、视频文件或目录）")
	}
	return ra, nil
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func printUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vidnote run <input...> [--work-dir DIR] [--config FILE] [--concurrency N] [--threshold T] [--no-cache] [--report]
  vidnote serve [--addr HOST:PORT] [--work-dir DIR] [--config FILE]

命令：
  run    对每个输入执行 下载 -> 关键帧 -> 分析 -> 生成文档
  serve  启动 HTTP 接口（POST /api/runs）

使用 "vidnote run --help" 查看详细说明。
`)
}

func printRunUsage() {
	fmt.Fprint(os.Stdout, `用法：
  vidnote run <input...> [flags]

输入：
  视频 URL（B站/抖音/小红书/YouTube/其他）、本地视频文件，或包含视频的目录

参数：
  --work-dir     工作目录（默认当前目录；vidnote.json/.env 从这里读取）
  --config       显式指定配置文件（必须存在）
  --concurrency  同时处理的输入数（默认 1，最大 8；单个输入内部始终串行）
  --threshold    场景变化阈值 0..255（默认 30）
  --log-level    debug|info|warn|error
  --no-cache     不读写下载缓存
  --report       额外写入 <work>/cache/report.json
  -h, --help     显示帮助
`)
}

func emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：succeeded=%d failed=%d skipped=%d\n",
		rr.Summary.Succeeded, rr.Summary.Failed, rr.Summary.Skipped,
	)
	if isTTY(os.Stdout) {
		fmt.Fprint(os.Stdout, summary)
		for _, it := range rr.Items {
			switch it.Status {
			case domain.StatusSucceeded:
				fmt.Fprintf(os.Stdout, "  %s -> %s\n", anchorOf(it), it.DocumentPath)
			case domain.StatusFailed:
				fmt.Fprintf(os.Stderr, "%s %s: %s\n", anchorOf(it), it.ErrorCode, it.Guidance)
			}
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(rr)
	fmt.Fprint(os.Stderr, summary)
}

// anchorOf 给条目找一个用户认得出的定位锚点。
func anchorOf(it domain.ItemResult) string {
	switch {
	case it.Key != "":
		return it.Key
	case it.Input != "":
		return it.Input
	default:
		return "<unknown>"
	}
}

func reportForConfigError(workDir string, err error) domain.RunReport {
	now := time.Now().UTC()
	code := config.Code(err)
	if code == "" {
		code = domain.ErrCodeConfigInvalid
	}
	rr := domain.RunReport{
		WorkDir:    workDir,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:    domain.StatusFailed,
			ErrorCode: code,
			Errors:    []string{err.Error()},
			Guidance:  err.Error(),
		}},
	}
	rr.Finalize()
	return rr
}

func writeReportFile(root string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomicReplace(filepath.Join(root, "cache"), "report.json", b)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTTY(os.Stderr) {
		return os.Stderr, true
	}
	if isTTY(os.Stdout) {
		return os.Stdout, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig, report bool) {
	if w == nil {
		return
	}
	if report {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.WorkDir, "cache", "report.json"))
	}
	fmt.Fprintf(w, "outputs: %s\n", eff.OutputDir)
}
