package grab

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/vidnote/internal/grab/wire"
	"github.com/John-Robertt/vidnote/internal/logx"
)

const defaultStderrTail = 4 << 10

// WorkerError 是 fallback worker 失败时的完整诊断：worker 自己上报的结果 + 进程层面的信息。
type WorkerError struct {
	Outcome wire.Outcome
	ExitErr error  // 进程退出错误（exit code 非权威，仅作补充）
	Stderr  string // stderr 尾部
}

func (e *WorkerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Outcome.Describe())
	if e.ExitErr != nil {
		b.WriteString(" | exit: " + e.ExitErr.Error())
	}
	if s := strings.TrimSpace(e.Stderr); s != "" && e.Outcome.Trace == "" {
		b.WriteString(" | stderr: " + s)
	}
	return b.String()
}

func (e *WorkerError) Unwrap() error { return e.ExitErr }

// ProcessRunner 以独立进程运行采集 worker（argv: [url, outputPath]）。
//
// 约束：
// - 父进程阻塞等待，不额外施加超时（worker 内部自带截止时间）
// - 退出码不是权威信号，只以 stdout 中的结果帧判定
type ProcessRunner struct {
	Bin  string
	Args []string // 追加在 url/outputPath 之前的参数（例如测试时的 -test.run）
	Env  []string
	Log  logrus.FieldLogger

	StderrTail int
}

// Run 执行 worker；非 success 结果以 *WorkerError 返回。
func (r *ProcessRunner) Run(ctx context.Context, url, outPath string) (wire.Outcome, error) {
	if strings.TrimSpace(r.Bin) == "" {
		return wire.Outcome{}, errors.New("worker 可执行文件未配置")
	}
	log := r.Log
	if log == nil {
		log = logx.Discard()
	}

	args := append(append([]string{}, r.Args...), url, outPath)
	cmd := exec.CommandContext(ctx, r.Bin, args...)
	if len(r.Env) > 0 {
		cmd.Env = r.Env
	}
	tail := &tailBuffer{max: r.StderrTail}
	if tail.max <= 0 {
		tail.max = defaultStderrTail
	}
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return wire.Outcome{}, err
	}
	if err := cmd.Start(); err != nil {
		return wire.Outcome{}, fmt.Errorf("启动 worker 失败：%w", err)
	}

	out, decErr := wire.Decode(stdout, func(f wire.Frame) {
		log.WithField("worker_level", f.Level).Debug(f.Message)
	})
	waitErr := cmd.Wait()

	if decErr != nil {
		return wire.Outcome{}, &WorkerError{
			Outcome: wire.Outcome{Status: wire.StatusException, Message: decErr.Error()},
			ExitErr: waitErr,
			Stderr:  tail.String(),
		}
	}
	if out.Status != wire.StatusSuccess {
		return out, &WorkerError{Outcome: out, ExitErr: waitErr, Stderr: tail.String()}
	}
	return out, nil
}

// tailBuffer 只保留最后 max 字节（stderr 可能很大）。
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
