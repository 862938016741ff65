// Package wire 定义采集 worker 与父进程之间的行协议。
//
// 每个协议帧是一行：固定前缀 + JSON 对象。前缀以外的行都是自由文本诊断，父进程忽略。
// 一次 worker 运行恰好输出一个 outcome 帧；log 帧数量不限。
package wire

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/John-Robertt/vidnote/internal/domain"
)

// Prefix 标识协议帧；版本号变化意味着帧结构不兼容。
const Prefix = "@@vidnote/1 "

type FrameType string

const (
	FrameLog     FrameType = "log"
	FrameOutcome FrameType = "outcome"
)

// Status 是 worker 的结果枚举。
type Status string

const (
	StatusSuccess       Status = "success"
	StatusAntiBot       Status = "anti_bot"
	StatusNotFound      Status = "not_found"
	StatusDownloadError Status = "download_error"
	StatusException     Status = "exception"
)

// Outcome 是 worker 的权威结果。
//
// 字段按 Status 取用：
// - success：Path + Metadata
// - not_found：Blob=true 表示页面上只有 blob: 源
// - download_error：HTTPStatus
// - exception：Message + Trace
type Outcome struct {
	Status     Status           `json:"status"`
	Path       string           `json:"path,omitempty"`
	Metadata   *domain.Metadata `json:"metadata,omitempty"`
	HTTPStatus int              `json:"http_status,omitempty"`
	Message    string           `json:"message,omitempty"`
	Trace      string           `json:"trace,omitempty"`
	Blob       bool             `json:"blob,omitempty"`
}

// Describe 渲染为一行诊断（父进程写入 RunState.Errors 时使用）。
func (o Outcome) Describe() string {
	var b strings.Builder
	b.WriteString("worker outcome=" + string(o.Status))
	switch o.Status {
	case StatusAntiBot:
		b.WriteString("：页面要求人机验证")
	case StatusNotFound:
		if o.Blob {
			b.WriteString("：页面只有 blob: 媒体源，无法直链下载")
		} else {
			b.WriteString("：未找到可用的媒体直链")
		}
	case StatusDownloadError:
		b.WriteString("：媒体下载返回 HTTP " + strconv.Itoa(o.HTTPStatus))
	}
	if o.Message != "" {
		b.WriteString("：" + o.Message)
	}
	if o.Trace != "" {
		b.WriteString(" | trace: " + o.Trace)
	}
	return b.String()
}

// Frame 是一行协议帧。
type Frame struct {
	Type    FrameType `json:"type"`
	Level   string    `json:"level,omitempty"`
	Message string    `json:"msg,omitempty"`
	Outcome *Outcome  `json:"outcome,omitempty"`
}

var (
	ErrNoOutcome   = errors.New("wire: worker 未输出结果帧")
	ErrOutcomeSent = errors.New("wire: 结果帧只能输出一次")
)

// Writer 负责写帧；并发安全（日志 hook 与主流程可能同时写）。
type Writer struct {
	mu   sync.Mutex
	w    io.Writer
	sent bool
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) Log(level, msg string) error {
	return w.write(Frame{Type: FrameLog, Level: level, Message: msg})
}

// Outcome 输出结果帧；第二次调用返回 ErrOutcomeSent 且不写入。
func (w *Writer) Outcome(o Outcome) error {
	w.mu.Lock()
	if w.sent {
		w.mu.Unlock()
		return ErrOutcomeSent
	}
	w.sent = true
	w.mu.Unlock()
	return w.write(Frame{Type: FrameOutcome, Outcome: &o})
}

// Sent 报告结果帧是否已输出。
func (w *Writer) Sent() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sent
}

func (w *Writer) write(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err = io.WriteString(w.w, Prefix+string(b)+"\n")
	return err
}

// ParseLine 解析一行输出。ok=false 表示该行不是帧（自由文本）。
// 兼容旧版纯文本标记：JSON_RESULT: / ANTI_BOT_TRIGGERED / VIDEO_NOT_FOUND[_OR_BLOB] /
// DOWNLOAD_ERROR:<code> / EXCEPTION:<msg>。
func ParseLine(line string) (Frame, bool) {
	line = strings.TrimRight(line, "\r\n")
	if strings.HasPrefix(line, Prefix) {
		var f Frame
		if err := json.Unmarshal([]byte(line[len(Prefix):]), &f); err != nil {
			return Frame{}, false
		}
		if f.Type == FrameOutcome && f.Outcome == nil {
			return Frame{}, false
		}
		return f, true
	}
	if o, ok := parseLegacy(strings.TrimSpace(line)); ok {
		return Frame{Type: FrameOutcome, Outcome: &o}, true
	}
	return Frame{}, false
}

func parseLegacy(line string) (Outcome, bool) {
	switch {
	case strings.HasPrefix(line, "JSON_RESULT:"):
		var o Outcome
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "JSON_RESULT:")), &o); err != nil || o.Status != StatusSuccess {
			return Outcome{}, false
		}
		return o, true
	case line == "ANTI_BOT_TRIGGERED":
		return Outcome{Status: StatusAntiBot}, true
	case line == "VIDEO_NOT_FOUND_OR_BLOB":
		return Outcome{Status: StatusNotFound, Blob: true}, true
	case line == "VIDEO_NOT_FOUND":
		return Outcome{Status: StatusNotFound}, true
	case strings.HasPrefix(line, "DOWNLOAD_ERROR:"):
		code, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "DOWNLOAD_ERROR:")))
		if err != nil {
			return Outcome{}, false
		}
		return Outcome{Status: StatusDownloadError, HTTPStatus: code}, true
	case strings.HasPrefix(line, "EXCEPTION:"):
		return Outcome{Status: StatusException, Message: strings.TrimSpace(strings.TrimPrefix(line, "EXCEPTION:"))}, true
	}
	return Outcome{}, false
}

// Decode 读完整个流（避免 worker 因管道写满而阻塞），返回第一个结果帧。
// onLog 可为空；log 帧按出现顺序回调。
func Decode(r io.Reader, onLog func(Frame)) (Outcome, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		out   Outcome
		found bool
	)
	for sc.Scan() {
		f, ok := ParseLine(sc.Text())
		if !ok {
			continue
		}
		switch f.Type {
		case FrameLog:
			if onLog != nil {
				onLog(f)
			}
		case FrameOutcome:
			if !found {
				out = *f.Outcome
				found = true
			}
		}
	}
	if err := sc.Err(); err != nil && !found {
		return Outcome{}, fmt.Errorf("wire: 读取 worker 输出失败：%w", err)
	}
	if !found {
		return Outcome{}, ErrNoOutcome
	}
	return out, nil
}
