package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
	logwriter "github.com/sirupsen/logrus/hooks/writer"
)

const (
	defaultMaxAge     = 7 * 24 * time.Hour
	defaultRotateTime = 24 * time.Hour
)

// Config 描述日志输出。
//
// 约束：
// - 控制台输出默认走 stderr（stdout 保留给 JSON 报告 / worker 协议帧）
// - File 非空时额外写一份按天切分的文件日志，级别过滤与控制台一致
type Config struct {
	Level  string // debug/info/warn/error；未知按 info
	Format string // text/json
	File   string // 例如 <work>/logs/vidnote.log；空表示不写文件

	MaxAge     time.Duration
	RotateTime time.Duration

	Out io.Writer // nil => os.Stderr
}

// New 构造独立的 logger（不修改 logrus 全局状态）。
// 返回的 closeFn 用于关闭文件 writer；未开启文件日志时为空操作。
func New(c Config) (*logrus.Logger, func() error, error) {
	l := logrus.New()
	out := c.Out
	if out == nil {
		out = os.Stderr
	}
	l.SetOutput(out)
	l.SetLevel(ParseLevel(c.Level))

	switch strings.ToLower(strings.TrimSpace(c.Format)) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05.999"})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"})
	}

	closeFn := func() error { return nil }
	if f := strings.TrimSpace(c.File); f != "" {
		if err := os.MkdirAll(filepath.Dir(f), 0o755); err != nil {
			return nil, nil, fmt.Errorf("创建日志目录失败：%w", err)
		}
		maxAge := c.MaxAge
		if maxAge <= 0 {
			maxAge = defaultMaxAge
		}
		rotate := c.RotateTime
		if rotate <= 0 {
			rotate = defaultRotateTime
		}
		w, err := rotatelogs.New(
			f+".%Y%m%d",
			rotatelogs.WithLinkName(f),
			rotatelogs.WithMaxAge(maxAge),
			rotatelogs.WithRotationTime(rotate),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("rotatelogs.New failed: %w", err)
		}
		// 文件日志固定 JSON，便于事后检索。
		l.AddHook(&jsonFileHook{
			Hook: logwriter.Hook{Writer: w, LogLevels: resolveLevels(c.Level)},
			fmt:  &logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05.999"},
		})
		closeFn = w.Close
	}
	return l, closeFn, nil
}

// Discard 返回一个丢弃所有输出的 logger（测试与未注入 logger 的组件使用）。
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func ParseLevel(s string) logrus.Level {
	l, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

var levelMapping = map[string][]logrus.Level{
	"debug": {logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel, logrus.DebugLevel},
	"info":  {logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel, logrus.InfoLevel},
	"warn":  {logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel},
	"error": {logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel},
}

func resolveLevels(l string) []logrus.Level {
	if levels, ok := levelMapping[strings.ToLower(strings.TrimSpace(l))]; ok {
		return levels
	}
	return levelMapping["info"]
}

// jsonFileHook 让文件日志使用独立的 JSON 格式（控制台可以是 text）。
type jsonFileHook struct {
	logwriter.Hook
	fmt logrus.Formatter
}

func (h *jsonFileHook) Fire(e *logrus.Entry) error {
	b, err := h.fmt.Format(e)
	if err != nil {
		return err
	}
	_, err = h.Writer.Write(b)
	return err
}
