package wire

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogHook 把 logrus 日志转成 log 帧（worker 进程内使用）。
type LogHook struct {
	W *Writer
}

func (h LogHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h LogHook) Fire(e *logrus.Entry) error {
	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(e.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Data[k])
	}
	return h.W.Log(e.Level.String(), b.String())
}
