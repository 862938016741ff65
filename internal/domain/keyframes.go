package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Keyframe 是一条“时间戳 -> 图片路径”记录。
type Keyframe struct {
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// Keyframes 是有序映射：插入顺序即采集顺序，key 唯一。
//
// 约束：
// - 只能追加，不能删除或改写已有条目
// - JSON 形态为有序数组（map 无法表达顺序）
type Keyframes struct {
	entries []Keyframe
	index   map[string]int
}

// NewKeyframes 按给定顺序构造；重复时间戳保留第一条。
func NewKeyframes(entries ...Keyframe) Keyframes {
	var k Keyframes
	for _, e := range entries {
		k.Add(e.Timestamp, e.Path)
	}
	return k
}

// Add 追加一条记录；时间戳已存在时返回 false 且不做任何修改。
func (k *Keyframes) Add(ts, path string) bool {
	if k.index == nil {
		k.index = make(map[string]int)
	}
	if _, ok := k.index[ts]; ok {
		return false
	}
	k.index[ts] = len(k.entries)
	k.entries = append(k.entries, Keyframe{Timestamp: ts, Path: path})
	return true
}

func (k Keyframes) Len() int { return len(k.entries) }

func (k Keyframes) Get(ts string) (string, bool) {
	i, ok := k.index[ts]
	if !ok {
		return "", false
	}
	return k.entries[i].Path, true
}

// Entries 返回副本，调用方修改不会影响原映射。
func (k Keyframes) Entries() []Keyframe {
	out := make([]Keyframe, len(k.entries))
	copy(out, k.entries)
	return out
}

func (k Keyframes) Keys() []string {
	out := make([]string, 0, len(k.entries))
	for _, e := range k.entries {
		out = append(out, e.Timestamp)
	}
	return out
}

func (k Keyframes) Clone() Keyframes {
	return NewKeyframes(k.entries...)
}

func (k Keyframes) MarshalJSON() ([]byte, error) {
	if k.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(k.entries)
}

func (k *Keyframes) UnmarshalJSON(b []byte) error {
	var entries []Keyframe
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	*k = NewKeyframes(entries...)
	return nil
}

// FormatTimestamp 把秒数格式化为 HH:MM:SS（小时不封顶）。
func FormatTimestamp(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}

// ParseTimestamp 解析 HH:MM:SS；也接受 MM:SS。
func ParseTimestamp(s string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}
	total := 0
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		// 分、秒必须 < 60；最高位不限制。
		if i > 0 && n >= 60 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}
