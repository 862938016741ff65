package app

import (
	"path/filepath"
	"strconv"

	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/platform"
	"github.com/John-Robertt/vidnote/internal/videoid"
)

// Rejected 描述无法派生 RunKey 的输入。
type Rejected struct {
	Input string
	Err   error
}

// GroupByKey 把批量输入按 RunKey 分组（WorkItem 只存输入下标）。
//
// - items 保持首次出现顺序（用户给出的顺序即执行顺序）
// - 远程输入按 RunKey 判重；本地输入按绝对路径判重（不同目录下的同名文件不是重复）
// - 同一视频的重复输入收敛到同一 item；除首个外其余在报告里标记 skipped
// - 不同视频撞上同一 RunKey 时，后出现的分配 <key>-2、<key>-3…
func GroupByKey(inputs []string, tb platform.Table) (items []domain.WorkItem, rejected []Rejected) {
	byIdentity := make(map[string]int, len(inputs))
	usedKeys := make(map[domain.RunKey]struct{}, len(inputs))
	items = make([]domain.WorkItem, 0, len(inputs))

	for i, in := range inputs {
		cls := tb.Classify(in)
		k, err := videoid.Derive(in, cls.Platform)
		if err != nil {
			rejected = append(rejected, Rejected{Input: in, Err: err})
			continue
		}
		id := string(k)
		if cls.SourceType == domain.SourceLocal {
			if abs, err := filepath.Abs(in); err == nil {
				id = "local:" + abs
			}
		}
		if idx, ok := byIdentity[id]; ok {
			items[idx].InputIdx = append(items[idx].InputIdx, i)
			continue
		}
		k = allocKey(k, usedKeys)
		usedKeys[k] = struct{}{}
		byIdentity[id] = len(items)
		items = append(items, domain.WorkItem{Key: k, InputIdx: []int{i}})
	}
	return items, rejected
}

func allocKey(k domain.RunKey, used map[domain.RunKey]struct{}) domain.RunKey {
	if _, ok := used[k]; !ok {
		return k
	}
	for n := 2; ; n++ {
		cand := domain.RunKey(string(k) + "-" + strconv.Itoa(n))
		if _, ok := used[cand]; !ok {
			return cand
		}
	}
}
