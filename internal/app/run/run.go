// Package run 执行一批输入：展开目录、按 RunKey 去重，然后在有界 worker pool 上逐条跑完整流水线。
package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/John-Robertt/vidnote/internal/app"
	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/platform"
	"github.com/John-Robertt/vidnote/internal/scan"
)

// Pipeline 是单条输入的执行者；*pipeline.Orchestrator 满足该接口。
type Pipeline interface {
	RunWithKey(ctx context.Context, input string, key domain.RunKey) domain.RunState
}

// Execute 执行一个批次，并返回对外稳定的 RunReport。
// 单条失败只影响该条目；批次本身只在输入无法展开时整体失败。
func Execute(ctx context.Context, eff config.EffectiveConfig, inputs []string, tb platform.Table, p Pipeline) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, inputs, tb, p, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, inputs []string, tb platform.Table, p Pipeline, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		WorkDir:   eff.WorkDir,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, len(inputs)),
	}

	if len(inputs) == 0 {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeInputMissing, "没有输入：请提供视频 URL、本地视频文件或目录"))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	expandStarted := time.Now()
	expanded, err := scan.ExpandInputs(inputs, eff.ExcludeDirs)
	if err != nil {
		code := domain.ErrCodeInputInvalid
		var ed *scan.EmptyDirError
		if errors.As(err, &ed) {
			code = domain.ErrCodeInputMissing
		}
		rr.Items = append(rr.Items, syntheticFailed(code, fmt.Sprintf("展开输入失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	expandDur := time.Since(expandStarted)

	groupStarted := time.Now()
	items, rejected := app.GroupByKey(expanded, tb)
	groupDur := time.Since(groupStarted)

	duplicates := 0
	for _, it := range items {
		duplicates += len(it.InputIdx) - 1
	}

	if obs != nil {
		obs.OnPhaseDone("expand", map[string]any{
			"inputs":   len(inputs),
			"expanded": len(expanded),
		}, expandDur)
		obs.OnPhaseDone("group", map[string]any{
			"runs":       len(items),
			"duplicates": duplicates,
			"rejected":   len(rejected),
		}, groupDur)
	}

	for _, r := range rejected {
		rr.Items = append(rr.Items, rejectedItem(r))
	}
	// 重复输入：只跑首个，其余标记 skipped 并指向首个输入。
	for _, it := range items {
		for _, idx := range it.InputIdx[1:] {
			rr.Items = append(rr.Items, duplicateItem(it.Key, expanded[idx], expanded[it.InputIdx[0]]))
		}
	}

	// 执行阶段：条目之间并发（worker pool），条目内阶段串行。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > len(items) && len(items) > 0 {
		workers = len(items)
	}

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":    workers,
			"total_runs": len(items),
		}, 0)
	}

	type execResult struct {
		res domain.ItemResult
		dur time.Duration
	}

	jobs := make(chan domain.WorkItem)
	results := make(chan execResult, len(items))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := range jobs {
				oneStarted := time.Now()
				r := execOne(ctx, p, it, expanded)
				results <- execResult{res: r, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		// 按输入顺序派发；并发=1 时即严格按用户给出的顺序执行。
		for _, it := range items {
			jobs <- it
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	done := 0
	for r := range results {
		done++
		rr.Items = append(rr.Items, r.res)
		if obs != nil {
			obs.OnRunDone(done, len(items), r.res, r.dur)
		}
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func execOne(ctx context.Context, p Pipeline, it domain.WorkItem, inputs []string) domain.ItemResult {
	input := inputs[it.InputIdx[0]]
	if err := ctx.Err(); err != nil {
		// 调用方已放弃整个批次：剩余条目不再启动。
		return domain.ItemResult{
			Key:       string(it.Key),
			Input:     input,
			Status:    domain.StatusSkipped,
			ErrorCode: domain.ErrCodeCancelled,
			Errors:    []string{err.Error()},
			Guidance:  "批次已取消",
		}
	}
	return domain.ItemFromState(p.RunWithKey(ctx, input, it.Key))
}

func rejectedItem(r app.Rejected) domain.ItemResult {
	msg := "无法识别的输入"
	if r.Err != nil {
		msg = r.Err.Error()
	}
	return domain.ItemResult{
		Input:     r.Input,
		Status:    domain.StatusFailed,
		ErrorCode: domain.ErrCodeInputInvalid,
		Errors:    []string{msg},
		Guidance:  msg,
	}
}

func duplicateItem(key domain.RunKey, input, first string) domain.ItemResult {
	return domain.ItemResult{
		Key:       string(key),
		Input:     input,
		Status:    domain.StatusSkipped,
		ErrorCode: domain.ErrCodeDuplicateInput,
		Errors:    []string{},
		Guidance:  fmt.Sprintf("与输入 %q 是同一个视频，已跳过", first),
	}
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		Errors:    []string{msg},
		Guidance:  msg,
	}
}
