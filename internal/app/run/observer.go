package run

import (
	"time"

	"github.com/John-Robertt/vidnote/internal/app/pipeline"
	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/domain"
)

// Observer 用于把“批次进度/阶段/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
// - 单次运行内的阶段事件（OnStageDone）由 pipeline.Orchestrator 发出；CLI 把同一个实现同时挂到两处。
type Observer interface {
	pipeline.Observer

	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在批次阶段（expand/group/exec）结束时调用。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnRunDone 在某条输入的运行到达 Terminal 时调用。
	OnRunDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
