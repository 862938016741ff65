package run

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/John-Robertt/vidnote/internal/app/pipeline"
	"github.com/John-Robertt/vidnote/internal/config"
	"github.com/John-Robertt/vidnote/internal/domain"
	"github.com/John-Robertt/vidnote/internal/platform"
)

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	stages     []pipeline.Stage
	runs       []string
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnStageDone(runID string, stage pipeline.Stage, s domain.RunState, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stages = append(o.stages, stage)
}

func (o *recordObserver) OnRunDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs = append(o.runs, res.Key)
}

func TestExecuteWithObserver_EmitsPhaseStageAndRunEvents(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in", "lecture.mp4")
	writeVideo(t, in)

	obs := &recordObserver{}
	o := newLocalOrchestrator(root)
	o.Observer = obs

	_ = ExecuteWithObserver(context.Background(), config.EffectiveConfig{WorkDir: root, Concurrency: 1},
		[]string{in}, platform.DefaultTable(), o, obs)

	if obs.startCalls != 1 {
		t.Fatalf("期望 OnStart 调用 1 次，实际 %d", obs.startCalls)
	}
	wantPhases := []string{"expand", "group", "exec"}
	if !reflect.DeepEqual(obs.phases, wantPhases) {
		t.Fatalf("阶段事件不符合预期：got=%v want=%v", obs.phases, wantPhases)
	}
	wantStages := []pipeline.Stage{pipeline.StageClassify, pipeline.StageProcess, pipeline.StageAnalyze, pipeline.StageGenerate}
	if !reflect.DeepEqual(obs.stages, wantStages) {
		t.Fatalf("流水线阶段事件不符合预期：got=%v want=%v", obs.stages, wantStages)
	}
	if len(obs.runs) != 1 || obs.runs[0] != "lecture" {
		t.Fatalf("条目事件不符合预期：runs=%v", obs.runs)
	}
}

func TestExecuteWithObserver_NilObserver_SameShapeAsExecute(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in", "lecture.mp4")
	writeVideo(t, in)

	cfg := config.EffectiveConfig{WorkDir: root, Concurrency: 1}

	a := Execute(context.Background(), cfg, []string{in}, platform.DefaultTable(), newLocalOrchestrator(root))
	b := ExecuteWithObserver(context.Background(), cfg, []string{in}, platform.DefaultTable(), newLocalOrchestrator(root), nil)

	// 时间、run_id 与文档名（同一分钟内会带 _2 后缀）允许不同；其余字段必须一致。
	for _, rr := range []*domain.RunReport{&a, &b} {
		rr.StartedAt, rr.FinishedAt = time.Time{}, time.Time{}
		for i := range rr.Items {
			rr.Items[i].RunID = ""
			rr.Items[i].DocumentPath = ""
		}
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("nil observer 不应改变结果：\nExecute=%+v\nWithObs=%+v", a, b)
	}
}
