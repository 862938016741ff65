package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		WorkDir:    "/abs/work",
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Items: []ItemResult{
			{Key: "BV1xx", Status: StatusSkipped},
			{Key: "", Status: StatusFailed}, // 无法派生 key 的输入
			{Key: "7301", Status: StatusSucceeded},
			{Key: "", Status: StatusFailed},
		},
	}

	r.Finalize()

	if r.Items[0].Key != "7301" || r.Items[1].Key != "BV1xx" || r.Items[2].Key != "" || r.Items[3].Key != "" {
		t.Fatalf("items 排序不符合契约：%v", []string{r.Items[0].Key, r.Items[1].Key, r.Items[2].Key, r.Items[3].Key})
	}
	if r.Summary.Succeeded != 1 || r.Summary.Skipped != 1 || r.Summary.Failed != 2 {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestItemFromState_SuccessDefinedByDocumentPath(t *testing.T) {
	s := NewRunState("https://www.youtube.com/watch?v=x").
		WithError(KindAnalysis, "boom")
	if it := ItemFromState(s); it.Status != StatusFailed || it.Guidance == "" {
		t.Fatalf("无文档路径应为 failed 且带 guidance：%+v", it)
	}

	s = s.WithDocument("/out/a.md")
	if it := ItemFromState(s); it.Status != StatusSucceeded {
		t.Fatalf("有文档路径应为 succeeded：%+v", it)
	}
}
