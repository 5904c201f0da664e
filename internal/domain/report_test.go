package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestRunReport_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := RunReport{
		Path:       "/abs/path",
		DryRun:     true,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Summary:    ReportSummary{NoTimestamp: 3},
		Items: []ItemResult{
			{Src: "b.jpg", Status: StatusMoved},
			{Src: "", Status: StatusFailed, ErrorCode: ErrCodeLockFailed}, // 合成项
			{Src: "a.jpg", Status: StatusUnchanged},
			{Src: "c.raf", Status: StatusFailed, ErrorCode: ErrCodeOrphanKey},
		},
	}

	r.Finalize()

	got := []string{r.Items[0].Src, r.Items[1].Src, r.Items[2].Src, r.Items[3].Src}
	if got[0] != "a.jpg" || got[1] != "b.jpg" || got[2] != "c.raf" || got[3] != "" {
		t.Fatalf("items 排序不符合契约：%v", got)
	}
	s := r.Summary
	if s.Files != 3 || s.Moved != 1 || s.Unchanged != 1 || s.Failed != 2 || s.NoTimestamp != 3 {
		t.Fatalf("summary 统计不正确：%+v", s)
	}
	if !r.Failed() {
		t.Fatalf("期望 Failed()=true")
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"started_at":"2026-02-09T02:00:00Z"`)) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
	if !bytes.Contains(b, []byte(`"candidates":[]`)) {
		t.Fatalf("nil candidates 应输出为 []：%s", string(b))
	}
}

func TestRelocation_NoOp(t *testing.T) {
	r := Relocation{SrcAbs: "/p/2021/2021-05/x.jpg", DstAbs: "/p/2021/./2021-05/x.jpg"}
	if !r.NoOp() {
		t.Fatalf("clean 后相同的路径应视为 no-op")
	}
	r.DstAbs = "/p/2021/2021-06/x.jpg"
	if r.NoOp() {
		t.Fatalf("不同路径不应是 no-op")
	}
}

func TestRelocation_Unchanged(t *testing.T) {
	r := Relocation{SrcAbs: "/p/card/IMG_abcd.jpg", DstAbs: "/p/2021/2021-05/x.jpg"}
	if r.Unchanged() {
		t.Fatalf("需要复制的 relocation 不应是 unchanged")
	}
	r.Identical = true
	if !r.Unchanged() || r.NoOp() {
		t.Fatalf("目标已是相同副本：应 unchanged 但不是 no-op")
	}
}
