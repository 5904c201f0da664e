package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusPlanned   = "planned"
	StatusUnchanged = "unchanged"
	StatusMoved     = "moved"
	StatusCopied    = "copied"
	StatusUploaded  = "uploaded"
	StatusPresent   = "present"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

const (
	ErrCodeNoTimestamp       = "no_timestamp"
	ErrCodeOrphanKey         = "orphan_key"
	ErrCodeAmbiguousKey      = "ambiguous_key"
	ErrCodeTargetConflict    = "target_conflict"
	ErrCodeMkdirFailed       = "mkdir_failed"
	ErrCodeMoveFailed        = "move_failed"
	ErrCodeCrossDevice       = "cross_device"
	ErrCodeCopyFailed        = "copy_failed"
	ErrCodeUploadFailed      = "upload_failed"
	ErrCodeNotOrganized      = "not_organized"
	ErrCodeRemoteMismatch    = "remote_mismatch"
	ErrCodeCanceled          = "canceled"
	ErrCodeIOFailed          = "io_failed"
	ErrCodeLockFailed        = "lock_failed"
	ErrCodeConfigNotFound    = "config_not_found"
	ErrCodeConfigInvalid     = "config_invalid"
	ErrCodeConfigMissingPath = "config_missing_path"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID    string `json:"run_id"`
	Command  string `json:"command"`
	Path     string `json:"path"`
	DestBase string `json:"dest_base"`
	DryRun   bool   `json:"dry_run"`
	Mode     Mode   `json:"mode"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Files       int `json:"files"`
	Planned     int `json:"planned"`
	Unchanged   int `json:"unchanged"`
	Moved       int `json:"moved"`
	Copied      int `json:"copied"`
	Uploaded    int `json:"uploaded"`
	Present     int `json:"present"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	NoTimestamp int `json:"no_timestamp"`
}

// ItemResult 是单个文件的结果。Src 相对 Path，Dst 相对 DestBase（或远端对象名）。
type ItemResult struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
	Key string `json:"key"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Candidates []string `json:"candidates"`
}

// Failed 报告中是否存在失败条目。
func (r RunReport) Failed() bool { return r.Summary.Failed > 0 }

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 src 字典序；src=="" 的合成条目排在最后
// 3) summary 由 items 计算得出（NoTimestamp 由调用方填写，这里保留）
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a := r.Items[i].Src
		b := r.Items[j].Src
		if a == "" || b == "" {
			return a != "" && b == ""
		}
		return a < b
	})

	s := ReportSummary{NoTimestamp: r.Summary.NoTimestamp}
	for _, it := range r.Items {
		if it.Src != "" {
			s.Files++
		}
		switch it.Status {
		case StatusPlanned:
			s.Planned++
		case StatusUnchanged:
			s.Unchanged++
		case StatusMoved:
			s.Moved++
		case StatusCopied:
			s.Copied++
		case StatusUploaded:
			s.Uploaded++
		case StatusPresent:
			s.Present++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 集中约束输出稳定性：nil 切片一律输出为 []。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	if r.Items == nil {
		r.Items = []ItemResult{}
	}
	for i := range r.Items {
		if r.Items[i].Candidates == nil {
			r.Items[i].Candidates = []string{}
		}
	}
	return json.Marshal(Alias(r))
}
