package domain

import "path/filepath"

// Mode 决定 relocation 的执行方式。
type Mode string

const (
	ModeMove Mode = "move"
	ModeCopy Mode = "copy"
)

// Relocation 规划一次文件重定位（只描述 src/dst）。
type Relocation struct {
	SrcAbs string
	DstAbs string
	Key    Key
	// Identical 表示 copy 模式下目标已存在且内容与源相同（上一次 copy 的结果）。
	Identical bool
}

// NoOp 表示目标与源相同：不做任何文件系统变更。
func (r Relocation) NoOp() bool {
	return filepath.Clean(r.SrcAbs) == filepath.Clean(r.DstAbs)
}

// Unchanged 表示执行阶段无需任何操作：no-op，或目标已是源的相同副本。
func (r Relocation) Unchanged() bool {
	return r.NoOp() || r.Identical
}

// PlanFailure 是无法规划的单个文件（orphan / ambiguous / conflict）。
type PlanFailure struct {
	File       PictureFile
	Key        Key
	DstAbs     string
	ErrorCode  string
	ErrorMsg   string
	Candidates []string
}

// Plan 是一次运行的完整重定位计划（RelocationPlan）。
//
// Relocations 与 Failures 都按 PictureFile.RelPath 稳定排序。
type Plan struct {
	DestBase    string
	Relocations []Relocation
	Failures    []PlanFailure
}
