package relocate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/John-Robertt/photoarc/internal/app/pool"
	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/infra/fsx"
)

// Outcome 是单个 relocation 的执行结果。
type Outcome struct {
	Relocation domain.Relocation
	Status     string // unchanged/moved/copied/failed
	ErrorCode  string
	Err        error
	Dur        time.Duration
}

// Dirs 返回所有需要的目标父目录（去重、排序）。unchanged 的 relocation 不需要目录。
func Dirs(rs []domain.Relocation) []string {
	set := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if r.Unchanged() {
			continue
		}
		set[filepath.Dir(filepath.Clean(r.DstAbs))] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for d := range set {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// MakeDirs 并发创建目录，返回失败的目录及其错误（全部成功时为空 map）。
//
// 必须在任何 relocation 开始之前完整结束。ctx 取消时未开始的目录也记为失败。
func MakeDirs(ctx context.Context, dirs []string, workers int) map[string]error {
	errs := pool.Each(ctx, dirs, workers, func(_ context.Context, d string) error {
		return fsx.EnsureDir(d)
	})
	failed := map[string]error{}
	for i, err := range errs {
		if err != nil {
			failed[dirs[i]] = err
		}
	}
	return failed
}

// Apply 并发执行所有 relocation（move 或 copy），结果与 rs 下标一一对应。
//
// - 源 == 目标，或 copy 的目标已是源的相同副本：unchanged，不触碰文件系统
// - 目标父目录创建失败：mkdir_failed，不尝试
// - 目标已存在且内容不同：target_conflict，永不覆盖
// - move 跨盘：cross_device（不会隐式 copy+delete）
// - ctx 取消后未开始的条目：canceled
//
// onDone（可为 nil）在每个条目结束时被调用，可能来自多个 goroutine。
func Apply(ctx context.Context, rs []domain.Relocation, mode domain.Mode, workers int, failedDirs map[string]error, onDone func(i int, o Outcome)) []Outcome {
	idx := make([]int, len(rs))
	for i := range idx {
		idx[i] = i
	}

	res := pool.Map(ctx, idx, workers, func(_ context.Context, i int) (Outcome, error) {
		started := time.Now()
		o := one(rs[i], mode, failedDirs)
		o.Dur = time.Since(started)
		if onDone != nil {
			onDone(i, o)
		}
		return o, nil
	})

	out := make([]Outcome, len(rs))
	for i, r := range res {
		if r.OK() {
			out[i] = r.Value
			continue
		}
		o := Outcome{Relocation: rs[i], Status: domain.StatusFailed, Err: r.Err, ErrorCode: domain.ErrCodeIOFailed}
		if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
			o.ErrorCode = domain.ErrCodeCanceled
		}
		out[i] = o
		if onDone != nil {
			onDone(i, o)
		}
	}
	return out
}

func one(r domain.Relocation, mode domain.Mode, failedDirs map[string]error) Outcome {
	o := Outcome{Relocation: r}
	if r.Unchanged() {
		o.Status = domain.StatusUnchanged
		return o
	}

	dir := filepath.Dir(filepath.Clean(r.DstAbs))
	if err, bad := failedDirs[dir]; bad {
		o.Status = domain.StatusFailed
		o.ErrorCode = domain.ErrCodeMkdirFailed
		o.Err = fmt.Errorf("目标目录不可用：%w", err)
		return o
	}

	var err error
	if mode == domain.ModeCopy {
		err = fsx.CopyNoOverwrite(r.SrcAbs, r.DstAbs)
	} else {
		err = fsx.MoveNoOverwrite(r.SrcAbs, r.DstAbs)
	}
	if err == nil {
		o.Status = domain.StatusMoved
		if mode == domain.ModeCopy {
			o.Status = domain.StatusCopied
		}
		return o
	}

	// 规划之后目标才出现（例如另一个进程刚复制过）：内容相同仍视为 unchanged。
	if mode == domain.ModeCopy && fsx.IsTargetExists(err) {
		if same, _ := fsx.SameContent(r.SrcAbs, r.DstAbs); same {
			o.Status = domain.StatusUnchanged
			return o
		}
	}

	o.Status = domain.StatusFailed
	o.Err = err
	switch {
	case fsx.IsTargetExists(err), fsx.IsPathTypeConflict(err):
		o.ErrorCode = domain.ErrCodeTargetConflict
	case fsx.IsCrossDevice(err):
		o.ErrorCode = domain.ErrCodeCrossDevice
	case mode == domain.ModeCopy:
		o.ErrorCode = domain.ErrCodeCopyFailed
	default:
		o.ErrorCode = domain.ErrCodeMoveFailed
	}
	return o
}
