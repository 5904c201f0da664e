package planner

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/John-Robertt/photoarc/internal/app/pool"
	"github.com/John-Robertt/photoarc/internal/app/table"
	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/infra/fsx"
)

// Outcome 是单个文件的规划结果：Relocation 或 Failure 二选一。
type Outcome struct {
	Relocation *domain.Relocation
	Failure    *domain.PlanFailure
}

// PlanFile 为单个文件计算目标路径（纯函数，不访问文件系统）。
//
// 规则：
// - 取完整文件名（含扩展名）最后一个 '_' 之后的后缀
// - 用翻译表的组合模式在后缀开头匹配 key，替换为规范名
// - 目标 = base/<前 4 字符>/<前 7 字符>/<替换后的文件名>
//
// missed 表示该文件本身是主图片且提取失败（无时间戳）；此时找不到 key 记为 no_timestamp 而非 orphan。
func PlanFile(f domain.PictureFile, t table.Table, base string, missed bool) Outcome {
	suffix := domain.Suffix(f.Name)
	key, rest, ok := t.Match(suffix)
	if !ok {
		key = domain.KeyOf(f.Stem)
		code := domain.ErrCodeOrphanKey
		msg := fmt.Sprintf("key %q 在翻译表中不存在", key)
		if missed {
			code = domain.ErrCodeNoTimestamp
			msg = "无法推导拍摄时间"
		}
		return Outcome{Failure: &domain.PlanFailure{File: f, Key: key, ErrorCode: code, ErrorMsg: msg}}
	}

	if cands, bad := t.Conflicts[key]; bad {
		return Outcome{Failure: &domain.PlanFailure{
			File:       f,
			Key:        key,
			ErrorCode:  domain.ErrCodeAmbiguousKey,
			ErrorMsg:   fmt.Sprintf("key %q 对应 %d 个不同的规范名", key, len(cands)),
			Candidates: append([]string(nil), cands...),
		}}
	}

	name := t.Names[key] + rest
	return Outcome{Relocation: &domain.Relocation{
		SrcAbs: f.AbsPath,
		DstAbs: DestPath(base, name),
		Key:    key,
	}}
}

// DestPath 返回 base/YYYY/YYYY-MM/name。name 由规范名开头，长度至少 7。
func DestPath(base, name string) string {
	return filepath.Join(base, name[:4], name[:7], name)
}

// Plan 并发规划所有文件（主图片 + RAW），然后做全局目标冲突检查。
//
// copy 模式下，目标已存在且内容与源相同的 relocation 标记为 Identical（上一次 copy 的结果），
// 重跑时记为 unchanged 而不是冲突。
//
// 必须在翻译表完全构建之后调用。ctx 取消时返回 ctx.Err()。
func Plan(ctx context.Context, files []domain.PictureFile, t table.Table, base string, mode domain.Mode, workers int) (domain.Plan, error) {
	missed := make(map[string]struct{}, len(t.Misses))
	for _, m := range t.Misses {
		missed[m.File.AbsPath] = struct{}{}
	}

	rs := pool.Map(ctx, files, workers, func(_ context.Context, f domain.PictureFile) (Outcome, error) {
		_, miss := missed[f.AbsPath]
		o := PlanFile(f, t, base, miss)
		if mode != domain.ModeCopy || o.Relocation == nil || o.Relocation.NoOp() {
			return o, nil
		}
		same, err := fsx.SameContent(o.Relocation.SrcAbs, o.Relocation.DstAbs)
		if err != nil {
			return Outcome{}, fmt.Errorf("比较已有目标失败：%w", err)
		}
		o.Relocation.Identical = same
		return o, nil
	})
	if err := ctx.Err(); err != nil {
		return domain.Plan{}, err
	}

	p := domain.Plan{
		DestBase:    base,
		Relocations: make([]domain.Relocation, 0, len(files)),
		Failures:    make([]domain.PlanFailure, 0, 8),
	}
	fileOf := make(map[string]domain.PictureFile, len(files))
	for i := range rs {
		if !rs[i].OK() {
			// 比较已有目标时的 I/O 错误，或 worker panic。
			p.Failures = append(p.Failures, domain.PlanFailure{
				File:      files[i],
				Key:       domain.KeyOf(files[i].Stem),
				ErrorCode: domain.ErrCodeIOFailed,
				ErrorMsg:  rs[i].Err.Error(),
			})
			continue
		}
		o := rs[i].Value
		if o.Failure != nil {
			p.Failures = append(p.Failures, *o.Failure)
			continue
		}
		fileOf[o.Relocation.SrcAbs] = files[i]
		p.Relocations = append(p.Relocations, *o.Relocation)
	}

	p.Relocations, p.Failures = dropConflicts(p.Relocations, p.Failures, fileOf)
	sortFailures(p.Failures)
	return p, nil
}

// dropConflicts 把“多个不同源落到同一目标”的 relocation 移入 failures。
// 已在目标位置（no-op）或目标已是其相同副本（Identical）的源保留，其余源失败。
func dropConflicts(rs []domain.Relocation, fails []domain.PlanFailure, fileOf map[string]domain.PictureFile) ([]domain.Relocation, []domain.PlanFailure) {
	byDst := make(map[string][]int, len(rs))
	for i, r := range rs {
		d := filepath.Clean(r.DstAbs)
		byDst[d] = append(byDst[d], i)
	}

	drop := make(map[int]struct{})
	for _, idx := range byDst {
		if len(idx) < 2 {
			continue
		}
		for _, i := range idx {
			if rs[i].Unchanged() {
				continue
			}
			drop[i] = struct{}{}
		}
	}
	if len(drop) == 0 {
		return rs, fails
	}

	kept := rs[:0:0]
	for i, r := range rs {
		if _, ok := drop[i]; !ok {
			kept = append(kept, r)
			continue
		}
		fails = append(fails, domain.PlanFailure{
			File:      fileOf[r.SrcAbs],
			Key:       r.Key,
			DstAbs:    r.DstAbs,
			ErrorCode: domain.ErrCodeTargetConflict,
			ErrorMsg:  fmt.Sprintf("多个源文件的目标相同：%s", r.DstAbs),
		})
	}
	return kept, fails
}

func sortFailures(fs []domain.PlanFailure) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].File.RelPath < fs[j].File.RelPath })
}
