package run

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/photoarc/internal/app/planner"
	"github.com/John-Robertt/photoarc/internal/app/relocate"
	"github.com/John-Robertt/photoarc/internal/app/table"
	"github.com/John-Robertt/photoarc/internal/canon"
	"github.com/John-Robertt/photoarc/internal/config"
	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/infra/logx"
	"github.com/John-Robertt/photoarc/internal/infra/state"
	"github.com/John-Robertt/photoarc/internal/scan"
)

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为文件级失败（单个文件失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, r canon.CaptureReader, logger *slog.Logger) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, r, logger, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 阶段之间是严格的屏障：翻译表完整构建后才开始规划，规划完整结束后才创建目录，
// 目录全部处理完才开始移动/复制。每个屏障处都会检查 ctx；取消后不再进入下一阶段。
//
// apply 时持有 <path>/.photoarc/lock，并在结束前原子写入 report.json。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, r canon.CaptureReader, logger *slog.Logger, obs Observer) (rr domain.RunReport) {
	if obs == nil {
		obs = nopObserver{}
	}
	logger = logx.OrNop(logger)
	obs.OnStart(eff)

	dest := eff.DestBase()
	rr = domain.RunReport{
		RunID:     uuid.NewString(),
		Command:   "run",
		Path:      eff.Path,
		DestBase:  dest,
		DryRun:    !eff.Apply,
		Mode:      eff.Mode(),
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 128),
	}
	logger = logger.With("run_id", rr.RunID)

	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	if eff.Apply {
		store := state.New(eff.Path, false)
		unlock, err := store.Lock()
		if err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeLockFailed, err.Error()))
			return finish()
		}
		defer func() { _ = unlock() }()
		defer func() { persist(store, &rr, logger) }()
	}

	// scan
	scanStarted := time.Now()
	files, err := scan.ScanPictures(eff.Path, scan.Options{
		Extensions:    eff.Extensions,
		RawExtensions: eff.RawExtensions,
		ExcludeDirs:   eff.ExcludeDirs,
	})
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}
	primaries := scan.Primary(files)
	obs.OnPhaseDone("scan", map[string]any{
		"files":   len(files),
		"primary": len(primaries),
		"raw":     len(files) - len(primaries),
	}, time.Since(scanStarted))
	logger.Info("scan done", "files", len(files), "primary", len(primaries), "dur", time.Since(scanStarted))

	if canceled(ctx, &rr) {
		return finish()
	}

	// extract -> translation table
	extractStarted := time.Now()
	tb, err := table.Build(ctx, primaries, r, eff.Workers)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCanceled, fmt.Sprintf("提取阶段被取消：%v", err)))
		return finish()
	}
	rr.Summary.NoTimestamp = len(tb.Misses)
	for _, m := range tb.Misses {
		logger.Debug("no capture time", "file", m.File.RelPath, logx.Err(m.Err))
	}
	for k, cands := range tb.Conflicts {
		logger.Warn("ambiguous key", "key", string(k), "candidates", cands)
	}
	obs.OnPhaseDone("extract", map[string]any{
		"keys":      tb.Len(),
		"misses":    len(tb.Misses),
		"ambiguous": len(tb.Conflicts),
		"reused":    tb.Reused,
	}, time.Since(extractStarted))
	logger.Info("extract done", "keys", tb.Len(), "misses", len(tb.Misses), "ambiguous", len(tb.Conflicts), "reused", tb.Reused, "dur", time.Since(extractStarted))

	if canceled(ctx, &rr) {
		return finish()
	}

	// plan
	planStarted := time.Now()
	plan, err := planner.Plan(ctx, files, tb, dest, eff.Mode(), eff.Workers)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCanceled, fmt.Sprintf("规划阶段被取消：%v", err)))
		return finish()
	}
	relOf := make(map[string]string, len(files))
	for i := range files {
		relOf[files[i].AbsPath] = files[i].RelPath
	}
	unchanged := 0
	for _, rl := range plan.Relocations {
		if rl.Unchanged() {
			unchanged++
		}
	}
	for _, f := range plan.Failures {
		rr.Items = append(rr.Items, failureItem(f, dest))
		if f.ErrorCode != domain.ErrCodeNoTimestamp {
			logger.Warn("plan failed", "file", f.File.RelPath, "code", f.ErrorCode, "msg", f.ErrorMsg)
		}
	}
	obs.OnPhaseDone("plan", map[string]any{
		"relocations": len(plan.Relocations) - unchanged,
		"unchanged":   unchanged,
		"failed":      len(plan.Failures),
	}, time.Since(planStarted))
	logger.Info("plan done", "relocations", len(plan.Relocations)-unchanged, "unchanged", unchanged, "failed", len(plan.Failures), "dur", time.Since(planStarted))

	if !eff.Apply {
		for _, rl := range plan.Relocations {
			it := relocationItem(rl, relOf, dest)
			it.Status = domain.StatusPlanned
			if rl.Unchanged() {
				it.Status = domain.StatusUnchanged
			}
			rr.Items = append(rr.Items, it)
		}
		return finish()
	}

	if canceled(ctx, &rr) {
		return finish()
	}

	// mkdir：必须全部结束后才开始 relocation。
	mkdirStarted := time.Now()
	dirs := relocate.Dirs(plan.Relocations)
	failedDirs := relocate.MakeDirs(ctx, dirs, eff.Workers)
	for d, e := range failedDirs {
		logger.Error("mkdir failed", "dir", d, logx.Err(e))
	}
	obs.OnPhaseDone("mkdir", map[string]any{
		"dirs":   len(dirs),
		"failed": len(failedDirs),
	}, time.Since(mkdirStarted))

	if canceled(ctx, &rr) {
		for _, rl := range plan.Relocations {
			it := relocationItem(rl, relOf, dest)
			it.Status = domain.StatusFailed
			it.ErrorCode = domain.ErrCodeCanceled
			it.ErrorMsg = "运行被取消，未执行"
			rr.Items = append(rr.Items, it)
		}
		return finish()
	}

	// exec
	total := len(plan.Relocations)
	obs.OnPhaseDone("exec", map[string]any{
		"workers": eff.Workers,
		"total":   total,
		"mode":    string(eff.Mode()),
	}, 0)

	var done atomic.Int64
	outs := relocate.Apply(ctx, plan.Relocations, eff.Mode(), eff.Workers, failedDirs, func(_ int, o relocate.Outcome) {
		it := outcomeItem(o, relOf, dest)
		if o.Err != nil {
			logger.Error("relocation failed", "src", it.Src, "dst", it.Dst, "code", o.ErrorCode, logx.Err(o.Err))
		}
		obs.OnItemDone(int(done.Add(1)), total, it, o.Dur)
	})
	for _, o := range outs {
		rr.Items = append(rr.Items, outcomeItem(o, relOf, dest))
	}
	return finish()
}

// persist 在 apply 结束前写入 report.json；写入失败作为合成失败条目追加到报告中。
func persist(store state.Store, rr *domain.RunReport, logger *slog.Logger) {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err == nil {
		err = store.WriteReport(append(b, '\n'))
	}
	if err != nil {
		logger.Error("write report failed", "path", store.ReportPath(), logx.Err(err))
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("写入 report.json 失败：%v", err)))
		rr.Finalize()
	}
}

func canceled(ctx context.Context, rr *domain.RunReport) bool {
	if err := ctx.Err(); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeCanceled, fmt.Sprintf("运行被取消：%v", err)))
		return true
	}
	return false
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Candidates: []string{},
	}
}

func failureItem(f domain.PlanFailure, dest string) domain.ItemResult {
	it := domain.ItemResult{
		Src:        f.File.RelPath,
		Dst:        relTo(dest, f.DstAbs),
		Key:        string(f.Key),
		Status:     domain.StatusFailed,
		ErrorCode:  f.ErrorCode,
		ErrorMsg:   f.ErrorMsg,
		Candidates: append([]string{}, f.Candidates...),
	}
	if f.ErrorCode == domain.ErrCodeNoTimestamp {
		it.Status = domain.StatusSkipped
	}
	return it
}

func relocationItem(rl domain.Relocation, relOf map[string]string, dest string) domain.ItemResult {
	return domain.ItemResult{
		Src:        relOf[rl.SrcAbs],
		Dst:        relTo(dest, rl.DstAbs),
		Key:        string(rl.Key),
		Candidates: []string{},
	}
}

func outcomeItem(o relocate.Outcome, relOf map[string]string, dest string) domain.ItemResult {
	it := relocationItem(o.Relocation, relOf, dest)
	it.Status = o.Status
	it.ErrorCode = o.ErrorCode
	if o.Err != nil {
		it.ErrorMsg = o.Err.Error()
	}
	return it
}

// relTo 返回 p 相对 base 的 slash 路径；p 为空或不在 base 下时原样返回。
func relTo(base, p string) string {
	if p == "" {
		return ""
	}
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
