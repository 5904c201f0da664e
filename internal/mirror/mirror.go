// Package mirror 把已整理好的 YYYY/YYYY-MM/<name> 布局上传到远端对象存储。
//
// 只上传符合布局的文件；远端已存在的对象跳过（可重复运行）。
// 上传完整性校验与认证生命周期不在此包范围内。
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/photoarc/internal/app/pool"
	"github.com/John-Robertt/photoarc/internal/config"
	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/infra/logx"
	"github.com/John-Robertt/photoarc/internal/scan"
)

// Remote 是远端对象存储的最小能力集。实现必须并发安全。
type Remote interface {
	// List 返回 prefix 下所有对象名（完整名）及大小。
	List(ctx context.Context, prefix string) (map[string]int64, error)
	// Upload 把本地文件上传为 name；name 已存在时必须失败而不是覆盖。
	Upload(ctx context.Context, localPath, name string) (int64, error)
	// Location 返回用于展示的远端位置（例如 gs://bucket/prefix）。
	Location(prefix string) string
}

// Progress 在每个文件处理完成时被调用（可能来自多个 goroutine）。
type Progress func(idx, total int, res domain.ItemResult, dur time.Duration)

// Organized 判断相对路径是否已处于 YYYY/YYYY-MM/<YYYY-MM...> 布局中。
func Organized(rel string) bool {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return false
	}
	year, month, name := parts[0], parts[1], parts[2]
	if len(year) != 4 || !digits(year) {
		return false
	}
	if len(month) != 7 || !strings.HasPrefix(month, year+"-") || !digits(month[5:]) {
		return false
	}
	return strings.HasPrefix(name, month)
}

// RemoteName 把本地相对路径映射为远端对象名：<prefix>/<rel>。
func RemoteName(prefix, rel string) string {
	if prefix == "" {
		return rel
	}
	return path.Join(prefix, rel)
}

type job struct {
	file domain.PictureFile
	name string
}

// Run 扫描目标基准目录，并把已整理的文件上传到 remote。
//
// - 不符合布局的文件：skipped + not_organized
// - 远端已存在且大小一致：present；大小不一致：failed + remote_mismatch（不覆盖）
// - 上传失败：failed + upload_failed（不影响其他文件）
// - ctx 取消后未开始的文件：failed + canceled
func Run(ctx context.Context, eff config.EffectiveConfig, remote Remote, logger *slog.Logger, progress Progress) domain.RunReport {
	logger = logx.OrNop(logger)
	base := eff.DestBase()
	prefix := eff.Mirror.Prefix

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Command:   "mirror",
		Path:      base,
		DestBase:  remote.Location(prefix),
		DryRun:    false,
		StartedAt: time.Now().UTC(),
		Items:     make([]domain.ItemResult, 0, 128),
	}
	logger = logger.With("run_id", rr.RunID, "remote", rr.DestBase)
	finish := func() domain.RunReport {
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	files, err := scan.ScanPictures(base, scan.Options{
		Extensions:    eff.Extensions,
		RawExtensions: eff.RawExtensions,
		ExcludeDirs:   eff.ExcludeDirs,
	})
	if err != nil {
		rr.Items = append(rr.Items, failed("", "", domain.ErrCodeIOFailed, fmt.Sprintf("扫描失败：%v", err)))
		return finish()
	}

	existing, err := remote.List(ctx, prefix)
	if err != nil {
		code := domain.ErrCodeUploadFailed
		if ctx.Err() != nil {
			code = domain.ErrCodeCanceled
		}
		rr.Items = append(rr.Items, failed("", "", code, fmt.Sprintf("列出远端对象失败：%v", err)))
		return finish()
	}
	logger.Info("remote listed", "objects", len(existing), "local", len(files))

	jobs := make([]job, 0, len(files))
	for _, f := range files {
		name := RemoteName(prefix, f.RelPath)
		if !Organized(f.RelPath) {
			it := failed(f.RelPath, "", domain.ErrCodeNotOrganized, "文件不在 YYYY/YYYY-MM/ 布局中；请先执行 run --apply")
			it.Status = domain.StatusSkipped
			rr.Items = append(rr.Items, it)
			continue
		}
		if size, ok := existing[name]; ok {
			if size != f.Size {
				// 远端对象不完整或已被改写：不覆盖，交给用户处理。
				rr.Items = append(rr.Items, failed(f.RelPath, name, domain.ErrCodeRemoteMismatch,
					fmt.Sprintf("远端对象大小与本地不一致：远端 %d 字节，本地 %d 字节", size, f.Size)))
				logger.Warn("remote size mismatch", "src", f.RelPath, "dst", name, "remote", size, "local", f.Size)
				continue
			}
			rr.Items = append(rr.Items, domain.ItemResult{Src: f.RelPath, Dst: name, Status: domain.StatusPresent, Candidates: []string{}})
			continue
		}
		jobs = append(jobs, job{file: f, name: name})
	}

	workers := eff.Mirror.Workers
	if workers < 1 {
		workers = 1
	}
	var done atomic.Int64
	res := pool.Map(ctx, jobs, workers, func(ctx context.Context, j job) (domain.ItemResult, error) {
		started := time.Now()
		it := domain.ItemResult{Src: j.file.RelPath, Dst: j.name, Status: domain.StatusUploaded, Candidates: []string{}}
		if _, err := remote.Upload(ctx, j.file.AbsPath, j.name); err != nil {
			it = failed(j.file.RelPath, j.name, domain.ErrCodeUploadFailed, err.Error())
			if ctx.Err() != nil {
				it.ErrorCode = domain.ErrCodeCanceled
			}
			logger.Error("upload failed", "src", j.file.RelPath, "dst", j.name, logx.Err(err))
		}
		if progress != nil {
			progress(int(done.Add(1)), len(jobs), it, time.Since(started))
		}
		return it, nil
	})
	for i, r := range res {
		if r.OK() {
			rr.Items = append(rr.Items, r.Value)
			continue
		}
		code := domain.ErrCodeUploadFailed
		if errors.Is(r.Err, context.Canceled) || errors.Is(r.Err, context.DeadlineExceeded) {
			code = domain.ErrCodeCanceled
		}
		rr.Items = append(rr.Items, failed(jobs[i].file.RelPath, jobs[i].name, code, r.Err.Error()))
	}
	return finish()
}

func failed(src, dst, code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Src:        src,
		Dst:        dst,
		Status:     domain.StatusFailed,
		ErrorCode:  code,
		ErrorMsg:   msg,
		Candidates: []string{},
	}
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}
