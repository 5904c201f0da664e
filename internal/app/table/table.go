package table

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/John-Robertt/photoarc/internal/app/pool"
	"github.com/John-Robertt/photoarc/internal/canon"
	"github.com/John-Robertt/photoarc/internal/domain"
)

// Miss 是未能推导出时间戳的主图片（不进入翻译表）。
type Miss struct {
	File domain.PictureFile
	Err  error
}

// Table 是一次运行的翻译表：Key -> CanonicalFilename。
//
// 不变量：
// - Names 与 Conflicts 的 key 互斥
// - Conflicts 的候选名已排序（与 worker 调度无关，结果确定）
type Table struct {
	Names     map[domain.Key]string
	Conflicts map[domain.Key][]string
	Misses    []Miss
	// Reused 是文件名本身已是规范名、未读取元数据的主图片数量。
	Reused int

	// pattern 是所有 key（含冲突 key）的转义交替式，锚定在后缀开头，
	// key 之后必须是 '.' 或结尾，避免 "ab" 误命中 "abcd.jpg"。
	pattern *regexp.Regexp
}

// Build 并发地对主图片运行 key 提取，然后汇总成翻译表。
//
// - miss（无时间戳）被吸收进 Misses，不是错误
// - 同一 key 得到多个不同规范名：记入 Conflicts（由规划阶段判为 ambiguous）
// - ctx 取消：返回 ctx.Err()，不返回部分结果
func Build(ctx context.Context, primaries []domain.PictureFile, r canon.CaptureReader, workers int) (Table, error) {
	rs := pool.Map(ctx, primaries, workers, func(_ context.Context, f domain.PictureFile) (domain.Extraction, error) {
		return canon.Extract(f, r)
	})
	if err := ctx.Err(); err != nil {
		return Table{}, err
	}

	t := Table{
		Names:     make(map[domain.Key]string, len(primaries)),
		Conflicts: map[domain.Key][]string{},
		Misses:    make([]Miss, 0, 16),
	}

	seen := make(map[domain.Key]map[string]struct{}, len(primaries))
	for i := range rs {
		if !rs[i].OK() {
			if errors.Is(rs[i].Err, context.Canceled) || errors.Is(rs[i].Err, context.DeadlineExceeded) {
				return Table{}, rs[i].Err
			}
			t.Misses = append(t.Misses, Miss{File: primaries[i], Err: rs[i].Err})
			continue
		}
		ex := rs[i].Value
		if ex.Reused {
			t.Reused++
		}
		if seen[ex.Key] == nil {
			seen[ex.Key] = map[string]struct{}{}
		}
		seen[ex.Key][ex.Name] = struct{}{}
	}

	for k, names := range seen {
		if len(names) == 1 {
			for n := range names {
				t.Names[k] = n
			}
			continue
		}
		cands := make([]string, 0, len(names))
		for n := range names {
			cands = append(cands, n)
		}
		sort.Strings(cands)
		t.Conflicts[k] = cands
	}

	t.pattern = compilePattern(seen)
	return t, nil
}

// Len 返回已解析（无冲突）的 key 数量。
func (t Table) Len() int { return len(t.Names) }

// Match 在文件名后缀（最后一个 '_' 之后，含扩展名）开头匹配 key。
// 返回命中的 key 与 key 之后的剩余部分（通常是扩展名）。
func (t Table) Match(suffix string) (domain.Key, string, bool) {
	if t.pattern == nil {
		return "", "", false
	}
	m := t.pattern.FindStringSubmatchIndex(suffix)
	if m == nil {
		return "", "", false
	}
	return domain.Key(suffix[m[2]:m[3]]), suffix[m[3]:], true
}

func compilePattern[V any](keys map[domain.Key]V) *regexp.Regexp {
	if len(keys) == 0 {
		return nil
	}
	ks := make([]string, 0, len(keys))
	for k := range keys {
		ks = append(ks, string(k))
	}
	// 长的在前：交替式按顺序尝试，保证确定性。
	sort.Slice(ks, func(i, j int) bool {
		if len(ks[i]) != len(ks[j]) {
			return len(ks[i]) > len(ks[j])
		}
		return ks[i] < ks[j]
	})
	for i := range ks {
		ks[i] = regexp.QuoteMeta(ks[i])
	}
	return regexp.MustCompile(`^(` + strings.Join(ks, "|") + `)(?:\.|$)`)
}
