package scan

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/photoarc/internal/domain"
)

// Options 描述一次扫描的过滤规则。
type Options struct {
	// Extensions / RawExtensions：小写、无 '.'。
	Extensions    []string
	RawExtensions []string
	// ExcludeDirs 视为相对 root 的路径（若是绝对路径，则按绝对路径处理）。
	ExcludeDirs []string
}

// ScanPictures 扫描 root 下的图片与 RAW 文件。
//
// 规则（硬约束）：
// - 相对 root 的任何路径段以 '.' 开头即跳过（包括 <root>/.photoarc/ 状态目录）
// - 扩展名不区分大小写；不在两组扩展名中的文件忽略
// - RelPath 使用 '/' 分隔；输出按 RelPath 稳定排序
//
// 注意：扫描阶段只做 stat（DirEntry.Info），不读文件内容。
func ScanPictures(root string, opt Options) ([]domain.PictureFile, error) {
	root = filepath.Clean(root)
	excluded := buildExcluded(root, opt.ExcludeDirs)
	kinds := buildKinds(opt.Extensions, opt.RawExtensions)

	files := make([]domain.PictureFile, 0, 256)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path == root {
			return nil
		}

		if isHidden(d.Name()) || isExcluded(path, excluded) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		name := d.Name()
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
		kind, ok := kinds[ext]
		if !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		stem, _ := domain.SplitName(name)
		files = append(files, domain.PictureFile{
			AbsPath: path,
			RelPath: filepath.ToSlash(rel),
			Name:    name,
			Stem:    stem,
			Ext:     ext,
			Kind:    kind,
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// Primary 过滤出参与 key 提取的主图片（保持输入顺序）。
func Primary(files []domain.PictureFile) []domain.PictureFile {
	out := make([]domain.PictureFile, 0, len(files))
	for _, f := range files {
		if f.Kind == domain.KindPrimary {
			out = append(out, f)
		}
	}
	return out
}

func buildKinds(primary, raw []string) map[string]domain.PictureKind {
	m := make(map[string]domain.PictureKind, len(primary)+len(raw))
	for _, e := range raw {
		m[e] = domain.KindRaw
	}
	// 同一扩展名同时出现时以主图片为准（config 层已禁止这种配置）。
	for _, e := range primary {
		m[e] = domain.KindPrimary
	}
	return m
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func buildExcluded(root string, excludeDirs []string) []string {
	excluded := make([]string, 0, len(excludeDirs))
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, base+sep)
}
