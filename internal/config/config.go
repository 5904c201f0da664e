package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/infra/logx"
)

const (
	// ErrCodeNotFound 表示未给 path 且 cwd 下没有 photoarc.toml（或 --config 指定的文件不存在）。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingPath 表示未给 path 且配置文件缺少 path 字段。
	ErrCodeMissingPath = domain.ErrCodeConfigMissingPath
)

// FileName 是图库根目录（或 cwd）下的配置文件名。
const FileName = "photoarc.toml"

const (
	MaxWorkers           = 64
	DefaultMirrorWorkers = 8
)

var (
	DefaultExtensions    = []string{"jpg", "jpeg", "png"}
	DefaultRawExtensions = []string{"raf", "nef", "cr2", "cr3", "arw", "dng", "orf", "rw2"}
)

// CLIArgs 是 CLI 传入的覆盖项，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path       string
	ConfigFile string // 显式指定的配置文件（必须存在）

	Extensions    []string
	ExtensionsSet bool

	RawExtensions    []string
	RawExtensionsSet bool

	Workers    int
	WorkersSet bool

	Copy    bool
	CopySet bool

	TempPath    string
	TempPathSet bool

	Apply    bool
	ApplySet bool

	LogLevel    string
	LogLevelSet bool

	LogFormat    string
	LogFormatSet bool

	MirrorBucket    string
	MirrorBucketSet bool

	MirrorPrefix    string
	MirrorPrefixSet bool
}

// FileConfig 对应 photoarc.toml 的解析结构。未知字段视为错误。
type FileConfig struct {
	Path          string       `toml:"path"`
	Extensions    []string     `toml:"extensions"`
	RawExtensions []string     `toml:"raw_extensions"`
	Workers       int          `toml:"workers"`
	Copy          *bool        `toml:"copy"`
	TempPath      string       `toml:"temp_path"`
	Apply         *bool        `toml:"apply"`
	ExcludeDirs   []string     `toml:"exclude_dirs"`
	LogLevel      string       `toml:"log_level"`
	LogFormat     string       `toml:"log_format"`
	Mirror        MirrorConfig `toml:"mirror"`
}

type MirrorConfig struct {
	Bucket   string `toml:"bucket"`
	Prefix   string `toml:"prefix"`
	Endpoint string `toml:"endpoint"`
	Workers  int    `toml:"workers"`
}

// EffectiveConfig 是合并并规范化后的最终配置。它是不可变的值，显式传给每个阶段；
// 实现层直接消费，不再做二次默认/优先级判断。
type EffectiveConfig struct {
	Path string

	Extensions    []string // 小写、无 '.'、去重
	RawExtensions []string
	ExcludeDirs   []string

	Workers  int
	Copy     bool
	TempPath string // 为空表示目标基准即 Path
	Apply    bool

	LogLevel  string
	LogFormat string

	Mirror MirrorConfig
}

// DestBase 返回目标基准目录：TempPath 非空时替换源基准。
func (c EffectiveConfig) DestBase() string {
	if c.TempPath != "" {
		return c.TempPath
	}
	return c.Path
}

// Mode 返回 relocation 执行方式。
func (c EffectiveConfig) Mode() domain.Mode {
	if c.Copy {
		return domain.ModeCopy
	}
	return domain.ModeMove
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingPath:
		return fmt.Sprintf("%s：配置文件 %q 缺少必填字段 path", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：读取该文件（必选）
// 2) CLI 提供 path：尝试读取 <path>/photoarc.toml（可选）
// 3) 都未提供：必须读取 <cwd>/photoarc.toml（必选），且其中必须包含 path
//
// 覆盖优先级（固定）：CLI（显式指定时）> 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath  string
		required bool
	)
	switch {
	case strings.TrimSpace(cli.ConfigFile) != "":
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigFile)
		required = true
	case strings.TrimSpace(cli.Path) != "":
		cfgPath = filepath.Join(absCleanFrom(cwdAbs, cli.Path), FileName)
	default:
		cfgPath = filepath.Join(cwdAbs, FileName)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && required {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	// path：CLI > config；配置文件中的相对路径以配置文件所在目录为基准。
	var absPath string
	switch {
	case strings.TrimSpace(cli.Path) != "":
		absPath = absCleanFrom(cwdAbs, cli.Path)
	case strings.TrimSpace(fc.Path) != "":
		absPath = absCleanFrom(filepath.Dir(cfgPath), fc.Path)
	default:
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingPath, Path: cfgPath}
	}

	eff, err := merge(cwdAbs, absPath, cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	return eff, nil
}

func merge(cwdAbs, absPath string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	exts := pick(cli.ExtensionsSet, cli.Extensions, fc.Extensions, DefaultExtensions)
	raws := pick(cli.RawExtensionsSet, cli.RawExtensions, fc.RawExtensions, DefaultRawExtensions)
	exts = NormalizeExtensions(exts)
	raws = NormalizeExtensions(raws)
	if len(exts) == 0 {
		return EffectiveConfig{}, fmt.Errorf("extensions 不能为空")
	}
	for _, r := range raws {
		for _, e := range exts {
			if r == e {
				return EffectiveConfig{}, fmt.Errorf("扩展名 %q 不能同时属于 extensions 与 raw_extensions", r)
			}
		}
	}

	workers := fc.Workers
	if cli.WorkersSet {
		workers = cli.Workers
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	workers = clamp(workers, 1, MaxWorkers)

	cp := false
	if cli.CopySet {
		cp = cli.Copy
	} else if fc.Copy != nil {
		cp = *fc.Copy
	}

	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	temp := fc.TempPath
	if cli.TempPathSet {
		temp = cli.TempPath
	}
	if strings.TrimSpace(temp) != "" {
		temp = absCleanFrom(cwdAbs, temp)
		if temp == absPath {
			temp = ""
		}
	} else {
		temp = ""
	}

	level := strings.ToLower(strings.TrimSpace(pickString(cli.LogLevelSet, cli.LogLevel, fc.LogLevel, "info")))
	if _, err := logx.ParseLevel(level); err != nil {
		return EffectiveConfig{}, err
	}
	format := strings.ToLower(strings.TrimSpace(pickString(cli.LogFormatSet, cli.LogFormat, fc.LogFormat, logx.FormatConsole)))
	if format != logx.FormatConsole && format != logx.FormatJSON {
		return EffectiveConfig{}, fmt.Errorf("log_format 只能是 console 或 json，实际是 %q", format)
	}

	m := MirrorConfig{
		Bucket:   strings.TrimSpace(pickString(cli.MirrorBucketSet, cli.MirrorBucket, fc.Mirror.Bucket, "")),
		Prefix:   NormalizePrefix(pickString(cli.MirrorPrefixSet, cli.MirrorPrefix, fc.Mirror.Prefix, "")),
		Endpoint: strings.TrimSpace(fc.Mirror.Endpoint),
		Workers:  fc.Mirror.Workers,
	}
	if m.Workers == 0 {
		m.Workers = DefaultMirrorWorkers
	}
	m.Workers = clamp(m.Workers, 1, MaxWorkers)

	return EffectiveConfig{
		Path:          absPath,
		Extensions:    exts,
		RawExtensions: raws,
		ExcludeDirs:   append([]string(nil), fc.ExcludeDirs...),
		Workers:       workers,
		Copy:          cp,
		TempPath:      temp,
		Apply:         apply,
		LogLevel:      level,
		LogFormat:     format,
		Mirror:        m,
	}, nil
}

// NormalizeExtensions 小写化、去掉前导 '.'、去重（保持首次出现的顺序），并支持 "jpg,png" 形式的逗号分隔项。
func NormalizeExtensions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		for _, e := range strings.Split(item, ",") {
			e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
			if e == "" {
				continue
			}
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// NormalizePrefix 把远端前缀规范为 "a/b/c"（无首尾 '/'，无空段）。
func NormalizePrefix(p string) string {
	parts := strings.Split(strings.ReplaceAll(strings.TrimSpace(p), "\\", "/"), "/")
	kept := parts[:0]
	for _, s := range parts {
		if s = strings.TrimSpace(s); s != "" && s != "." {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "/")
}

func pick(set bool, cli, file, def []string) []string {
	switch {
	case set:
		return cli
	case len(file) > 0:
		return file
	default:
		return def
	}
}

func pickString(set bool, cli, file, def string) string {
	switch {
	case set:
		return cli
	case strings.TrimSpace(file) != "":
		return file
	default:
		return def
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 TOML 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	defer f.Close()

	dec := toml.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
