package config

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/John-Robertt/photoarc/internal/domain"
)

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写文件失败：%v", err)
	}
}

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_ConfigMissingPath(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("workers = 2\n"))

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingPath {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeMissingPath, err, Code(err))
	}
}

func TestLoadEffective_Defaults(t *testing.T) {
	root := t.TempDir()

	eff, err := LoadEffective(t.TempDir(), CLIArgs{Path: root})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Path != root || eff.DestBase() != root {
		t.Fatalf("path/dest 不对：%+v", eff)
	}
	if !reflect.DeepEqual(eff.Extensions, DefaultExtensions) || !reflect.DeepEqual(eff.RawExtensions, DefaultRawExtensions) {
		t.Fatalf("默认扩展名不对：%v %v", eff.Extensions, eff.RawExtensions)
	}
	want := runtime.NumCPU()
	if want > MaxWorkers {
		want = MaxWorkers
	}
	if eff.Workers != want {
		t.Fatalf("期望 workers=%d，实际 %d", want, eff.Workers)
	}
	if eff.Apply || eff.Mode() != domain.ModeMove || eff.LogLevel != "info" || eff.LogFormat != "console" {
		t.Fatalf("默认值不对：%+v", eff)
	}
	if eff.Mirror.Workers != DefaultMirrorWorkers {
		t.Fatalf("期望 mirror.workers=%d，实际 %d", DefaultMirrorWorkers, eff.Mirror.Workers)
	}
}

func TestLoadEffective_ApplyCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("path = \"pics\"\napply = true\n"))

	eff, err := LoadEffective(cwd, CLIArgs{
		Apply:    false,
		ApplySet: true, // --apply=false
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Apply != false {
		t.Fatalf("期望 apply=false，实际=%v", eff.Apply)
	}

	wantPath := filepath.Join(cwd, "pics")
	if eff.Path != wantPath {
		t.Fatalf("期望 path=%q，实际=%q", wantPath, eff.Path)
	}
}

func TestLoadEffective_FileValuesAndNormalization(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), []byte(`
extensions = [".JPG", "jpeg", "jpg"]
raw_extensions = ["RAF"]
workers = 500
copy = true
temp_path = "/staging"
exclude_dirs = ["trash"]
log_format = "JSON"

[mirror]
bucket = "photos"
prefix = "/archive//2020s/"
`))

	eff, err := LoadEffective(t.TempDir(), CLIArgs{Path: root})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !reflect.DeepEqual(eff.Extensions, []string{"jpg", "jpeg"}) {
		t.Fatalf("extensions 规范化不对：%v", eff.Extensions)
	}
	if !reflect.DeepEqual(eff.RawExtensions, []string{"raf"}) {
		t.Fatalf("raw_extensions 规范化不对：%v", eff.RawExtensions)
	}
	if eff.Workers != MaxWorkers {
		t.Fatalf("workers 应截断为 %d，实际 %d", MaxWorkers, eff.Workers)
	}
	if eff.Mode() != domain.ModeCopy {
		t.Fatalf("期望 copy 模式")
	}
	if eff.DestBase() != filepath.Clean("/staging") {
		t.Fatalf("期望 dest=/staging，实际 %s", eff.DestBase())
	}
	if eff.LogFormat != "json" {
		t.Fatalf("期望 log_format=json，实际 %q", eff.LogFormat)
	}
	if eff.Mirror.Bucket != "photos" || eff.Mirror.Prefix != "archive/2020s" {
		t.Fatalf("mirror 配置不对：%+v", eff.Mirror)
	}
}

func TestLoadEffective_CLIOverridesFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), []byte("extensions = [\"png\"]\nworkers = 3\ncopy = true\n"))

	eff, err := LoadEffective(t.TempDir(), CLIArgs{
		Path:          root,
		Extensions:    []string{"jpg,heic"},
		ExtensionsSet: true,
		Workers:       5,
		WorkersSet:    true,
		Copy:          false,
		CopySet:       true,
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !reflect.DeepEqual(eff.Extensions, []string{"jpg", "heic"}) || eff.Workers != 5 || eff.Copy {
		t.Fatalf("CLI 覆盖不对：%+v", eff)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown field":   "wrokers = 2\n",
		"bad toml":        "workers = \n",
		"overlap ext":     "extensions = [\"jpg\"]\nraw_extensions = [\"JPG\"]\n",
		"bad log level":   "log_level = \"loud\"\n",
		"bad log format":  "log_format = \"xml\"\n",
		"empty extension": "extensions = [\",\"]\n",
	}
	for name, body := range cases {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, FileName), []byte(body))
		_, err := LoadEffective(root, CLIArgs{Path: root})
		if Code(err) != ErrCodeInvalid {
			t.Fatalf("%s：期望 %q，实际 err=%v", name, ErrCodeInvalid, err)
		}
	}
}

func TestLoadEffective_ExplicitConfigFile(t *testing.T) {
	cwd := t.TempDir()
	cfg := filepath.Join(cwd, "conf", "mine.toml")

	if _, err := LoadEffective(cwd, CLIArgs{ConfigFile: cfg}); Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 %v", ErrCodeNotFound, err)
	}

	writeFile(t, cfg, []byte("path = \"../pics\"\n"))
	eff, err := LoadEffective(cwd, CLIArgs{ConfigFile: cfg})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	// 配置文件中的相对 path 以配置文件所在目录为基准。
	if eff.Path != filepath.Join(cwd, "pics") {
		t.Fatalf("期望 path=%q，实际 %q", filepath.Join(cwd, "pics"), eff.Path)
	}
}

func TestNormalizePrefix(t *testing.T) {
	cases := map[string]string{
		"":              "",
		"/":             "",
		"a":             "a",
		"/a/b/":         "a/b",
		"a//b/./c":      "a/b/c",
		`photos\2021\`: "photos/2021",
	}
	for in, want := range cases {
		if got := NormalizePrefix(in); got != want {
			t.Fatalf("%q：期望 %q，实际 %q", in, want, got)
		}
	}
}
