package table

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/John-Robertt/photoarc/internal/canon"
	"github.com/John-Robertt/photoarc/internal/domain"
)

func pic(dir, name string) domain.PictureFile {
	stem, _ := domain.SplitName(name)
	return domain.PictureFile{
		AbsPath: filepath.Join(dir, name),
		RelPath: name,
		Name:    name,
		Stem:    stem,
		Ext:     "jpg",
		Kind:    domain.KindPrimary,
	}
}

func stamps(m map[string]string) canon.CaptureReader {
	return canon.CaptureReaderFunc(func(path string) (string, error) {
		if v, ok := m[filepath.Base(path)]; ok {
			return v, nil
		}
		return "", errors.New("no exif")
	})
}

// fromNames 直接用现成映射构造翻译表（不读文件）。
func fromNames(names map[domain.Key]string) Table {
	t := Table{Names: names, Conflicts: map[domain.Key][]string{}}
	t.pattern = compilePattern(names)
	return t
}

func TestBuild_NamesAndMisses(t *testing.T) {
	dir := t.TempDir()
	files := []domain.PictureFile{
		pic(dir, "IMG_abcd.jpg"),
		pic(dir, "IMG_efgh.jpg"),
		pic(dir, "plain.jpg"),
	}
	r := stamps(map[string]string{"IMG_abcd.jpg": "2021:05:02 10:15:00"})

	tb, err := Build(context.Background(), files, r, 2)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := tb.Names["abcd"]; got != "2021-05-02-10-15-00_abcd" {
		t.Fatalf("期望 2021-05-02-10-15-00_abcd，实际 %q", got)
	}
	if tb.Len() != 1 {
		t.Fatalf("期望 1 个 key，实际 %d", tb.Len())
	}
	if len(tb.Misses) != 2 {
		t.Fatalf("期望 2 个 miss，实际 %d", len(tb.Misses))
	}
	if !canon.IsMiss(tb.Misses[0].Err) || tb.Misses[0].File.Name != "IMG_efgh.jpg" {
		t.Fatalf("miss 顺序或类型不对：%+v", tb.Misses[0])
	}
}

func TestBuild_ConflictingNames(t *testing.T) {
	dir := t.TempDir()
	files := []domain.PictureFile{
		pic(dir, "a_0001.jpg"),
		pic(dir, "b_0001.jpg"),
		pic(dir, "c_0001.jpg"),
	}
	r := stamps(map[string]string{
		"a_0001.jpg": "2022:01:01 00:00:00",
		"b_0001.jpg": "2020:01:01 00:00:00",
		"c_0001.jpg": "2022:01:01 00:00:00",
	})

	tb, err := Build(context.Background(), files, r, 3)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok := tb.Names["0001"]; ok {
		t.Fatalf("冲突 key 不应出现在 Names 中")
	}
	want := []string{"2020-01-01-00-00-00_0001", "2022-01-01-00-00-00_0001"}
	if !reflect.DeepEqual(tb.Conflicts["0001"], want) {
		t.Fatalf("期望 %v，实际 %v", want, tb.Conflicts["0001"])
	}
	if k, _, ok := tb.Match("0001.raf"); !ok || k != "0001" {
		t.Fatalf("冲突 key 仍应可被匹配（用于区分 ambiguous 与 orphan）")
	}
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, []domain.PictureFile{pic(t.TempDir(), "x_1.jpg")}, stamps(nil), 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
}

func TestMatch_AnchoredAndLongestFirst(t *testing.T) {
	tb := fromNames(map[domain.Key]string{
		"ab":   "2021-01-01-00-00-00_ab",
		"abcd": "2021-01-01-00-00-00_abcd",
		"a.b":  "2021-01-01-00-00-00_a.b",
	})

	cases := []struct {
		suffix string
		key    domain.Key
		rest   string
		ok     bool
	}{
		{"abcd.raf", "abcd", ".raf", true},
		{"ab.raf", "ab", ".raf", true},
		{"ab", "ab", "", true},
		{"abc.raf", "", "", false},
		{"xab.raf", "", "", false},
		{"a.b.raf", "a.b", ".raf", true},
		{"axb.raf", "", "", false},
	}
	for _, c := range cases {
		k, rest, ok := tb.Match(c.suffix)
		if ok != c.ok || k != c.key || rest != c.rest {
			t.Fatalf("%q：期望 (%q,%q,%v)，实际 (%q,%q,%v)", c.suffix, c.key, c.rest, c.ok, k, rest, ok)
		}
	}
}

func TestMatch_EmptyTable(t *testing.T) {
	var tb Table
	if _, _, ok := tb.Match("abcd.jpg"); ok {
		t.Fatalf("空表不应命中")
	}
}

func TestBuild_CountsReusedCanonicalNames(t *testing.T) {
	dir := t.TempDir()
	files := []domain.PictureFile{
		pic(dir, "2019-12-31-23-59-59_DSCF0001.jpg"),
		pic(dir, "IMG_abcd.jpg"),
	}
	r := stamps(map[string]string{"IMG_abcd.jpg": "2021:05:02 10:15:00"})

	tb, err := Build(context.Background(), files, r, 2)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if tb.Len() != 2 || tb.Reused != 1 {
		t.Fatalf("期望 2 个 key、1 个复用规范名，实际 keys=%d reused=%d", tb.Len(), tb.Reused)
	}
}
