package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/photoarc/internal/domain"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func execute(t *testing.T, args ...string) (domain.RunReport, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()

	var rr domain.RunReport
	if e := json.Unmarshal(stdout.Bytes(), &rr); e != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", e, stdout.String())
	}
	return rr, stderr.String(), err
}

func TestCLI_DryRun_StdoutOnlyRunReportJSON(t *testing.T) {
	root := t.TempDir()
	// 规范名不需要读 EXIF；RAW 通过 key 继承同一名称。
	writeFile(t, filepath.Join(root, "2019-12-31-23-59-59_DSCF0001.jpg"), "j")
	writeFile(t, filepath.Join(root, "card", "DSCF0001.raf"), "r")

	rr, stderr, err := execute(t, "run", root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !rr.DryRun || rr.Command != "run" {
		t.Fatalf("期望 dry-run 的 run 报告，实际 %+v", rr)
	}
	if rr.Summary.Files != 2 || rr.Summary.Planned != 2 {
		t.Fatalf("期望 files=2 planned=2，实际 %+v", rr.Summary)
	}
	if !strings.Contains(stderr, "完成（dry-run）") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr)
	}
	if _, err := os.Stat(filepath.Join(root, "2019")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建目录：%v", err)
	}
}

func TestCLI_Apply_MovesAndWritesReport(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "2019-12-31-23-59-59_DSCF0001.jpg"), "j")
	writeFile(t, filepath.Join(root, "DSCF0001.raf"), "r")

	rr, _, err := execute(t, "run", "--apply", "-j", "2", root)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if rr.Summary.Moved != 2 {
		t.Fatalf("期望 moved=2，实际 %+v", rr.Summary)
	}
	want := filepath.Join(root, "2019", "2019-12", "2019-12-31-23-59-59_DSCF0001.raf")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("期望 RAW 被移动到 %s：%v", want, err)
	}
	if _, err := os.Stat(filepath.Join(root, ".photoarc", "report.json")); err != nil {
		t.Fatalf("期望写入 report.json：%v", err)
	}
}

func TestCLI_ConfigError_ReportAndExitCode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "photoarc.toml"), "unknown_field = 1\n")

	rr, _, err := execute(t, "run", root)
	var ee *exitError
	if !errors.As(err, &ee) || ee.code != 1 {
		t.Fatalf("期望 exitError(1)，实际 %v", err)
	}
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("期望单条 config_invalid，实际 %+v", rr.Items)
	}
	if rr.Path != root {
		t.Fatalf("期望 path=%s，实际 %s", root, rr.Path)
	}
}

func TestCLI_ConfigNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.toml")
	rr, _, err := execute(t, "run", "--config", missing)
	if err == nil {
		t.Fatalf("期望错误")
	}
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigNotFound {
		t.Fatalf("期望 config_not_found，实际 %+v", rr.Items)
	}
}

func TestCLI_Mirror_MissingBucket(t *testing.T) {
	root := t.TempDir()
	rr, _, err := execute(t, "mirror", root)
	if err == nil {
		t.Fatalf("期望错误")
	}
	if rr.Command != "mirror" || len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("期望 mirror 的 config_invalid，实际 %+v", rr)
	}
}

func TestFailureTable(t *testing.T) {
	if got := failureTable([]domain.ItemResult{{Status: domain.StatusMoved}}); got != "" {
		t.Fatalf("无失败时期望空表，实际 %q", got)
	}
	items := make([]domain.ItemResult, 0, maxTableRows+3)
	for i := 0; i < maxTableRows+3; i++ {
		items = append(items, domain.ItemResult{
			Src: "a.nef", Status: domain.StatusFailed, ErrorCode: domain.ErrCodeAmbiguousKey,
			ErrorMsg: "key 对应多个名称", Candidates: []string{"x.jpg", "y.jpg"},
		})
	}
	got := failureTable(items)
	if !strings.Contains(got, "ambiguous_key") || !strings.Contains(got, "另有 3 条失败") {
		t.Fatalf("失败表内容不符合预期：\n%s", got)
	}
}

func TestSummaryLine(t *testing.T) {
	rr := domain.RunReport{Command: "mirror", Summary: domain.ReportSummary{Files: 3, Uploaded: 2, Present: 1}}
	if got := summaryLine(rr); !strings.Contains(got, "uploaded=2 present=1") {
		t.Fatalf("mirror 摘要不符合预期：%q", got)
	}
	rr = domain.RunReport{Command: "run", DryRun: true, Summary: domain.ReportSummary{Files: 1, Planned: 1}}
	if got := summaryLine(rr); !strings.Contains(got, "dry-run") || !strings.Contains(got, "planned=1") {
		t.Fatalf("run 摘要不符合预期：%q", got)
	}
}
