package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/John-Robertt/photoarc/internal/config"
	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/infra/state"
)

// maxTableRows 限制 TTY 下失败表的行数；完整列表在 report.json / JSON 输出里。
const maxTableRows = 50

// emitReport 输出最终结果。
//
// - stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON，摘要走 stderr
// - stdout 是 TTY：stdout 输出摘要与失败表
func emitReport(cmd *cobra.Command, rr domain.RunReport) {
	out := cmd.OutOrStdout()
	errW := cmd.ErrOrStderr()

	if !isTerminal(out) {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rr)
		fmt.Fprintln(errW, summaryLine(rr))
		return
	}

	fmt.Fprintln(out, summaryLine(rr))
	if t := failureTable(rr.Items); t != "" {
		fmt.Fprintln(out, t)
	}
}

func summaryLine(rr domain.RunReport) string {
	s := rr.Summary
	mode := "dry-run"
	if !rr.DryRun {
		mode = "apply"
	}
	if rr.Command == "mirror" {
		return fmt.Sprintf("完成（mirror）：files=%d uploaded=%d present=%d skipped=%d failed=%d",
			s.Files, s.Uploaded, s.Present, s.Skipped, s.Failed)
	}
	return fmt.Sprintf("完成（%s）：files=%d planned=%d moved=%d copied=%d unchanged=%d skipped=%d failed=%d no_timestamp=%d",
		mode, s.Files, s.Planned, s.Moved, s.Copied, s.Unchanged, s.Skipped, s.Failed, s.NoTimestamp)
}

// failureTable 用表格渲染失败条目；没有失败时返回空串。
func failureTable(items []domain.ItemResult) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"file", "error_code", "message"})

	rows := 0
	hidden := 0
	for _, it := range items {
		if it.Status != domain.StatusFailed {
			continue
		}
		if rows >= maxTableRows {
			hidden++
			continue
		}
		src := it.Src
		if src == "" {
			src = "<run>"
		}
		msg := it.ErrorMsg
		if len(it.Candidates) > 0 {
			msg = fmt.Sprintf("%s %v", msg, it.Candidates)
		}
		tw.AppendRow(table.Row{src, it.ErrorCode, truncate(msg, 100)})
		rows++
	}
	if rows == 0 {
		return ""
	}
	if hidden > 0 {
		tw.AppendFooter(table.Row{fmt.Sprintf("… 另有 %d 条失败", hidden), "", ""})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

func reportForConfigError(command string, cli config.CLIArgs, err error) domain.RunReport {
	path := cli.Path
	if path == "" {
		path = cwd()
	}
	if abs, e := filepath.Abs(path); e == nil {
		path = abs
	}
	rr := reportForError(command, path, config.Code(err), err)
	rr.DryRun = !(cli.ApplySet && cli.Apply)
	return rr
}

func reportForError(command, path, code string, err error) domain.RunReport {
	now := time.Now().UTC()
	rr := domain.RunReport{
		Command:    command,
		Path:       path,
		DryRun:     true,
		StartedAt:  now,
		FinishedAt: now,
		Items: []domain.ItemResult{{
			Status:     domain.StatusFailed,
			ErrorCode:  code,
			ErrorMsg:   err.Error(),
			Candidates: []string{},
		}},
	}
	rr.Finalize()
	return rr
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func pickProgressWriter(cmd *cobra.Command) (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if errW := cmd.ErrOrStderr(); isTerminal(errW) {
		return errW, true
	}
	// 仅重定向 stderr 时 stdout 仍是 TTY：此时 stdout 也不输出 JSON，可以退化输出到 stdout。
	if out := cmd.OutOrStdout(); isTerminal(out) {
		return out, true
	}
	return nil, false
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	if w == nil {
		return
	}
	fmt.Fprintf(w, "report: %s\n", state.New(eff.Path, true).ReportPath())
	fmt.Fprintf(w, "dest: %s\n", eff.DestBase())
}
