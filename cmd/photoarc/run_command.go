package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/photoarc/internal/app/run"
	"github.com/John-Robertt/photoarc/internal/config"
	"github.com/John-Robertt/photoarc/internal/infra/exifx"
)

func newRunCommand(g *globalFlags) *cobra.Command {
	var (
		workers int
		copyF   bool
		temp    string
		apply   bool
	)

	cmd := &cobra.Command{
		Use:   "run [path]",
		Short: "规划并执行整理（默认 dry-run，只输出计划）",
		Long: `扫描 path 下的图片与 RAW 文件，按拍摄时间重命名为 YYYY-MM-DD-HH-MM-SS_<key>，
并移动（或复制）到 <path>/YYYY/YYYY-MM/。RAW 文件通过共享 key 继承同一次拍摄的 JPEG 名称。

默认只输出计划；加 --apply 才会创建目录并移动/复制文件。`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := g.cliArgs(cmd, args)
			fs := cmd.Flags()
			cli.Workers, cli.WorkersSet = workers, fs.Changed("workers")
			cli.Copy, cli.CopySet = copyF, fs.Changed("copy")
			cli.TempPath, cli.TempPathSet = temp, fs.Changed("temp")
			cli.Apply, cli.ApplySet = apply, fs.Changed("apply")

			eff, err := config.LoadEffective(cwd(), cli)
			if err != nil {
				emitReport(cmd, reportForConfigError("run", cli, err))
				return &exitError{code: 1}
			}
			logger := newLogger(eff, cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			progressW, interactive := pickProgressWriter(cmd)
			var obs run.Observer
			if interactive {
				obs = newProgressUI(progressW)
			}

			rr := run.ExecuteWithObserver(ctx, eff, exifx.Reader{}, logger, obs)

			emitReport(cmd, rr)
			if interactive && eff.Apply {
				emitLocations(progressW, eff)
			}
			if rr.Failed() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&workers, "workers", "j", 0, "并发数（默认 CPU 核数，范围 1-64）")
	f.BoolVar(&copyF, "copy", false, "复制而不是移动（源文件保留）")
	f.StringVar(&temp, "temp", "", "目标基准目录（默认与 path 相同）")
	f.BoolVar(&apply, "apply", false, "执行目录创建与移动/复制；支持 --apply=false 覆盖配置中的 apply=true")
	return cmd
}
