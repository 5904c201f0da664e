package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/photoarc/internal/config"
	"github.com/John-Robertt/photoarc/internal/domain"
	"github.com/John-Robertt/photoarc/internal/mirror"
)

func newMirrorCommand(g *globalFlags) *cobra.Command {
	var (
		bucket string
		prefix string
		temp   string
	)

	cmd := &cobra.Command{
		Use:   "mirror [path]",
		Short: "把已整理的 YYYY/YYYY-MM 布局上传到 GCS（已存在的对象跳过）",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := g.cliArgs(cmd, args)
			fs := cmd.Flags()
			cli.MirrorBucket, cli.MirrorBucketSet = bucket, fs.Changed("bucket")
			cli.MirrorPrefix, cli.MirrorPrefixSet = prefix, fs.Changed("prefix")
			cli.TempPath, cli.TempPathSet = temp, fs.Changed("temp")

			eff, err := config.LoadEffective(cwd(), cli)
			if err == nil && eff.Mirror.Bucket == "" {
				err = &config.Error{Code: config.ErrCodeInvalid, Path: eff.Path, Err: fmt.Errorf("mirror.bucket 未配置（--bucket 或 [mirror] bucket）")}
			}
			if err != nil {
				emitReport(cmd, reportForConfigError("mirror", cli, err))
				return &exitError{code: 1}
			}
			logger := newLogger(eff, cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			remote, err := mirror.NewGCS(ctx, eff.Mirror.Bucket, eff.Mirror.Endpoint)
			if err != nil {
				emitReport(cmd, reportForError("mirror", eff.DestBase(), domain.ErrCodeUploadFailed, err))
				return &exitError{code: 1}
			}
			defer remote.Close()

			var progress mirror.Progress
			if w, interactive := pickProgressWriter(cmd); interactive {
				progress = newProgressUI(w).OnItemDone
			}

			rr := mirror.Run(ctx, eff, remote, logger, progress)
			emitReport(cmd, rr)
			if rr.Failed() {
				return &exitError{code: 1}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&bucket, "bucket", "", "目标 GCS bucket")
	f.StringVar(&prefix, "prefix", "", "远端对象名前缀（例如 photos/archive）")
	f.StringVar(&temp, "temp", "", "本地布局所在的基准目录（默认与 path 相同）")
	return cmd
}
