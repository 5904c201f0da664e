package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/photoarc/internal/config"
	"github.com/John-Robertt/photoarc/internal/infra/logx"
)

// globalFlags 是所有子命令共享的参数（绑定到 root 的 persistent flags）。
type globalFlags struct {
	configFile string
	logLevel   string
	logFormat  string
	exts       []string
	raws       []string
}

func newRootCommand() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:           "photoarc",
		Short:         "按拍摄时间把照片整理为 YYYY/YYYY-MM 目录，并可镜像到云存储",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&g.configFile, "config", "c", "", "配置文件路径（默认 <path>/photoarc.toml）")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别：debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "", "日志格式：console|json")
	pf.StringSliceVar(&g.exts, "ext", nil, "主图片扩展名（逗号分隔，例如 jpg,png）")
	pf.StringSliceVar(&g.raws, "raw", nil, "RAW 扩展名（逗号分隔，例如 raf,nef）")

	rootCmd.AddCommand(newRunCommand(g))
	rootCmd.AddCommand(newMirrorCommand(g))
	return rootCmd
}

// cliArgs 把已解析的 flag 转为 config.CLIArgs；只有显式指定的 flag 才参与覆盖。
func (g *globalFlags) cliArgs(cmd *cobra.Command, args []string) config.CLIArgs {
	fs := cmd.Flags()
	cli := config.CLIArgs{
		ConfigFile:       g.configFile,
		Extensions:       g.exts,
		ExtensionsSet:    fs.Changed("ext"),
		RawExtensions:    g.raws,
		RawExtensionsSet: fs.Changed("raw"),
		LogLevel:         g.logLevel,
		LogLevelSet:      fs.Changed("log-level"),
		LogFormat:        g.logFormat,
		LogFormatSet:     fs.Changed("log-format"),
	}
	if len(args) > 0 {
		cli.Path = args[0]
	}
	return cli
}

func newLogger(eff config.EffectiveConfig, cmd *cobra.Command) *slog.Logger {
	l, err := logx.New(logx.Options{Level: eff.LogLevel, Format: eff.LogFormat, Writer: cmd.ErrOrStderr()})
	if err != nil {
		// 配置层已校验 level/format；这里只可能是极端情况。
		return logx.Nop()
	}
	return l
}

func cwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
