// Package logx 构造进程内使用的 slog.Logger。
//
// 日志只写 stderr（或调用方指定的 Writer）；stdout 留给 RunReport。
package logx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options 描述 logger 构造参数。零值可用：info 级别、console 格式、写 stderr。
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New 按 Options 构造 logger。Format 非法时返回错误。
func New(opts Options) (*slog.Logger, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", FormatConsole:
		return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				if a.Key == slog.TimeKey && a.Value.Kind() == slog.KindTime {
					a.Value = slog.StringValue(a.Value.Time().Format("15:04:05"))
				}
				return a
			},
		})), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: lvl,
			ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
				switch a.Key {
				case slog.TimeKey:
					a.Key = "ts"
					if a.Value.Kind() == slog.KindTime {
						a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))
					}
				case slog.LevelKey:
					a.Value = slog.StringValue(strings.ToLower(a.Value.String()))
				}
				return a
			},
		})), nil
	default:
		return nil, fmt.Errorf("log format 不支持：%q（可选 console/json）", opts.Format)
	}
}

// ParseLevel 解析 debug/info/warn/error（不区分大小写，空串视为 info）。
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log level 不支持：%q（可选 debug/info/warn/error）", s)
	}
}

// Nop 返回丢弃所有输出的 logger。
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// OrNop 在 l 为 nil 时返回 Nop()。
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Nop()
	}
	return l
}

// Err 是统一的错误字段。
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.String("error", err.Error())
}
