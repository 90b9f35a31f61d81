package clog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// clogHandler 包装 slog 内置 Handler，补充动态级别和 Flush 能力
type clogHandler struct {
	inner slog.Handler
	level *slog.LevelVar
	out   io.Writer
}

// newHandler 根据配置构建 Handler（内部使用）
func newHandler(config *Config, options *options) (slog.Handler, error) {
	writer, err := resolveWriter(config, options)
	if err != nil {
		return nil, err
	}

	level, err := ParseLevel(config.Level)
	if err != nil {
		return nil, err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level.toSlog())

	handlerOpts := &slog.HandlerOptions{
		Level:       levelVar,
		AddSource:   config.AddSource,
		ReplaceAttr: newReplaceAttr(config),
	}

	var inner slog.Handler
	if strings.ToLower(config.Format) == "json" {
		inner = slog.NewJSONHandler(writer, handlerOpts)
	} else {
		inner = slog.NewTextHandler(writer, handlerOpts)
	}

	return &clogHandler{
		inner: inner,
		level: levelVar,
		out:   writer,
	}, nil
}

// resolveWriter 解析输出目标：测试缓冲区 > stdout/stderr > 文件路径
func resolveWriter(config *Config, options *options) (io.Writer, error) {
	if options != nil && options.buffer != nil {
		return options.buffer, nil
	}

	switch config.Output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", config.Output, err)
		}
		return file, nil
	}
}

// newReplaceAttr 构建属性改写函数：时间格式化、FATAL 标签、源码路径裁剪
func newReplaceAttr(config *Config) func(groups []string, a slog.Attr) slog.Attr {
	return func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) > 0 {
			return a
		}
		switch a.Key {
		case slog.TimeKey:
			if a.Value.Kind() == slog.KindTime {
				a.Value = slog.StringValue(a.Value.Time().Format(TimeFormat))
			}
		case slog.LevelKey:
			if lv, ok := a.Value.Any().(slog.Level); ok && lv >= slog.LevelError+4 {
				a.Value = slog.StringValue("FATAL")
			}
		case slog.SourceKey:
			if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
				src.File = trimSourcePath(src.File, config.SourceRoot)
			}
		}
		return a
	}
}

// trimSourcePath 裁剪文件路径，只保留 sourceRoot 之后的部分
func trimSourcePath(fileName, sourceRoot string) string {
	if sourceRoot == "" {
		return fileName
	}
	marker := "/" + sourceRoot + "/"
	if idx := strings.LastIndex(fileName, marker); idx >= 0 {
		return fileName[idx+1:]
	}
	return fileName
}

func (h *clogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *clogHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *clogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &clogHandler{
		inner: h.inner.WithAttrs(attrs),
		level: h.level,
		out:   h.out,
	}
}

func (h *clogHandler) WithGroup(name string) slog.Handler {
	return &clogHandler{
		inner: h.inner.WithGroup(name),
		level: h.level,
		out:   h.out,
	}
}

// SetLevel 动态调整级别，loggerImpl.SetLevel 通过类型断言调用
func (h *clogHandler) SetLevel(level Level) error {
	h.level.Set(level.toSlog())
	return nil
}

// Flush 同步文件输出，非文件输出为空操作
func (h *clogHandler) Flush() {
	if f, ok := h.out.(*os.File); ok {
		_ = f.Sync()
	}
}
