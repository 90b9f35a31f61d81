// Package clog 为 aegis 提供基于 slog 的结构化日志组件。
//
// 特性：
//   - 抽象接口，不暴露底层实现（slog）
//   - 支持层级命名空间，便于区分 breaker/ratelimit/dlock 等组件来源
//   - 支持从 Context 中提取 trace_id 等字段
//   - 运行时可动态调整日志级别
//
// ## 基本使用
//
//	logger, _ := clog.New(&clog.Config{
//	    Level:  "info",
//	    Format: "console",
//	    Output: "stdout",
//	})
//	logger.Info("circuit opened", clog.String("key", "payment"))
//
// 组件内部统一通过选项注入：
//
//	brk, _ := breaker.New(st, cfg, breaker.WithLogger(logger))
//
// 不注入时组件回退到 clog.Default()。
package clog

import "context"

// Logger 日志接口，提供结构化日志记录功能
//
// 支持五个日志级别：Debug、Info、Warn、Error、Fatal，
// 每个级别都有带 Context 和不带 Context 的版本。
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	// 带 Context 的版本会按配置的提取规则追加 Context 字段
	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	FatalContext(ctx context.Context, msg string, fields ...Field)

	// With 创建一个带有预设字段的子 Logger，预设字段出现在其所有日志中
	With(fields ...Field) Logger

	// WithNamespace 创建一个扩展命名空间的子 Logger
	//
	// 新的部分追加在现有命名空间之后，以 "." 连接：
	//
	//	logger := clog.Default().WithNamespace("breaker")
	//	probeLogger := logger.WithNamespace("probe")
	//	// namespace = "breaker.probe"
	WithNamespace(parts ...string) Logger

	// SetLevel 运行时调整日志级别，无需重建 Logger
	SetLevel(level Level) error

	// Flush 强制同步缓冲区，进程退出前调用
	Flush()
}
