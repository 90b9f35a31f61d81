package clog

import (
	"fmt"
	"sync/atomic"
)

// New 创建一个新的 Logger 实例
//
// config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig("aegis")
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return newLogger(config, applyOptions(opts...))
}

// defaultLogger 进程级默认 Logger，组件未注入 Logger 时回退到它
var defaultLogger atomic.Pointer[Logger]

func init() {
	logger := Discard()
	defaultLogger.Store(&logger)
}

// Default 返回进程级默认 Logger
//
// 未调用 SetDefault 时返回 Discard()，保证组件在任何环境下可用。
func Default() Logger {
	return *defaultLogger.Load()
}

// SetDefault 设置进程级默认 Logger，通常在应用启动时调用一次
func SetDefault(logger Logger) {
	if logger == nil {
		logger = Discard()
	}
	defaultLogger.Store(&logger)
}

// Module 返回挂在默认 Logger 下、带组件命名空间的子 Logger
//
// 示例：
//
//	logger := clog.Module("breaker")
//	logger.Info("state changed") // namespace=breaker
func Module(name string) Logger {
	return Default().WithNamespace(name)
}
