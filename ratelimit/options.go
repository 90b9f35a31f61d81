package ratelimit

import (
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// Option 限流组件可选依赖。
type Option func(*options)

type options struct {
	logger clog.Logger
	meter  metrics.Meter
	ttl    time.Duration
}

// WithLogger 注入日志器。
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("ratelimit")
		}
	}
}

// WithMeter 注入指标采集器。
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTTL 设置分布式令牌桶计数在存储中的过期时间, 用于自动回收长期
// 不再访问的限流键。0 表示不过期。过期后的桶按初始满额处理。
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

func applyOptions(opts ...Option) *options {
	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Module("ratelimit")
	}
	return opt
}
