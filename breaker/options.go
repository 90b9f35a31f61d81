package breaker

import (
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/dlock"
	"github.com/ceyewan/aegis/metrics"
)

// Option 熔断器可选依赖。
type Option func(*options)

type options struct {
	logger        clog.Logger
	meter         metrics.Meter
	isFailure     func(err error) bool
	onStateChange func(from, to State)
	probeLock     dlock.Locker
}

// WithLogger 注入日志器。
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("breaker")
		}
	}
}

// WithMeter 注入指标采集器。
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithIsFailure 设置错误分类器: 返回 true 表示该错误计为失败。
// 为 nil 或未设置时, 所有非 nil 错误都计为失败。
func WithIsFailure(classify func(err error) bool) Option {
	return func(o *options) {
		o.isFailure = classify
	}
}

// WithOnStateChange 注册状态变更回调。
//
// 回调在独立 goroutine 中异步执行, 不阻塞调用路径; 回调 panic 会被
// 捕获并记录日志。只会收到本进程观察到的变更, 其他进程触发的变更
// 不会在本进程回调。
func WithOnStateChange(fn func(from, to State)) Option {
	return func(o *options) {
		o.onStateChange = fn
	}
}

// WithProbeLock 用分布式锁把 HalfOpen 探测收敛到全集群单飞。
//
// 同一实例内的并发调用由本地互斥保证只放行一个探测, 无须加锁; 但开关
// 的读取-清除是两次独立的存储往返, 跨进程的极端并发下可能放行多个
// 探测。对探测代价高昂的场景, 传入 dlock.Locker 后只有抢到锁的调用
// 才消费探测开关。
func WithProbeLock(locker dlock.Locker) Option {
	return func(o *options) {
		o.probeLock = locker
	}
}

func applyOptions(opts ...Option) *options {
	opt := &options{}
	for _, o := range opts {
		o(opt)
	}
	if opt.logger == nil {
		opt.logger = clog.Module("breaker")
	}
	return opt
}
