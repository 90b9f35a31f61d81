package breaker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// StandaloneConfig 单机熔断器配置, 基于滑动计数窗口而非共享存储。
type StandaloneConfig struct {
	// Key 熔断器标识, 仅用于日志与指标。
	Key string `json:"key" yaml:"key"`
	// MaxRequests 半开状态下允许通过的请求数, 默认 1。
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests"`
	// Interval 闭合状态下计数窗口的清零周期, 0 表示不清零。
	Interval time.Duration `json:"interval" yaml:"interval"`
	// Timeout 熔断后进入半开的等待时间, 默认 60s。
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// FailureRatio 触发熔断的失败率阈值, 默认 0.6。
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio"`
	// MinimumRequests 判定失败率前的最小请求数, 默认 10。
	MinimumRequests uint32 `json:"minimum_requests" yaml:"minimum_requests"`
}

func (c *StandaloneConfig) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio <= 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}

func (c *StandaloneConfig) validate() error {
	if c.Key == "" {
		return ErrKeyEmpty
	}
	if c.FailureRatio > 1 {
		return xerrors.New("breaker: failure ratio must be in (0, 1]")
	}
	return nil
}

// standaloneBreaker 进程内熔断器, 包装 gobreaker, 状态不跨进程共享。
type standaloneBreaker struct {
	key       string
	cb        *gobreaker.CircuitBreaker[any]
	isFailure func(err error) bool
	logger    clog.Logger
	meter     metrics.Meter
	closed    atomic.Bool
}

var _ Breaker = (*standaloneBreaker)(nil)

// NewStandalone 创建一个单机熔断器。
//
// 适合不需要跨进程协同的场景, 接口与分布式版本完全一致, 便于在两者
// 之间切换。熔断判定基于失败率: 窗口内请求数达到 MinimumRequests 且
// 失败率达到 FailureRatio 时熔断。
func NewStandalone(cfg *StandaloneConfig, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	opt := applyOptions(opts...)
	logger := opt.logger.With(clog.String("key", cfg.Key))

	b := &standaloneBreaker{
		key:       cfg.Key,
		isFailure: opt.isFailure,
		logger:    logger,
		meter:     opt.meter,
	}

	onStateChange := opt.onStateChange
	settings := gobreaker.Settings{
		Name:        cfg.Key,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("熔断器状态变更",
				clog.String("from", from.String()),
				clog.String("to", to.String()))
			if onStateChange != nil {
				go func() {
					defer func() {
						if r := recover(); r != nil {
							logger.Error("状态变更回调 panic", clog.Any("panic", r))
						}
					}()
					onStateChange(fromGobreakerState(from), fromGobreakerState(to))
				}()
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker[any](settings)

	logger.Info("单机熔断器已创建",
		clog.Duration("timeout", cfg.Timeout),
		clog.Float64("failure_ratio", cfg.FailureRatio))
	return b, nil
}

func (b *standaloneBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	return b.execute(ctx, fn, b.isFailure)
}

func (b *standaloneBreaker) execute(ctx context.Context, fn func() (any, error), classify func(error) bool) (any, error) {
	if b.closed.Load() {
		return nil, ErrBreakerClosed
	}

	start := time.Now()
	// 分类器排除的错误在进入 gobreaker 计数前摘除, 执行后再还给调用方。
	// 判定结果记下来给指标复用, 同一次调用的计数与指标不会因为有状态的
	// 分类器给出两个答案。
	var excluded error
	var failed bool
	result, err := b.cb.Execute(func() (any, error) {
		r, e := fn()
		if e != nil {
			failed = b.classifyFailure(classify, e)
			if !failed {
				excluded = e
				return r, nil
			}
		}
		return r, e
	})
	elapsed := time.Since(start)

	if xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests) {
		b.record(ctx, resultRejected, elapsed)
		return nil, ErrCircuitOpen
	}
	if err == nil && excluded != nil {
		err = excluded
	}
	if failed {
		b.record(ctx, resultFailure, elapsed)
	} else {
		b.record(ctx, resultSuccess, elapsed)
	}
	return result, err
}

func (b *standaloneBreaker) State(ctx context.Context) (State, error) {
	return fromGobreakerState(b.cb.State()), nil
}

func (b *standaloneBreaker) WithIsFailure(classify func(err error) bool) Breaker {
	return &derivedStandalone{parent: b, classify: classify}
}

func (b *standaloneBreaker) Close() error {
	b.closed.Store(true)
	return nil
}

func (b *standaloneBreaker) classifyFailure(classify func(error) bool, err error) (failure bool) {
	if classify == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("错误分类器 panic, 该调用按失败计", clog.Any("panic", r))
			failure = true
		}
	}()
	return classify(err)
}

func (b *standaloneBreaker) record(ctx context.Context, result string, elapsed time.Duration) {
	if b.meter == nil {
		return
	}
	if counter, err := b.meter.Counter(MetricRequestsTotal, "circuit breaker requests"); err == nil && counter != nil {
		counter.Inc(ctx,
			metrics.L(LabelKey, b.key),
			metrics.L(LabelResult, result))
	}
	if hist, err := b.meter.Histogram(MetricRequestDuration, "protected call duration"); err == nil && hist != nil {
		hist.Record(ctx, elapsed.Seconds(), metrics.L(LabelKey, b.key))
	}
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

type derivedStandalone struct {
	parent   *standaloneBreaker
	classify func(err error) bool
}

var _ Breaker = (*derivedStandalone)(nil)

func (d *derivedStandalone) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	return d.parent.execute(ctx, fn, d.classify)
}

func (d *derivedStandalone) State(ctx context.Context) (State, error) {
	return d.parent.State(ctx)
}

func (d *derivedStandalone) WithIsFailure(classify func(err error) bool) Breaker {
	return &derivedStandalone{parent: d.parent, classify: classify}
}

func (d *derivedStandalone) Close() error {
	return d.parent.Close()
}
