// Package breaker 提供面向分布式系统的熔断器组件。
//
// 与单机熔断器不同, 熔断状态保存在共享存储 (store.Store) 中: 同一逻辑资源
// (同一个 Key) 上的熔断器, 无论分布在多少个进程中, 看到的都是同一份状态,
// 任何一个进程触发熔断后其余进程立即停止放行请求。
//
// 状态机共三态:
//   - Closed:   正常放行, 每次调用结果喂给 TrippingStrategy, 策略判定后熔断;
//   - Open:     直接拒绝 (ErrCircuitOpen), 后台按指数退避调度恢复探测;
//   - HalfOpen: 共享的探测开关只放行一个探测请求, 成功则闭合, 失败则重新熔断
//     并加大退避间隔。
//
// ## 基本使用
//
//	st, _ := store.New(&store.Config{Driver: store.DriverRedis},
//		store.WithRedisConnector(conn))
//	cb, err := breaker.New(st, &breaker.Config{Key: "payment-api"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer cb.Close()
//
//	result, err := breaker.Do(ctx, cb, func() (*Resp, error) {
//		return client.Call(ctx, req)
//	})
//	if errors.Is(err, breaker.ErrCircuitOpen) {
//		// 熔断中, 走降级逻辑
//	}
//
// ## 错误分类
//
// 默认所有非 nil 错误都计为失败。业务错误 (如参数校验失败) 不应触发熔断时,
// 用 WithIsFailure 定制, 或通过 cb.WithIsFailure 派生一个共享状态的新句柄:
//
//	cb = cb.WithIsFailure(func(err error) bool {
//		return !errors.Is(err, ErrInvalidArgument)
//	})
//
// gRPC 客户端场景可直接使用 GRPCFailureClassifier, 只把 Unavailable 等
// 基础设施类错误码计为失败。
package breaker

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/store"
)

// State 表示熔断器的运行状态。
type State int

const (
	// StateClosed 闭合, 请求正常放行。
	StateClosed State = iota
	// StateHalfOpen 半开, 只放行一个探测请求。
	StateHalfOpen
	// StateOpen 熔断, 请求直接拒绝。
	StateOpen
)

// String 返回状态的字符串表示, 同时也是状态在共享存储中的持久化形式。
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// parseState 把持久化的状态字符串还原为 State, 无法识别时按 Closed 处理。
func parseState(s string) (State, bool) {
	switch s {
	case "closed", "":
		return StateClosed, true
	case "half_open":
		return StateHalfOpen, true
	case "open":
		return StateOpen, true
	default:
		return StateClosed, false
	}
}

// DefaultMaxFailures 是未指定策略时默认的连续失败熔断阈值。
const DefaultMaxFailures = 5

// Config 熔断器配置。
type Config struct {
	// Key 熔断器标识, 同时是共享存储中的键前缀。
	// 同一 Key 的所有实例 (跨进程) 共享同一份熔断状态。
	Key string `json:"key" yaml:"key"`
	// Strategy 熔断判定策略, 为 nil 时使用 NewFailureCount(DefaultMaxFailures)。
	Strategy TrippingStrategy `json:"-" yaml:"-"`
	// ResetSchedule 熔断后的恢复探测退避节奏, 为 nil 时使用默认值。
	ResetSchedule *ResetSchedule `json:"reset_schedule" yaml:"reset_schedule"`
}

func (c *Config) validate() error {
	if c.Key == "" {
		return ErrKeyEmpty
	}
	return nil
}

// Breaker 熔断器接口。
type Breaker interface {
	// Execute 在熔断器保护下执行 fn。
	//
	// 状态为 Open 时 fn 不会执行, 直接返回 ErrCircuitOpen; 状态为 HalfOpen
	// 时只有抢到探测开关的那一次调用会执行 fn, 其余调用返回 ErrCircuitOpen。
	// fn 的返回值与错误原样透传, 共享存储不可用时返回存储错误。
	Execute(ctx context.Context, fn func() (any, error)) (any, error)
	// State 返回熔断器当前状态 (从共享存储读取)。
	State(ctx context.Context) (State, error)
	// WithIsFailure 派生一个使用指定错误分类器的新句柄。
	//
	// 派生句柄与原句柄共享全部熔断状态 (策略计数、退避进度、存储状态),
	// 只有"哪些错误计为失败"的判定不同。关闭任一句柄即关闭整个熔断器。
	WithIsFailure(classify func(err error) bool) Breaker
	// Close 停止后台恢复任务并释放资源, 幂等。
	Close() error
}

// New 创建一个分布式熔断器。
//
// 状态持久化在 st 中, 初始状态为 Closed; 若存储中已有该 Key 的状态
// (如进程重启前遗留的 Open), 则延续已有状态而不会覆盖。
func New(st store.Store, cfg *Config, opts ...Option) (Breaker, error) {
	if st == nil {
		return nil, ErrStoreNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	strategy := cfg.Strategy
	if strategy == nil {
		strategy = NewFailureCount(DefaultMaxFailures)
	}

	schedule := ResetSchedule{}
	if cfg.ResetSchedule != nil {
		schedule = *cfg.ResetSchedule
	}
	schedule.setDefaults()

	opt := applyOptions(opts...)
	logger := opt.logger.With(clog.String("key", cfg.Key))

	b := &distributedBreaker{
		key:           cfg.Key,
		state:         store.NewState[string](st, cfg.Key+":state", StateClosed.String()),
		gate:          store.NewState[bool](st, cfg.Key+":halfOpenSwitch", false),
		strategy:      strategy,
		backoff:       newBackoffDriver(&schedule),
		isFailure:     opt.isFailure,
		onStateChange: opt.onStateChange,
		probeLock:     opt.probeLock,
		logger:        logger,
		meter:         opt.meter,
		resetCh:       make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
	}
	b.wg.Add(1)
	go b.resetLoop()

	logger.Info("分布式熔断器已创建",
		clog.Duration("reset_initial_delay", schedule.InitialDelay),
		clog.Duration("reset_max_delay", schedule.MaxDelay))
	return b, nil
}

// NewWithMaxFailures 创建一个按连续失败次数熔断的分布式熔断器, 是
// New + NewFailureCount 的快捷方式。
func NewWithMaxFailures(st store.Store, key string, maxFailures int, opts ...Option) (Breaker, error) {
	return New(st, &Config{
		Key:      key,
		Strategy: NewFailureCount(maxFailures),
	}, opts...)
}

// Do 是 Execute 的泛型包装, 免去调用方的类型断言。
func Do[T any](ctx context.Context, b Breaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.Execute(ctx, func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	v, _ := result.(T)
	return v, nil
}

// probeLockTTL 探测互斥锁的持有时长, 覆盖一次探测调用的合理耗时。
const probeLockTTL = 10 * time.Second
