package breaker

import (
	"sync"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/store"
)

// GroupConfig 熔断器组配置。
type GroupConfig struct {
	// KeyPrefix 组内所有熔断器在共享存储中的公共前缀, 可为空。
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
	// MaxFailures 每个熔断器的连续失败阈值, 默认 DefaultMaxFailures。
	// 设置了 NewStrategy 时忽略。
	MaxFailures int `json:"max_failures" yaml:"max_failures"`
	// NewStrategy 策略工厂, 为组内每个熔断器创建独立的策略实例。
	NewStrategy func() TrippingStrategy `json:"-" yaml:"-"`
	// ResetSchedule 组内熔断器共用的恢复退避节奏模板。
	ResetSchedule *ResetSchedule `json:"reset_schedule" yaml:"reset_schedule"`
}

func (c *GroupConfig) setDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = DefaultMaxFailures
	}
	if c.NewStrategy == nil {
		maxFailures := c.MaxFailures
		c.NewStrategy = func() TrippingStrategy {
			return NewFailureCount(maxFailures)
		}
	}
}

// Group 按 key 惰性管理一组共享同一存储与配置模板的熔断器。
//
// 典型用法是为下游的每个服务或方法维护独立熔断器, 搭配 KeyFunc 在
// gRPC 拦截器中按调用目标自动分片。
type Group struct {
	store    store.Store
	cfg      *GroupConfig
	opts     []Option
	breakers sync.Map // key -> Breaker
	logger   clog.Logger
	meter    metrics.Meter
	closed   bool
	mu       sync.Mutex
}

// NewGroup 创建熔断器组, 组内熔断器在首次 Get 时按需创建。
func NewGroup(st store.Store, cfg *GroupConfig, opts ...Option) (*Group, error) {
	if st == nil {
		return nil, ErrStoreNil
	}
	if cfg == nil {
		cfg = &GroupConfig{}
	}
	cfg.setDefaults()

	opt := applyOptions(opts...)
	return &Group{
		store:  st,
		cfg:    cfg,
		opts:   opts,
		logger: opt.logger,
		meter:  opt.meter,
	}, nil
}

// Get 返回 key 对应的熔断器, 不存在时创建。并发调用同一 key 返回
// 同一实例。
func (g *Group) Get(key string) (Breaker, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if b, ok := g.breakers.Load(key); ok {
		return b.(Breaker), nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, ErrBreakerClosed
	}
	// 双重检查, 锁内只创建一次, 避免多余的后台任务
	if b, ok := g.breakers.Load(key); ok {
		return b.(Breaker), nil
	}

	b, err := New(g.store, &Config{
		Key:           g.cfg.KeyPrefix + key,
		Strategy:      g.cfg.NewStrategy(),
		ResetSchedule: g.cfg.ResetSchedule,
	}, g.opts...)
	if err != nil {
		return nil, err
	}
	g.breakers.Store(key, b)
	return b, nil
}

// Range 遍历组内已创建的熔断器, fn 返回 false 时停止。
func (g *Group) Range(fn func(key string, b Breaker) bool) {
	g.breakers.Range(func(k, v any) bool {
		return fn(k.(string), v.(Breaker))
	})
}

// Close 关闭组内全部熔断器, 幂等。
func (g *Group) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true

	g.breakers.Range(func(k, v any) bool {
		if err := v.(Breaker).Close(); err != nil {
			g.logger.Warn("关闭熔断器失败",
				clog.String("key", k.(string)), clog.Error(err))
		}
		return true
	})
	return nil
}
