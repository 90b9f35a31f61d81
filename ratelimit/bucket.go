package ratelimit

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/store"
)

// TokenBucket 把令牌计数放在共享存储中的分布式令牌桶。
//
// 存储布局:
//   - "bucket:<key>":  当前窗口剩余令牌数, 缺失按满额处理
//   - "request:<key>": 上一次补充的时间戳 (epoch 秒)
//
// 补充按固定窗口进行: 距上次补充满一个 Interval 后, 第一个到达的请求
// 把桶重置为 maxRequests-1 (自己消费一个) 并刷新时间戳。窗口以秒为
// 粒度。读取与写回是两次独立的存储往返, 高并发下可能少量超发, 这是
// 实现的既定取舍, 需要硬上限的场景应在存储侧做原子化。
type TokenBucket struct {
	key         string
	maxRequests int64
	interval    time.Duration

	tokens     *store.State[int64]
	lastRefill *store.State[int64]

	logger clog.Logger

	allowedCounter metrics.Counter
	deniedCounter  metrics.Counter
}

var _ Bucket = (*TokenBucket)(nil)

// NewTokenBucket 创建分布式令牌桶。
//
// maxRequests 是一个窗口内允许的最大请求数, interval 是补充窗口
// (最小 1 秒, 按秒取整)。同一 store 与 key 上创建的所有桶共享计数。
func NewTokenBucket(st store.Store, key string, maxRequests int64, interval time.Duration, opts ...Option) (*TokenBucket, error) {
	if st == nil {
		return nil, ErrStoreNil
	}
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if maxRequests <= 0 || interval < time.Second {
		return nil, ErrInvalidLimit
	}

	opt := applyOptions(opts...)
	logger := opt.logger.With(clog.String("key", key))

	var stateOpts []store.StateOption
	if opt.ttl > 0 {
		stateOpts = append(stateOpts, store.WithTTL(opt.ttl))
	}

	b := &TokenBucket{
		key:         key,
		maxRequests: maxRequests,
		interval:    interval.Truncate(time.Second),
		tokens:      store.NewState[int64](st, "bucket:"+key, maxRequests, stateOpts...),
		lastRefill:  store.NewState[int64](st, "request:"+key, 0, stateOpts...),
		logger:      logger,
	}

	if opt.meter != nil {
		b.allowedCounter, _ = opt.meter.Counter(MetricAllowed, "requests allowed by rate limiter")
		b.deniedCounter, _ = opt.meter.Counter(MetricDenied, "requests denied by rate limiter")
	}

	logger.Info("分布式令牌桶已创建",
		clog.Int64("max_requests", maxRequests),
		clog.Duration("interval", b.interval))
	return b, nil
}

// Allow 尝试取走一个令牌, 返回取走前桶中的令牌数。
//
// 窗口到期时返回的是补充前的剩余量, 可能为 0 且不报错; 令牌耗尽返回
// ErrRateLimitExceeded。存储错误原样透传, 此时不消费令牌。
func (b *TokenBucket) Allow(ctx context.Context) (int64, error) {
	now := time.Now().Unix()

	last, err := b.lastRefill.Get(ctx)
	if err != nil {
		return 0, err
	}
	if last == 0 {
		// 首次访问, 以当前时刻开启第一个窗口
		last = now
		if err := b.lastRefill.Set(ctx, now); err != nil {
			return 0, err
		}
	}

	remaining, err := b.tokens.Get(ctx)
	if err != nil {
		return 0, err
	}

	if now-last >= int64(b.interval/time.Second) {
		// 窗口到期, 重置满额并消费一个
		if err := b.tokens.Set(ctx, b.maxRequests-1); err != nil {
			return 0, err
		}
		if err := b.lastRefill.Set(ctx, now); err != nil {
			return 0, err
		}
		b.record(ctx, true)
		b.logger.Debug("令牌桶已补充",
			clog.Int64("before", remaining),
			clog.Int64("now", b.maxRequests-1))
		return remaining, nil
	}

	if remaining <= 0 {
		b.record(ctx, false)
		return 0, ErrRateLimitExceeded
	}

	if err := b.tokens.Set(ctx, remaining-1); err != nil {
		return 0, err
	}
	b.record(ctx, true)
	return remaining, nil
}

// Capacity 返回桶容量。
func (b *TokenBucket) Capacity() int64 {
	return b.maxRequests
}

// Interval 返回补充窗口。
func (b *TokenBucket) Interval() time.Duration {
	return b.interval
}

// Close 释放资源。计数留在存储中, 由 TTL 或下一个使用者接管。
func (b *TokenBucket) Close() error {
	return nil
}

func (b *TokenBucket) record(ctx context.Context, allowed bool) {
	if allowed {
		if b.allowedCounter != nil {
			b.allowedCounter.Inc(ctx,
				metrics.L(LabelKey, b.key),
				metrics.L(LabelMode, modeDistributed))
		}
		return
	}
	if b.deniedCounter != nil {
		b.deniedCounter.Inc(ctx,
			metrics.L(LabelKey, b.key),
			metrics.L(LabelMode, modeDistributed))
	}
}
