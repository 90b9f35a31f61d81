package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
)

// standaloneBucket 基于 golang.org/x/time/rate 的进程内令牌桶。
type standaloneBucket struct {
	key         string
	maxRequests int64
	interval    time.Duration
	limiter     *rate.Limiter

	logger clog.Logger

	allowedCounter metrics.Counter
	deniedCounter  metrics.Counter
}

var _ Bucket = (*standaloneBucket)(nil)

// NewStandaloneBucket 创建单机令牌桶, 接口与分布式版本一致。
//
// 行为差异: x/time/rate 按速率连续平滑补充 (maxRequests/interval 每秒),
// 而不是到窗口边界一次性补满。对大多数限流场景这是更平稳的选择, 但
// 与分布式桶混用时注意两者的突发特征不同。
func NewStandaloneBucket(key string, maxRequests int64, interval time.Duration, opts ...Option) (Bucket, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}
	if maxRequests <= 0 || interval < time.Second {
		return nil, ErrInvalidLimit
	}

	opt := applyOptions(opts...)
	logger := opt.logger.With(clog.String("key", key))

	perSecond := float64(maxRequests) / interval.Seconds()
	b := &standaloneBucket{
		key:         key,
		maxRequests: maxRequests,
		interval:    interval.Truncate(time.Second),
		limiter:     rate.NewLimiter(rate.Limit(perSecond), int(maxRequests)),
		logger:      logger,
	}

	if opt.meter != nil {
		b.allowedCounter, _ = opt.meter.Counter(MetricAllowed, "requests allowed by rate limiter")
		b.deniedCounter, _ = opt.meter.Counter(MetricDenied, "requests denied by rate limiter")
	}

	logger.Info("单机令牌桶已创建",
		clog.Int64("max_requests", maxRequests),
		clog.Duration("interval", b.interval))
	return b, nil
}

func (b *standaloneBucket) Allow(ctx context.Context) (int64, error) {
	remaining := int64(b.limiter.Tokens())
	if !b.limiter.Allow() {
		if b.deniedCounter != nil {
			b.deniedCounter.Inc(ctx,
				metrics.L(LabelKey, b.key),
				metrics.L(LabelMode, modeStandalone))
		}
		return 0, ErrRateLimitExceeded
	}
	if b.allowedCounter != nil {
		b.allowedCounter.Inc(ctx,
			metrics.L(LabelKey, b.key),
			metrics.L(LabelMode, modeStandalone))
	}
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (b *standaloneBucket) Capacity() int64 {
	return b.maxRequests
}

func (b *standaloneBucket) Interval() time.Duration {
	return b.interval
}

func (b *standaloneBucket) Close() error {
	return nil
}
