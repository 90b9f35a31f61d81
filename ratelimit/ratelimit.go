// Package ratelimit 提供面向分布式系统的限流组件。
//
// 核心抽象是令牌桶 Bucket: 每个桶绑定一个限流资源 (一个 key), 按固定
// 窗口补充令牌。分布式令牌桶把计数放在共享存储 (store.Store) 中, 同一
// key 上的所有进程消费同一个桶; 单机令牌桶基于 golang.org/x/time/rate,
// 适合进程内限流。
//
// Limiter 在令牌桶之上提供任务编排: 请求先进入有界队列, 由单个消费者
// 按令牌供给节奏派发, 可选的并行度上限控制同时在途的任务数。令牌耗尽
// 时 Limiter 代替调用方等待下一个补充窗口, 调用方只需提交任务。
//
// ## 基本使用
//
//	st, _ := store.New(&store.Config{Driver: store.DriverRedis},
//		store.WithRedisConnector(conn))
//	bucket, _ := ratelimit.NewTokenBucket(st, "api:search", 100, time.Second)
//
//	// 直接使用令牌桶 (非阻塞)
//	remaining, err := bucket.Allow(ctx)
//	if errors.Is(err, ratelimit.ErrRateLimitExceeded) {
//		// 当前窗口令牌已耗尽
//	}
//
//	// 或交给 Limiter 排队执行 (阻塞直到轮到自己)
//	limiter, _ := ratelimit.NewLimiter(bucket, &ratelimit.LimiterConfig{
//		Parallelism: 10,
//	})
//	defer limiter.Close()
//
//	err = limiter.Do(ctx, func(ctx context.Context) error {
//		return callBackend(ctx)
//	})
//
// ## HTTP / gRPC 接入
//
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(bucket))
//
//	server := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(ratelimit.UnaryServerInterceptor(bucket)),
//	)
package ratelimit

import (
	"context"
	"time"
)

// Bucket 令牌桶接口。
type Bucket interface {
	// Allow 尝试取走一个令牌 (非阻塞), 返回取走前桶中的令牌数。
	// 令牌耗尽返回 ErrRateLimitExceeded, 存储故障返回存储错误。
	Allow(ctx context.Context) (remaining int64, err error)
	// Capacity 返回桶容量 (一个窗口内允许的最大请求数)。
	Capacity() int64
	// Interval 返回令牌补充窗口。
	Interval() time.Duration
	// Close 释放桶关联的资源, 幂等。
	Close() error
}

// Discard 返回一个永远放行的令牌桶, 用于在配置上关闭限流。
func Discard() Bucket {
	return discardBucket{}
}

type discardBucket struct{}

func (discardBucket) Allow(ctx context.Context) (int64, error) { return 1 << 62, nil }
func (discardBucket) Capacity() int64                          { return 1 << 62 }
func (discardBucket) Interval() time.Duration                  { return time.Second }
func (discardBucket) Close() error                             { return nil }
