package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/aegis/xerrors"
)

// BucketFunc 按请求选择令牌桶, 返回 nil 表示该请求不限流。
type BucketFunc func(c *gin.Context) Bucket

// GinMiddleware 创建 Gin 限流中间件, 所有经过的请求共享同一个桶。
//
// 令牌耗尽返回 429 与 JSON 错误体; 存储故障时放行, 限流器自身的问题
// 不应拒绝业务请求。
//
// ## 基本使用
//
//	bucket, _ := ratelimit.NewTokenBucket(st, "api", 100, time.Second)
//	r := gin.New()
//	r.Use(ratelimit.GinMiddleware(bucket))
func GinMiddleware(bucket Bucket) gin.HandlerFunc {
	return GinMiddlewareWithBucketFunc(func(c *gin.Context) Bucket {
		return bucket
	})
}

// GinMiddlewareWithBucketFunc 创建按请求选桶的 Gin 限流中间件,
// 用于不同路由走不同限流规则的场景:
//
//	login, _ := ratelimit.NewTokenBucket(st, "api:login", 5, time.Second)
//	search, _ := ratelimit.NewTokenBucket(st, "api:search", 100, time.Second)
//	r.Use(ratelimit.GinMiddlewareWithBucketFunc(func(c *gin.Context) ratelimit.Bucket {
//		switch c.FullPath() {
//		case "/api/login":
//			return login
//		case "/api/search":
//			return search
//		}
//		return nil // 其他路由不限流
//	}))
func GinMiddlewareWithBucketFunc(bucketFunc BucketFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		bucket := bucketFunc(c)
		if bucket == nil {
			c.Next()
			return
		}

		remaining, err := bucket.Allow(c.Request.Context())
		if err != nil {
			if xerrors.Is(err, ErrRateLimitExceeded) {
				c.Header("X-RateLimit-Remaining", "0")
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
					"error": "rate limit exceeded",
				})
				return
			}
			// 存储故障时放行
			c.Next()
			return
		}

		if left := remaining - 1; left >= 0 {
			c.Header("X-RateLimit-Remaining", strconv.FormatInt(left, 10))
		}
		c.Next()
	}
}
