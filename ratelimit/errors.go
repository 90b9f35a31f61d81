package ratelimit

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrRateLimitExceeded 当前窗口令牌已耗尽。
	ErrRateLimitExceeded = xerrors.New("ratelimit: rate limit exceeded")
	// ErrStoreNil 共享存储为空。
	ErrStoreNil = xerrors.New("ratelimit: store is nil")
	// ErrBucketNil 令牌桶为空。
	ErrBucketNil = xerrors.New("ratelimit: bucket is nil")
	// ErrKeyEmpty 限流键为空。
	ErrKeyEmpty = xerrors.New("ratelimit: key is empty")
	// ErrInvalidLimit 限流参数无效 (容量非正或窗口小于 1 秒)。
	ErrInvalidLimit = xerrors.New("ratelimit: invalid limit")
	// ErrLimiterClosed 限流器已关闭。
	ErrLimiterClosed = xerrors.New("ratelimit: limiter is closed")
)
