package breaker

import "github.com/ceyewan/aegis/xerrors"

var (
	// ErrCircuitOpen 熔断中, 请求被拒绝, 受保护的函数没有执行。
	ErrCircuitOpen = xerrors.New("breaker: circuit open")
	// ErrConfigNil 配置为空。
	ErrConfigNil = xerrors.New("breaker: config is nil")
	// ErrStoreNil 共享存储为空。
	ErrStoreNil = xerrors.New("breaker: store is nil")
	// ErrKeyEmpty 熔断器 Key 为空。
	ErrKeyEmpty = xerrors.New("breaker: key is empty")
	// ErrBreakerClosed 熔断器已关闭 (Close 已调用)。
	ErrBreakerClosed = xerrors.New("breaker: breaker is closed")
)
