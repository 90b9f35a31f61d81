package breaker

import "context"

// FallbackFunc 降级函数: 熔断拒绝请求时执行, 返回 nil 表示降级成功,
// 调用按成功返回; 返回非 nil 错误则替代 ErrCircuitOpen 返回给调用方。
type FallbackFunc func(ctx context.Context, key string, err error) error

// InterceptorOption 拦截器选项。
type InterceptorOption func(*interceptorConfig)

type interceptorConfig struct {
	keyFunc  KeyFunc
	fallback FallbackFunc
}

func newInterceptorConfig(opts ...InterceptorOption) *interceptorConfig {
	cfg := &interceptorConfig{
		keyFunc: ServiceLevelKey(),
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithKeyFunc 设置 Key 生成函数。
func WithKeyFunc(fn KeyFunc) InterceptorOption {
	return func(cfg *interceptorConfig) {
		if fn != nil {
			cfg.keyFunc = fn
		}
	}
}

// WithServiceLevelKey 按目标服务熔断 (默认)。
func WithServiceLevelKey() InterceptorOption {
	return WithKeyFunc(ServiceLevelKey())
}

// WithMethodLevelKey 按 RPC 方法熔断。
func WithMethodLevelKey() InterceptorOption {
	return WithKeyFunc(MethodLevelKey())
}

// WithBackendLevelKey 按后端实例熔断, 推荐用于负载均衡场景。
func WithBackendLevelKey() InterceptorOption {
	return WithKeyFunc(BackendLevelKey())
}

// WithCompositeKey 按服务 + 后端实例组合熔断。
func WithCompositeKey() InterceptorOption {
	return WithKeyFunc(CompositeKey(ServiceLevelKey(), BackendLevelKey()))
}

// WithFallback 设置熔断拒绝时的降级函数, 仅对一元调用生效。
func WithFallback(fallback FallbackFunc) InterceptorOption {
	return func(cfg *interceptorConfig) {
		cfg.fallback = fallback
	}
}
