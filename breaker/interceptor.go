package breaker

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// GRPCFailureClassifier 返回 gRPC 客户端场景的错误分类器: 只把
// Unavailable / DeadlineExceeded / Internal / Unknown 这类基础设施
// 错误码计为失败, 业务语义的错误码 (NotFound, InvalidArgument 等)
// 不触发熔断。非 gRPC 错误一律计为失败。
func GRPCFailureClassifier() func(err error) bool {
	return func(err error) bool {
		if err == nil {
			return false
		}
		st, ok := status.FromError(err)
		if !ok {
			return true
		}
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Internal, codes.Unknown:
			return true
		default:
			return false
		}
	}
}

// UnaryClientInterceptor 返回由组管理的一元调用熔断拦截器,
// 按 KeyFunc 提取的 Key 自动分片到独立熔断器。
//
// 熔断拒绝的请求返回 codes.Unavailable, 配置了 WithFallback 时
// 先走降级逻辑。
func (g *Group) UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	cfg := newInterceptorConfig(opts...)
	return func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		key := cfg.keyFunc(ctx, method, cc)
		brk, err := g.Get(key)
		if err != nil {
			// 熔断器不可用时放行, 保护组件故障不应拒绝业务请求
			g.logger.Warn("获取熔断器失败, 请求直接放行",
				clog.String("key", key), clog.Error(err))
			return invoker(ctx, method, req, reply, cc, callOpts...)
		}

		_, err = brk.Execute(ctx, func() (any, error) {
			return nil, invoker(ctx, method, req, reply, cc, callOpts...)
		})
		g.recordRPC(ctx, method, err)
		return g.translateOpen(ctx, cfg, key, err)
	}
}

// StreamClientInterceptor 返回流式调用的熔断拦截器, 只保护建流过程,
// 建流成功后的消息收发不参与熔断计数。
func (g *Group) StreamClientInterceptor(opts ...InterceptorOption) grpc.StreamClientInterceptor {
	cfg := newInterceptorConfig(opts...)
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn,
		method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		key := cfg.keyFunc(ctx, method, cc)
		brk, err := g.Get(key)
		if err != nil {
			g.logger.Warn("获取熔断器失败, 请求直接放行",
				clog.String("key", key), clog.Error(err))
			return streamer(ctx, desc, cc, method, callOpts...)
		}

		result, err := brk.Execute(ctx, func() (any, error) {
			return streamer(ctx, desc, cc, method, callOpts...)
		})
		g.recordRPC(ctx, method, err)
		if err != nil {
			// 降级函数无法替流式调用伪造 ClientStream, 流场景不走降级
			if xerrors.Is(err, ErrCircuitOpen) {
				return nil, status.Error(codes.Unavailable, "circuit breaker open")
			}
			return nil, err
		}
		stream, _ := result.(grpc.ClientStream)
		return stream, nil
	}
}

// translateOpen 把熔断拒绝翻译为降级结果或 codes.Unavailable。
func (g *Group) translateOpen(ctx context.Context, cfg *interceptorConfig, key string, err error) error {
	if err == nil || !xerrors.Is(err, ErrCircuitOpen) {
		return err
	}
	if cfg.fallback != nil {
		return cfg.fallback(ctx, key, err)
	}
	return status.Error(codes.Unavailable, "circuit breaker open")
}

func (g *Group) recordRPC(ctx context.Context, method string, err error) {
	if g.meter == nil {
		return
	}
	result := resultSuccess
	switch {
	case xerrors.Is(err, ErrCircuitOpen):
		result = resultRejected
	case err != nil:
		result = resultFailure
	}
	if counter, merr := g.meter.Counter(MetricRequestsTotal, "circuit breaker requests"); merr == nil && counter != nil {
		counter.Inc(ctx,
			metrics.L(LabelService, serviceFromMethod(method)),
			metrics.L(LabelMethod, method),
			metrics.L(LabelResult, result))
	}
}

// UnaryClientInterceptor 返回使用单个熔断器保护整条连接的一元拦截器,
// 不按 Key 分片。需要按服务或方法隔离时使用 Group 版本。
func UnaryClientInterceptor(b Breaker, opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	cfg := newInterceptorConfig(opts...)
	return func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		_, err := b.Execute(ctx, func() (any, error) {
			return nil, invoker(ctx, method, req, reply, cc, callOpts...)
		})
		if err != nil && xerrors.Is(err, ErrCircuitOpen) {
			if cfg.fallback != nil {
				return cfg.fallback(ctx, cfg.keyFunc(ctx, method, cc), err)
			}
			return status.Error(codes.Unavailable, "circuit breaker open")
		}
		return err
	}
}

// StreamClientInterceptor 返回使用单个熔断器保护整条连接的流式拦截器。
func StreamClientInterceptor(b Breaker, opts ...InterceptorOption) grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn,
		method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		result, err := b.Execute(ctx, func() (any, error) {
			return streamer(ctx, desc, cc, method, callOpts...)
		})
		if err != nil {
			if xerrors.Is(err, ErrCircuitOpen) {
				return nil, status.Error(codes.Unavailable, "circuit breaker open")
			}
			return nil, err
		}
		stream, _ := result.(grpc.ClientStream)
		return stream, nil
	}
}
