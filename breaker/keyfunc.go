package breaker

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"
)

// KeyFunc 从 gRPC 调用上下文中提取熔断 Key, 决定熔断的隔离粒度。
type KeyFunc func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string

// ServiceLevelKey 服务级别 Key, 同一个目标服务共享一个熔断器。
// 返回示例: "etcd:///payment-service"
func ServiceLevelKey() KeyFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return cc.Target()
	}
}

// MethodLevelKey 方法级别 Key, 每个 RPC 方法独立熔断。
// 返回示例: "/pkg.Service/Method"
func MethodLevelKey() KeyFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return fullMethod
	}
}

// ServiceNameKey 从方法全名中提取服务名作为 Key, 适合 Target 是
// 负载均衡地址、无法区分服务的场景。
// 返回示例: "pkg.Service"
func ServiceNameKey() KeyFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		return serviceFromMethod(fullMethod)
	}
}

// BackendLevelKey 后端实例级别 Key, 从 Peer 信息中提取真实后端地址。
// 连接建立前拿不到 Peer 信息, 此时回退到服务名。
// 返回示例: "10.0.0.1:9001"
func BackendLevelKey() KeyFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			if addr := p.Addr.String(); addr != "" {
				return addr
			}
		}
		return cc.Target()
	}
}

// CompositeKey 组合多个 KeyFunc, 用 @ 连接。
// 返回示例: "etcd:///payment-service@10.0.0.1:9001"
func CompositeKey(primary KeyFunc, secondary ...KeyFunc) KeyFunc {
	return func(ctx context.Context, fullMethod string, cc *grpc.ClientConn) string {
		key := primary(ctx, fullMethod, cc)
		for _, kf := range secondary {
			key += "@" + kf(ctx, fullMethod, cc)
		}
		return key
	}
}

// serviceFromMethod 从 "/package.Service/Method" 中提取 "package.Service"。
func serviceFromMethod(fullMethod string) string {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.Index(name, "/"); i >= 0 {
		return name[:i]
	}
	return name
}
