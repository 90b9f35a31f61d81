package ratelimit

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/aegis/xerrors"
)

// GRPCBucketFunc 按调用选择令牌桶, 返回 nil 表示该调用不限流。
type GRPCBucketFunc func(ctx context.Context, fullMethod string) Bucket

// UnaryServerInterceptor 返回 gRPC 一元调用的服务端限流拦截器,
// 所有经过的调用共享同一个桶。
//
// 令牌耗尽返回 codes.ResourceExhausted; 存储故障时放行, 避免限流器
// 自身的问题拒绝业务请求。
//
// ## 基本使用
//
//	bucket, _ := ratelimit.NewTokenBucket(st, "rpc", 1000, time.Second)
//	server := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(ratelimit.UnaryServerInterceptor(bucket)),
//	)
func UnaryServerInterceptor(bucket Bucket) grpc.UnaryServerInterceptor {
	if bucket == nil {
		bucket = Discard()
	}
	return UnaryServerInterceptorWithBucketFunc(func(ctx context.Context, fullMethod string) Bucket {
		return bucket
	})
}

// UnaryServerInterceptorWithBucketFunc 返回按方法选桶的服务端限流
// 拦截器, 用于不同方法走不同限流规则的场景。
func UnaryServerInterceptorWithBucketFunc(bucketFunc GRPCBucketFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		bucket := bucketFunc(ctx, info.FullMethod)
		if bucket == nil {
			return handler(ctx, req)
		}

		if _, err := bucket.Allow(ctx); err != nil {
			if xerrors.Is(err, ErrRateLimitExceeded) {
				return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
			}
			// 存储故障时放行
			return handler(ctx, req)
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor 返回 gRPC 流式调用的服务端限流拦截器,
// 在每次 RecvMsg 前做限流检查, 约束的是消息速率而不是建流速率。
func StreamServerInterceptor(bucket Bucket) grpc.StreamServerInterceptor {
	if bucket == nil {
		bucket = Discard()
	}
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &rateLimitedServerStream{
			ServerStream: stream,
			bucket:       bucket,
		})
	}
}

type rateLimitedServerStream struct {
	grpc.ServerStream
	bucket Bucket
}

func (s *rateLimitedServerStream) RecvMsg(m any) error {
	if _, err := s.bucket.Allow(s.Context()); err != nil {
		if xerrors.Is(err, ErrRateLimitExceeded) {
			return status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		// 存储故障时放行
	}
	return s.ServerStream.RecvMsg(m)
}
