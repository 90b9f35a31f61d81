package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/ceyewan/aegis/store"
)

// stubServerStream 模拟 gRPC 服务端流
type stubServerStream struct {
	grpc.ServerStream
	ctx       context.Context
	recvCount int
}

func (s *stubServerStream) Context() context.Context { return s.ctx }
func (s *stubServerStream) RecvMsg(m any) error {
	s.recvCount++
	return nil
}

func okHandler(counter *int) grpc.UnaryHandler {
	return func(ctx context.Context, req any) (any, error) {
		*counter++
		return "response", nil
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	bucket := newTestBucket(t, st, 2, time.Minute)

	var handled int
	interceptor := UnaryServerInterceptor(bucket)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}

	for i := 0; i < 2; i++ {
		resp, err := interceptor(ctx, "request", info, okHandler(&handled))
		require.NoError(t, err)
		assert.Equal(t, "response", resp)
	}

	// 令牌耗尽返回 ResourceExhausted, 处理函数不执行
	resp, err := interceptor(ctx, "request", info, okHandler(&handled))
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Nil(t, resp)
	assert.Equal(t, 2, handled)
}

func TestUnaryServerInterceptorNilBucket(t *testing.T) {
	ctx := context.Background()

	var handled int
	interceptor := UnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}

	// 没有桶时退化为不限流
	for i := 0; i < 5; i++ {
		_, err := interceptor(ctx, "request", info, okHandler(&handled))
		require.NoError(t, err)
	}
	assert.Equal(t, 5, handled)
}

func TestUnaryServerInterceptorWithBucketFunc(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	limited, err := NewTokenBucket(st, "rpc:limited", 1, time.Minute)
	require.NoError(t, err)

	var handled int
	interceptor := UnaryServerInterceptorWithBucketFunc(func(ctx context.Context, fullMethod string) Bucket {
		if fullMethod == "/svc/Limited" {
			return limited
		}
		return nil
	})

	limitedInfo := &grpc.UnaryServerInfo{FullMethod: "/svc/Limited"}
	freeInfo := &grpc.UnaryServerInfo{FullMethod: "/svc/Free"}

	_, err = interceptor(ctx, "request", limitedInfo, okHandler(&handled))
	require.NoError(t, err)
	_, err = interceptor(ctx, "request", limitedInfo, okHandler(&handled))
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))

	// 未选中桶的方法不受影响
	for i := 0; i < 3; i++ {
		_, err = interceptor(ctx, "request", freeInfo, okHandler(&handled))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, handled)
}

func TestUnaryServerInterceptorFailOpen(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewMemory(nil)
	require.NoError(t, err)
	bucket, err := NewTokenBucket(st, "failing", 5, time.Minute)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	var handled int
	interceptor := UnaryServerInterceptor(bucket)
	info := &grpc.UnaryServerInfo{FullMethod: "/svc/Call"}

	// 存储故障时放行
	_, err = interceptor(ctx, "request", info, okHandler(&handled))
	require.NoError(t, err)
	assert.Equal(t, 1, handled)
}

func TestStreamServerInterceptor(t *testing.T) {
	st := newTestStore(t)
	bucket := newTestBucket(t, st, 2, time.Minute)

	interceptor := StreamServerInterceptor(bucket)
	stub := &stubServerStream{ctx: context.Background()}
	info := &grpc.StreamServerInfo{FullMethod: "/svc/Stream"}

	var errs []error
	handler := func(srv any, stream grpc.ServerStream) error {
		for i := 0; i < 3; i++ {
			errs = append(errs, stream.RecvMsg(nil))
		}
		return nil
	}

	require.NoError(t, interceptor(nil, stub, info, handler))

	// 限流约束的是消息速率: 前两条通过, 第三条被拒
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, codes.ResourceExhausted, status.Code(errs[2]))
	assert.Equal(t, 2, stub.recvCount)
}
