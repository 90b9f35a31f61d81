package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aegis/store"
	"github.com/ceyewan/aegis/xerrors"
)

var errTask = errors.New("task failed")

func newTestLimiter(t *testing.T, bucket Bucket, cfg *LimiterConfig) *Limiter {
	t.Helper()
	l, err := NewLimiter(bucket, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func awaitErr(t *testing.T, ch <-chan error, timeout time.Duration) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		t.Fatal("等待任务结果超时")
		return nil
	}
}

func TestNewLimiter(t *testing.T) {
	t.Run("桶为空", func(t *testing.T) {
		_, err := NewLimiter(nil, nil)
		assert.True(t, xerrors.Is(err, ErrBucketNil))
	})

	t.Run("队列默认取不小于桶容量的二的幂", func(t *testing.T) {
		st := newTestStore(t)
		b := newTestBucket(t, st, 5, time.Minute)
		l := newTestLimiter(t, b, nil)
		assert.Equal(t, 8, cap(l.queue))
	})

	t.Run("显式队列容量优先", func(t *testing.T) {
		st := newTestStore(t)
		b := newTestBucket(t, st, 5, time.Minute)
		l := newTestLimiter(t, b, &LimiterConfig{QueueSize: 4})
		assert.Equal(t, 4, cap(l.queue))
	})

	t.Run("队列容量有上限", func(t *testing.T) {
		l := newTestLimiter(t, Discard(), nil)
		assert.Equal(t, maxQueueSize, cap(l.queue))
	})
}

func TestLimiterDo(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBucket(t, st, 10, time.Minute)
	l := newTestLimiter(t, b, nil)

	var ran atomic.Bool
	err := l.Do(ctx, func(ctx context.Context) error {
		ran.Store(true)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran.Load())

	// 任务错误原样返回
	err = l.Do(ctx, func(ctx context.Context) error { return errTask })
	assert.True(t, xerrors.Is(err, errTask))
}

func TestDoValue(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Discard(), nil)

	v, err := DoValue(ctx, l, func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = DoValue(ctx, l, func(ctx context.Context) (int, error) {
		return 7, errTask
	})
	assert.True(t, xerrors.Is(err, errTask))
	assert.Zero(t, v)
}

func TestLimiterAbsorbsExhaustion(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBucket(t, st, 2, 2*time.Second)
	l := newTestLimiter(t, b, nil)

	// 第三个任务会耗尽令牌, Limiter 代它等待下一个补充窗口,
	// ErrRateLimitExceeded 不会返回给调用方
	start := time.Now()
	for i := 0; i < 3; i++ {
		err := l.Do(ctx, func(ctx context.Context) error { return nil })
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 1900*time.Millisecond)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestLimiterPreDispatchCancel(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	b := newTestBucket(t, st, 3, time.Minute)
	l := newTestLimiter(t, b, &LimiterConfig{Parallelism: 1})

	// 任务一占住唯一的并行槽位
	started := make(chan struct{})
	release := make(chan struct{})
	d1 := make(chan error, 1)
	go func() {
		d1 <- l.Do(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// 任务二被消费者取出后卡在并行槽位上, 任务三留在队列里
	var ran2, ran3 atomic.Bool
	ctx2, cancel2 := context.WithCancel(ctx)
	defer cancel2()
	d2 := make(chan error, 1)
	go func() {
		d2 <- l.Do(ctx2, func(ctx context.Context) error {
			ran2.Store(true)
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)

	ctx3, cancel3 := context.WithCancel(ctx)
	defer cancel3()
	d3 := make(chan error, 1)
	go func() {
		d3 <- l.Do(ctx3, func(ctx context.Context) error {
			ran3.Store(true)
			return nil
		})
	}()
	time.Sleep(50 * time.Millisecond)

	// 取消排队中的任务: Do 立即返回, 任务不执行
	cancel2()
	assert.True(t, xerrors.Is(awaitErr(t, d2, 2*time.Second), context.Canceled))
	cancel3()
	assert.True(t, xerrors.Is(awaitErr(t, d3, 2*time.Second), context.Canceled))

	close(release)
	require.NoError(t, awaitErr(t, d1, 2*time.Second))

	// 后续任务不被取消的任务拖慢
	require.NoError(t, l.Do(ctx, func(ctx context.Context) error { return nil }))

	assert.False(t, ran2.Load())
	assert.False(t, ran3.Load())

	// 只有任务一和任务四消费了令牌, 取消的任务不动桶
	remaining, err := b.Allow(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)
}

func TestLimiterParallelism(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Discard(), &LimiterConfig{Parallelism: 2})

	var cur, peak atomic.Int64
	task := func(ctx context.Context) error {
		c := cur.Add(1)
		for {
			p := peak.Load()
			if c <= p || peak.CompareAndSwap(p, c) {
				break
			}
		}
		time.Sleep(100 * time.Millisecond)
		cur.Add(-1)
		return nil
	}

	var wg sync.WaitGroup
	errs := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Do(ctx, task)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.LessOrEqual(t, peak.Load(), int64(2))
	assert.GreaterOrEqual(t, peak.Load(), int64(1))
}

// gatedBucket 第一次 Allow 调用被扣住直到放行, 之后的调用直接发令牌。
type gatedBucket struct {
	first   atomic.Bool
	opened  atomic.Bool
	release chan struct{}
}

func newGatedBucket() *gatedBucket {
	return &gatedBucket{release: make(chan struct{})}
}

// open 放行被扣住的 Allow, 幂等。
func (b *gatedBucket) open() {
	if b.opened.CompareAndSwap(false, true) {
		close(b.release)
	}
}

func (b *gatedBucket) Allow(ctx context.Context) (int64, error) {
	if b.first.CompareAndSwap(false, true) {
		select {
		case <-b.release:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 1, nil
}

func (b *gatedBucket) Capacity() int64         { return 4 }
func (b *gatedBucket) Interval() time.Duration { return time.Second }
func (b *gatedBucket) Close() error            { return nil }

func TestLimiterParallelTokenWaits(t *testing.T) {
	ctx := context.Background()
	b := newGatedBucket()
	l := newTestLimiter(t, b, &LimiterConfig{Parallelism: 2})
	t.Cleanup(b.open)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			done <- l.Do(ctx, func(ctx context.Context) error { return nil })
		}()
	}

	// 一个任务的取令牌被桶扣住, 另一个任务在自己的槽位上照常完成,
	// 不会被队首的等待挡住
	require.NoError(t, awaitErr(t, done, 2*time.Second))

	b.open()
	require.NoError(t, awaitErr(t, done, 2*time.Second))
}

func TestLimiterQueueBackpressure(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Discard(), &LimiterConfig{Parallelism: 1, QueueSize: 1})

	started := make(chan struct{})
	release := make(chan struct{})
	d1 := make(chan error, 1)
	go func() {
		d1 <- l.Do(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// 任务二被消费者取出, 任务三填满队列
	d2 := make(chan error, 1)
	go func() {
		d2 <- l.Do(ctx, func(ctx context.Context) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)
	d3 := make(chan error, 1)
	go func() {
		d3 <- l.Do(ctx, func(ctx context.Context) error { return nil })
	}()
	time.Sleep(50 * time.Millisecond)

	// 队列满时入队阻塞, 直到 ctx 超时
	timeoutCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	err := l.Do(timeoutCtx, func(ctx context.Context) error { return nil })
	assert.True(t, xerrors.Is(err, context.DeadlineExceeded))

	close(release)
	require.NoError(t, awaitErr(t, d1, 2*time.Second))
	require.NoError(t, awaitErr(t, d2, 2*time.Second))
	require.NoError(t, awaitErr(t, d3, 2*time.Second))
}

func TestLimiterStoreFailure(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewMemory(nil)
	require.NoError(t, err)
	b, err := NewTokenBucket(st, "failing", 5, time.Minute)
	require.NoError(t, err)
	l := newTestLimiter(t, b, nil)

	require.NoError(t, st.Close())

	// 存储错误不重试, 直接返回给调用方
	err = l.Do(ctx, func(ctx context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, store.ErrClosed))
}

func TestLimiterTaskPanic(t *testing.T) {
	ctx := context.Background()
	l := newTestLimiter(t, Discard(), nil)

	err := l.Do(ctx, func(ctx context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task panicked")

	// panic 不影响后续任务
	require.NoError(t, l.Do(ctx, func(ctx context.Context) error { return nil }))
}

func TestLimiterClose(t *testing.T) {
	t.Run("等待在途任务完成", func(t *testing.T) {
		l, err := NewLimiter(Discard(), nil)
		require.NoError(t, err)

		started := make(chan struct{})
		var finished atomic.Bool
		d1 := make(chan error, 1)
		go func() {
			d1 <- l.Do(context.Background(), func(ctx context.Context) error {
				close(started)
				time.Sleep(100 * time.Millisecond)
				finished.Store(true)
				return nil
			})
		}()
		<-started

		// 等待结果的 Do 在关闭时立即返回, 任务本体仍会跑完
		require.NoError(t, l.Close())
		assert.True(t, finished.Load())
		assert.True(t, xerrors.Is(awaitErr(t, d1, 2*time.Second), ErrLimiterClosed))

		// 重复关闭幂等
		assert.NoError(t, l.Close())
	})

	t.Run("关闭后提交被拒绝", func(t *testing.T) {
		l, err := NewLimiter(Discard(), nil)
		require.NoError(t, err)
		require.NoError(t, l.Close())

		err = l.Do(context.Background(), func(ctx context.Context) error { return nil })
		assert.True(t, xerrors.Is(err, ErrLimiterClosed))
	})
}

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		in   int64
		want int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{5, 8},
		{8, 8},
		{100, 128},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, nextPowerOfTwo(tt.in))
	}
}
