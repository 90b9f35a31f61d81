package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// maxQueueSize 等待队列容量上限。
const maxQueueSize = 1 << 16

// LimiterConfig 限流执行器配置。
type LimiterConfig struct {
	// Parallelism 同时在途的任务数上限, 0 表示不限制。
	Parallelism int64 `json:"parallelism" yaml:"parallelism"`
	// QueueSize 等待队列容量, 0 表示自动取不小于桶容量的最小 2 的幂。
	QueueSize int `json:"queue_size" yaml:"queue_size"`
}

// Limiter 在令牌桶之上排队执行任务。
//
// 任务先进入有界队列, 由单个消费者按入队顺序派发: 消费者只等待
// Parallelism 的空闲槽位, 拿到槽位就把任务交给独立 goroutine, 取令牌
// 与任务本体都在其中进行。令牌耗尽时该 goroutine 等待下一个补充窗口
// 重试, ErrRateLimitExceeded 不会返回给调用方; 等令牌的任务只占住
// 自己的槽位, 不会卡住后续任务的派发。完成顺序不保证与提交顺序一致。
//
// 在排队阶段取消的任务不消耗令牌、不拖慢后续任务; 已派发的任务通过
// 其 ctx 感知取消。
type Limiter struct {
	bucket Bucket
	queue  chan *limiterTask
	sem    *semaphore.Weighted

	logger clog.Logger
	meter  metrics.Meter

	stopCh chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

type limiterTask struct {
	ctx       context.Context
	run       func(ctx context.Context) error
	done      chan error
	cancelled atomic.Bool
}

// NewLimiter 创建限流执行器, cfg 可为 nil。
func NewLimiter(bucket Bucket, cfg *LimiterConfig, opts ...Option) (*Limiter, error) {
	if bucket == nil {
		return nil, ErrBucketNil
	}
	if cfg == nil {
		cfg = &LimiterConfig{}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = nextPowerOfTwo(bucket.Capacity())
	}
	if queueSize > maxQueueSize {
		queueSize = maxQueueSize
	}

	opt := applyOptions(opts...)

	l := &Limiter{
		bucket: bucket,
		queue:  make(chan *limiterTask, queueSize),
		logger: opt.logger,
		meter:  opt.meter,
		stopCh: make(chan struct{}),
	}
	if cfg.Parallelism > 0 {
		l.sem = semaphore.NewWeighted(cfg.Parallelism)
	}

	l.wg.Add(1)
	go l.consume()

	l.logger.Info("限流执行器已创建",
		clog.Int("queue_size", queueSize),
		clog.Int64("parallelism", cfg.Parallelism))
	return l, nil
}

// Do 提交任务并阻塞至任务完成 (或 ctx 取消)。
//
// 派发前 ctx 取消时任务不执行, 返回 ctx 的错误; 派发后取消通过 ctx
// 传递给任务, Do 立即返回而任务自行退出。
func (l *Limiter) Do(ctx context.Context, task func(ctx context.Context) error) error {
	if l.closed.Load() {
		return ErrLimiterClosed
	}

	t := &limiterTask{
		ctx:  ctx,
		run:  task,
		done: make(chan error, 1),
	}

	select {
	case l.queue <- t:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return ErrLimiterClosed
	}

	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		// 消费者派发时发现取消标记会直接跳过该任务
		t.cancelled.Store(true)
		return ctx.Err()
	case <-l.stopCh:
		t.cancelled.Store(true)
		return ErrLimiterClosed
	}
}

// DoValue 是 Do 的泛型包装, 任务带返回值。
func DoValue[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := l.Do(ctx, func(ctx context.Context) error {
		v, err := task(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		// 任务可能仍在途, 不读取 result
		var zero T
		return zero, err
	}
	return result, nil
}

// Close 停止接收新任务, 等待在途任务完成后返回, 幂等。
func (l *Limiter) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(l.stopCh)
	l.wg.Wait()
	l.logger.Info("限流执行器已关闭")
	return nil
}

// consume 单消费者循环: 逐个取出队首任务, 等到空闲并行槽位后派发。
func (l *Limiter) consume() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case t := <-l.queue:
			l.dispatch(t)
		}
	}
}

func (l *Limiter) dispatch(t *limiterTask) {
	// 排队期间已取消的任务直接丢弃, 不消耗令牌
	if t.cancelled.Load() || t.ctx.Err() != nil {
		l.finish(t, t.ctx.Err())
		l.recordTask(taskCancelled)
		return
	}

	if l.sem != nil {
		if err := l.sem.Acquire(t.ctx, 1); err != nil {
			l.finish(t, err)
			l.recordTask(taskCancelled)
			return
		}
	}

	// 取令牌放在任务自己的 goroutine 里: 队首任务等补充窗口时,
	// 消费者可以继续派发, 最多 Parallelism 个任务同时等令牌
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if l.sem != nil {
			defer l.sem.Release(1)
		}

		if err := l.acquireToken(t.ctx); err != nil {
			l.finish(t, err)
			l.recordTask(taskCancelled)
			return
		}

		err := l.runTask(t)
		l.finish(t, err)
		if err != nil {
			l.recordTask(taskFailed)
		} else {
			l.recordTask(taskCompleted)
		}
	}()
}

// acquireToken 向令牌桶取令牌, 耗尽时等待一个补充窗口后重试,
// 直到拿到令牌或 ctx 取消。存储错误不重试, 原样返回。
func (l *Limiter) acquireToken(ctx context.Context) error {
	for {
		_, err := l.bucket.Allow(ctx)
		if err == nil {
			return nil
		}
		if !xerrors.Is(err, ErrRateLimitExceeded) {
			return err
		}

		l.logger.Debug("令牌耗尽, 等待下一个补充窗口",
			clog.Duration("interval", l.bucket.Interval()))
		timer := time.NewTimer(l.bucket.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-l.stopCh:
			timer.Stop()
			return ErrLimiterClosed
		case <-timer.C:
		}
	}
}

func (l *Limiter) runTask(t *limiterTask) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("任务 panic", clog.Any("panic", r))
			err = xerrors.New("ratelimit: task panicked")
		}
	}()
	return t.run(t.ctx)
}

// finish 投递任务结果, done 带缓冲, 调用方已放弃时不会阻塞。
func (l *Limiter) finish(t *limiterTask, err error) {
	t.done <- err
}

func (l *Limiter) recordTask(result string) {
	if l.meter == nil {
		return
	}
	if counter, err := l.meter.Counter(MetricTasks, "rate limited tasks"); err == nil && counter != nil {
		counter.Inc(context.Background(), metrics.L(LabelResult, result))
	}
}

// nextPowerOfTwo 返回不小于 n 的最小 2 的幂。
func nextPowerOfTwo(n int64) int {
	size := 1
	for int64(size) < n {
		size <<= 1
	}
	return size
}
