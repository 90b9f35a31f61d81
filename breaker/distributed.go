package breaker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/dlock"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/store"
	"github.com/ceyewan/aegis/xerrors"
)

// distributedBreaker 把熔断状态放在共享存储中的熔断器实现。
//
// 存储布局 (均在 Key 命名空间下):
//   - "<key>:state":          当前状态, "closed" / "open" / "half_open"
//   - "<key>:halfOpenSwitch": 探测开关, 进入 HalfOpen 时置 true,
//     被第一个到达的调用读取并清除
//
// 每次调用都先读一次共享状态再决定放行与否, 因此任何实例触发的熔断
// 对全集群立即生效。状态写入不是原子的 CAS: 写前会重读一次状态做
// 确认, 并发写按后写覆盖处理, 由于所有写入者收敛到同样的目标状态,
// 竞争结果仍然一致。
type distributedBreaker struct {
	key      string
	state    *store.State[string]
	gate     *store.State[bool]
	strategy TrippingStrategy
	backoff  *backoffDriver

	isFailure     func(err error) bool
	onStateChange func(from, to State)
	probeLock     dlock.Locker

	logger clog.Logger
	meter  metrics.Meter

	// resetCh 容量为 1, 重复的恢复请求直接合并
	resetCh chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool

	// mu 串行化对 strategy 的访问
	mu sync.Mutex
	// probeMu 串行化本进程内的探测资格申领
	probeMu sync.Mutex
}

var _ Breaker = (*distributedBreaker)(nil)

func (b *distributedBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	return b.execute(ctx, fn, b.isFailure)
}

func (b *distributedBreaker) execute(ctx context.Context, fn func() (any, error), classify func(error) bool) (any, error) {
	if b.closed.Load() {
		return nil, ErrBreakerClosed
	}

	st, err := b.currentState(ctx)
	if err != nil {
		return nil, err
	}

	switch st {
	case StateOpen:
		b.recordRequest(ctx, resultRejected)
		return nil, ErrCircuitOpen
	case StateHalfOpen:
		probe, err := b.claimProbe(ctx)
		if err != nil {
			return nil, err
		}
		if !probe {
			b.recordRequest(ctx, resultRejected)
			return nil, ErrCircuitOpen
		}
		return b.runProbe(ctx, fn, classify)
	default:
		return b.runClosed(ctx, fn, classify)
	}
}

func (b *distributedBreaker) State(ctx context.Context) (State, error) {
	return b.currentState(ctx)
}

func (b *distributedBreaker) WithIsFailure(classify func(err error) bool) Breaker {
	return &derivedBreaker{parent: b, classify: classify}
}

func (b *distributedBreaker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(b.stopCh)
	b.wg.Wait()
	b.logger.Info("熔断器已关闭")
	return nil
}

// currentState 读取共享状态。无法识别的状态值按 Closed 处理并告警,
// 避免存储中的脏数据把整个集群卡死在拒绝态。
func (b *distributedBreaker) currentState(ctx context.Context) (State, error) {
	raw, err := b.state.Get(ctx)
	if err != nil {
		return StateClosed, err
	}
	st, ok := parseState(raw)
	if !ok {
		b.logger.Warn("忽略无法识别的熔断状态", clog.String("state", raw))
	}
	return st, nil
}

// runClosed 在 Closed 状态下执行调用并把结果喂给策略。
//
// 策略判定熔断后会重读一次共享状态, 只有此刻仍是 Closed 才写入 Open,
// 避免覆盖其他实例或后台任务刚刚写入的状态。
func (b *distributedBreaker) runClosed(ctx context.Context, fn func() (any, error), classify func(error) bool) (any, error) {
	start := time.Now()
	result, err := fn()
	succeeded := err == nil || !b.classifyFailure(classify, err)
	b.observe(ctx, succeeded, time.Since(start))

	b.mu.Lock()
	trip := b.strategy.ShouldTrip(succeeded)
	b.mu.Unlock()

	if trip {
		cur, serr := b.currentState(ctx)
		if serr != nil {
			return nil, serr
		}
		if cur == StateClosed {
			if serr := b.state.Set(ctx, StateOpen.String()); serr != nil {
				return nil, serr
			}
			b.requestReset()
			b.notify(ctx, StateClosed, StateOpen)
		}
	}
	return result, err
}

// runProbe 执行 HalfOpen 探测: 成功则闭合并重置退避, 失败则重新熔断。
func (b *distributedBreaker) runProbe(ctx context.Context, fn func() (any, error), classify func(error) bool) (any, error) {
	start := time.Now()
	result, err := fn()
	succeeded := err == nil || !b.classifyFailure(classify, err)
	b.observe(ctx, succeeded, time.Since(start))

	if succeeded {
		b.mu.Lock()
		b.strategy.OnReset()
		b.mu.Unlock()
		b.backoff.reset()
		if serr := b.state.Set(ctx, StateClosed.String()); serr != nil {
			return nil, serr
		}
		b.notify(ctx, StateHalfOpen, StateClosed)
	} else {
		if serr := b.state.Set(ctx, StateOpen.String()); serr != nil {
			return nil, serr
		}
		b.requestReset()
		b.notify(ctx, StateHalfOpen, StateOpen)
	}
	return result, err
}

// claimProbe 尝试取得探测资格: 读取并清除共享探测开关, 拿到 true 的
// 调用成为探测。配置了 probeLock 时先抢分布式锁, 抢不到直接让位。
//
// 开关的读取-清除是两次独立的存储往返, 本进程内的并发申领用 probeMu
// 串行化, 后到者必然读到已清除的开关; 跨进程的竞争由 probeLock 收敛。
func (b *distributedBreaker) claimProbe(ctx context.Context) (bool, error) {
	b.probeMu.Lock()
	defer b.probeMu.Unlock()

	if b.probeLock != nil {
		lockKey := b.key + ":probe"
		acquired, err := b.probeLock.TryLock(ctx, lockKey, dlock.WithTTL(probeLockTTL))
		if err != nil {
			// 锁被同进程的其他持有者占着, 等同于抢锁失败
			if xerrors.Is(err, dlock.ErrLockAlreadyHeld) {
				return false, nil
			}
			return false, err
		}
		if !acquired {
			return false, nil
		}
		defer func() {
			// ctx 可能已取消, 释放锁用独立上下文
			if uerr := b.probeLock.Unlock(context.Background(), lockKey); uerr != nil {
				b.logger.Warn("释放探测锁失败", clog.Error(uerr))
			}
		}()
	}
	return b.gate.GetAndUpdate(ctx, func(bool) bool { return false })
}

// classifyFailure 判定 err 是否计为失败, 分类器 panic 时按失败处理。
func (b *distributedBreaker) classifyFailure(classify func(error) bool, err error) (failure bool) {
	if classify == nil {
		return true
	}
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("错误分类器 panic, 该调用按失败计", clog.Any("panic", r))
			failure = true
		}
	}()
	return classify(err)
}

// requestReset 向后台恢复任务投递一次调度请求, 已有待处理请求时合并。
func (b *distributedBreaker) requestReset() {
	select {
	case b.resetCh <- struct{}{}:
	default:
	}
}

// resetLoop 后台恢复任务, 是 HalfOpen 状态的唯一生产者。
//
// 收到调度请求后按当前退避延迟休眠, 然后先置探测开关再写 HalfOpen
// 状态: 顺序保证任何观察到 HalfOpen 的调用都有开关可抢。存储写入
// 失败时重新入队, 下一个退避间隔后重试, 避免一次瞬时故障把熔断器
// 永久留在 Open; 两个写入都是幂等的, 重试不会多放探测。
func (b *distributedBreaker) resetLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.stopCh:
			return
		case <-b.resetCh:
		}

		delay := b.backoff.next()
		b.logger.Debug("恢复探测已调度", clog.Duration("delay", delay))

		timer := time.NewTimer(delay)
		select {
		case <-b.stopCh:
			timer.Stop()
			return
		case <-timer.C:
		}

		ctx := context.Background()
		if err := b.gate.Set(ctx, true); err != nil {
			b.logger.Error("写入探测开关失败, 重新调度", clog.Error(err))
			b.requestReset()
			continue
		}
		if err := b.state.Set(ctx, StateHalfOpen.String()); err != nil {
			b.logger.Error("写入半开状态失败, 重新调度", clog.Error(err))
			b.requestReset()
			continue
		}
		b.notify(ctx, StateOpen, StateHalfOpen)
	}
}

// notify 记录状态变更日志与指标, 并异步触发回调。
func (b *distributedBreaker) notify(ctx context.Context, from, to State) {
	b.logger.Info("熔断器状态变更",
		clog.String("from", from.String()),
		clog.String("to", to.String()))

	if b.meter != nil {
		if counter, err := b.meter.Counter(MetricStateChanges, "circuit breaker state changes"); err == nil && counter != nil {
			counter.Inc(ctx,
				metrics.L(LabelKey, b.key),
				metrics.L(LabelFromState, from.String()),
				metrics.L(LabelToState, to.String()))
		}
	}

	if b.onStateChange == nil {
		return
	}
	cb := b.onStateChange
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("状态变更回调 panic", clog.Any("panic", r))
			}
		}()
		cb(from, to)
	}()
}

func (b *distributedBreaker) observe(ctx context.Context, succeeded bool, elapsed time.Duration) {
	result := resultSuccess
	if !succeeded {
		result = resultFailure
	}
	b.recordRequest(ctx, result)
	if b.meter != nil {
		if hist, err := b.meter.Histogram(MetricRequestDuration, "protected call duration"); err == nil && hist != nil {
			hist.Record(ctx, elapsed.Seconds(), metrics.L(LabelKey, b.key))
		}
	}
}

func (b *distributedBreaker) recordRequest(ctx context.Context, result string) {
	if b.meter == nil {
		return
	}
	if counter, err := b.meter.Counter(MetricRequestsTotal, "circuit breaker requests"); err == nil && counter != nil {
		counter.Inc(ctx,
			metrics.L(LabelKey, b.key),
			metrics.L(LabelResult, result))
	}
}

// derivedBreaker 是 WithIsFailure 派生出的句柄, 与父熔断器共享全部
// 状态, 只替换错误分类器。
type derivedBreaker struct {
	parent   *distributedBreaker
	classify func(err error) bool
}

var _ Breaker = (*derivedBreaker)(nil)

func (d *derivedBreaker) Execute(ctx context.Context, fn func() (any, error)) (any, error) {
	return d.parent.execute(ctx, fn, d.classify)
}

func (d *derivedBreaker) State(ctx context.Context) (State, error) {
	return d.parent.State(ctx)
}

func (d *derivedBreaker) WithIsFailure(classify func(err error) bool) Breaker {
	return &derivedBreaker{parent: d.parent, classify: classify}
}

func (d *derivedBreaker) Close() error {
	return d.parent.Close()
}
