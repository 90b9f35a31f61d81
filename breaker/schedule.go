package breaker

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ResetSchedule 熔断后的恢复探测退避节奏。
//
// 熔断器进入 Open 后, 后台任务等待一段延迟再切到 HalfOpen 放行探测;
// 探测失败则重新熔断, 下一次延迟按 Factor 指数增长, 直到 MaxDelay 封顶;
// 探测成功闭合后延迟回到 InitialDelay。
type ResetSchedule struct {
	// InitialDelay 首次熔断后的探测延迟, 默认 1s。
	InitialDelay time.Duration `json:"initial_delay" yaml:"initial_delay"`
	// Factor 每次探测失败后延迟的增长倍数, 默认 2.0。
	Factor float64 `json:"factor" yaml:"factor"`
	// MaxDelay 延迟上限, 默认 60s。
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`
	// Jitter 随机抖动系数 [0, 1), 默认 0 (不抖动)。
	// 取 0.5 时实际延迟在 [0.5d, 1.5d] 内均匀分布, 用于错开
	// 多实例同时探测。
	Jitter float64 `json:"jitter" yaml:"jitter"`
}

func (s *ResetSchedule) setDefaults() {
	if s.InitialDelay <= 0 {
		s.InitialDelay = time.Second
	}
	if s.Factor < 1 {
		s.Factor = 2.0
	}
	if s.MaxDelay <= 0 {
		s.MaxDelay = 60 * time.Second
	}
	if s.Jitter < 0 || s.Jitter >= 1 {
		s.Jitter = 0
	}
}

// backoffDriver 把 ResetSchedule 映射到 backoff.ExponentialBackOff 上,
// 为熔断器维护当前退避进度。next 与 reset 可能来自不同 goroutine
// (后台恢复任务与探测调用方), 内部加锁。
type backoffDriver struct {
	mu sync.Mutex
	bo *backoff.ExponentialBackOff
}

func newBackoffDriver(s *ResetSchedule) *backoffDriver {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.InitialDelay
	bo.RandomizationFactor = s.Jitter
	bo.Multiplier = s.Factor
	bo.MaxInterval = s.MaxDelay
	// 退避序列跟随熔断器整个生命周期, 不允许因运行时长耗尽而停止
	bo.MaxElapsedTime = 0
	bo.Reset()
	return &backoffDriver{bo: bo}
}

// next 返回当前退避延迟并推进序列。
func (d *backoffDriver) next() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	delay := d.bo.NextBackOff()
	if delay < 0 {
		delay = d.bo.MaxInterval
	}
	return delay
}

// reset 把退避序列拉回 InitialDelay, 在探测成功闭合后调用。
func (d *backoffDriver) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bo.Reset()
}
