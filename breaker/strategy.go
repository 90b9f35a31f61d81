package breaker

// TrippingStrategy 熔断判定策略: 消费每次调用的成败, 决定何时熔断。
//
// 实现无需保证并发安全, 熔断器内部会串行化对策略的调用。策略状态是进程
// 本地的: 分布式场景下每个实例独立累积计数, 任何一个实例达到阈值即可
// 为整个集群触发熔断。
type TrippingStrategy interface {
	// ShouldTrip 喂入一次调用结果 (callSucceeded 为 true 表示成功),
	// 返回 true 表示应当立即熔断。
	ShouldTrip(callSucceeded bool) bool
	// OnReset 在探测成功、熔断器闭合时调用, 清空内部计数。
	OnReset()
}

type failureCount struct {
	maxFailures int
	consecutive int
}

// NewFailureCount 返回连续失败策略: 连续 maxFailures 次失败后熔断,
// 任何一次成功都会把计数清零。maxFailures 非正时按 DefaultMaxFailures 处理。
func NewFailureCount(maxFailures int) TrippingStrategy {
	if maxFailures <= 0 {
		maxFailures = DefaultMaxFailures
	}
	return &failureCount{maxFailures: maxFailures}
}

func (s *failureCount) ShouldTrip(callSucceeded bool) bool {
	if callSucceeded {
		s.consecutive = 0
		return false
	}
	s.consecutive++
	return s.consecutive >= s.maxFailures
}

func (s *failureCount) OnReset() {
	s.consecutive = 0
}

type failureRate struct {
	threshold float64
	window    *slidingWindow
}

// NewFailureRate 返回失败率策略: 统计最近 sampleWindow 次调用,
// 窗口填满且失败率达到 threshold (0~1] 时熔断。窗口未满时不判定,
// 避免少量样本导致误熔断。
func NewFailureRate(threshold float64, sampleWindow int) TrippingStrategy {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.5
	}
	if sampleWindow <= 0 {
		sampleWindow = 10
	}
	return &failureRate{
		threshold: threshold,
		window:    newSlidingWindow(sampleWindow),
	}
}

func (s *failureRate) ShouldTrip(callSucceeded bool) bool {
	s.window.record(callSucceeded)
	if s.window.total() < s.window.size {
		return false
	}
	return s.window.failureRate() >= s.threshold
}

func (s *failureRate) OnReset() {
	s.window.reset()
}
