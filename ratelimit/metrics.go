package ratelimit

// 限流指标名称
const (
	// MetricAllowed 放行的请求数
	MetricAllowed = "ratelimit_allowed_total"
	// MetricDenied 被限流的请求数
	MetricDenied = "ratelimit_denied_total"
	// MetricTasks Limiter 执行的任务数
	MetricTasks = "ratelimit_tasks_total"
)

// 指标标签
const (
	// LabelKey 限流键
	LabelKey = "key"
	// LabelMode 令牌桶模式: standalone / distributed
	LabelMode = "mode"
	// LabelResult 任务结果: completed / failed / cancelled
	LabelResult = "result"
)

const (
	modeDistributed = "distributed"
	modeStandalone  = "standalone"

	taskCompleted = "completed"
	taskFailed    = "failed"
	taskCancelled = "cancelled"
)
