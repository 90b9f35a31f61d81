package breaker

// 熔断器指标名称
const (
	// MetricRequestsTotal 经过熔断器的请求总数
	MetricRequestsTotal = "breaker_requests_total"
	// MetricRequestDuration 受保护调用的耗时分布 (秒)
	MetricRequestDuration = "breaker_request_duration_seconds"
	// MetricStateChanges 状态变更次数
	MetricStateChanges = "breaker_state_changes_total"
)

// 指标标签
const (
	// LabelKey 熔断器标识
	LabelKey = "key"
	// LabelResult 请求结果: success / failure / rejected
	LabelResult = "result"
	// LabelFromState 变更前状态
	LabelFromState = "from_state"
	// LabelToState 变更后状态
	LabelToState = "to_state"
	// LabelService gRPC 服务名
	LabelService = "service"
	// LabelMethod gRPC 方法名
	LabelMethod = "method"
)

// LabelResult 的取值
const (
	resultSuccess  = "success"
	resultFailure  = "failure"
	resultRejected = "rejected"
)
