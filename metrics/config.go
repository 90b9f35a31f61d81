package metrics

// Config 指标系统配置
//
// 支持从配置文件加载：
//
//	cfg := &metrics.Config{}
//	loader.UnmarshalKey("metrics", cfg)
//
// YAML 示例：
//
//	metrics:
//	  enabled: true
//	  service_name: "order-service"
//	  version: "v1.2.3"
//	  port: 9090
//	  path: "/metrics"
type Config struct {
	// Enabled 为 false 时 New 返回 noop Meter，所有操作为空
	Enabled bool `mapstructure:"enabled"`

	// ServiceName 作为 OpenTelemetry Resource 的 service.name 属性
	ServiceName string `mapstructure:"service_name"`

	// Version 作为 service.version 属性
	Version string `mapstructure:"version"`

	// Port 大于 0 时启动 Prometheus HTTP 服务器暴露指标
	Port int `mapstructure:"port"`

	// Path 指标暴露路径，必须以 "/" 开头
	Path string `mapstructure:"path"`
}

// NewDefaultConfig 返回启用状态的默认配置：9090 端口 + /metrics 路径
func NewDefaultConfig(serviceName, version string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     version,
		Port:        9090,
		Path:        "/metrics",
	}
}

// NewDisabledConfig 返回禁用状态的配置，适合不需要指标的场景
func NewDisabledConfig() *Config {
	return &Config{Enabled: false}
}
