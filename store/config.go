package store

// 支持的存储驱动
const (
	DriverRedis  = "redis"
	DriverEtcd   = "etcd"
	DriverMemory = "memory"
)

// Config 存储组件统一配置
type Config struct {
	// Driver 存储驱动: "redis"(默认) | "etcd" | "memory"
	Driver string `json:"driver" yaml:"driver"`

	// Prefix 全局 Key 前缀 (e.g., "aegis:v1:")
	Prefix string `json:"prefix" yaml:"prefix"`

	// Memory 进程内存储配置, 仅 Driver 为 "memory" 时生效
	Memory *MemoryConfig `json:"memory" yaml:"memory"`
}

// MemoryConfig 进程内存储配置
type MemoryConfig struct {
	// Capacity 最大条目数 (默认: 10000)
	Capacity int `json:"capacity" yaml:"capacity"`
}
