// Package config 提供统一的配置加载能力, 基于 Viper 实现。
//
// 支持多源配置与热更新, 优先级从高到低:
// 环境变量 > .env 文件 > 环境特定配置 (config.<env>.yaml) > 基础配置。
//
// ## 基本使用
//
//	loader := config.MustLoad(&config.Config{
//		Name:      "config",
//		Paths:     []string{"./config"},
//		EnvPrefix: "AEGIS",
//	})
//
//	var cfg AppConfig
//	if err := loader.Unmarshal(&cfg); err != nil {
//		panic(err)
//	}
//
// ## 热更新
//
//	ch, _ := loader.Watch(ctx, "app.debug")
//	for event := range ch {
//		fmt.Printf("配置变化: %s = %v\n", event.Key, event.Value)
//	}
package config

import (
	"context"
	"time"
)

// Loader 配置加载器, 负责加载、解析和监听配置变化。
type Loader interface {
	// Load 从所有来源加载配置并启动文件监听
	Load(ctx context.Context) error

	// Get 获取原始配置值, 键不存在时返回 nil
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体 (mapstructure 标签)
	Unmarshal(v any) error

	// UnmarshalKey 将指定 key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 订阅指定 key 的变更, ctx 取消时通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string // 配置 key
	Value     any    // 新值
	OldValue  any    // 旧值
	Source    string // 目前只有 "file"
	Timestamp time.Time
}
