package config

import (
	"context"
	"strings"
)

// Config 配置加载行为。
type Config struct {
	// Name 配置文件名称 (不含扩展名), 默认 "config"
	Name string `json:"name" yaml:"name"`
	// Paths 配置文件搜索路径, 默认 [".", "./config"]
	Paths []string `json:"paths" yaml:"paths"`
	// FileType 配置文件类型 (yaml / json / toml), 默认 "yaml"
	FileType string `json:"file_type" yaml:"file_type"`
	// EnvPrefix 环境变量前缀, 默认 "AEGIS"
	EnvPrefix string `json:"env_prefix" yaml:"env_prefix"`
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = "AEGIS"
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
}

// New 创建配置加载器, cfg 为 nil 时使用默认配置。
//
// 创建不触发加载, 调用 Load 后配置才可用。
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	c.setDefaults()

	return newLoader(&c, applyOptions(opts...)), nil
}

// MustLoad 创建加载器并立即加载, 失败时 panic, 适合 main 启动路径。
func MustLoad(cfg *Config, opts ...Option) Loader {
	l, err := New(cfg, opts...)
	if err == nil {
		err = l.Load(context.Background())
	}
	if err != nil {
		panic(err)
	}
	return l
}
