package clog

import (
	"fmt"
	"strings"
)

// TimeFormat 日志时间戳格式
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config 日志配置
//
// 配置项：
//
//	Level: 日志级别 (debug|info|warn|error|fatal)
//	Format: 输出格式 (json|console)
//	Output: 输出目标 (stdout|stderr|文件路径)
//	AddSource: 是否记录调用位置
//	SourceRoot: 源码路径前缀，用于裁剪显示的文件路径
type Config struct {
	Level      string `json:"level" yaml:"level"`
	Format     string `json:"format" yaml:"format"`
	Output     string `json:"output" yaml:"output"`
	AddSource  bool   `json:"addSource" yaml:"addSource"`
	SourceRoot string `json:"sourceRoot" yaml:"sourceRoot"`
}

// NewDefaultConfig 返回生产环境默认配置：info 级别 + json 格式
func NewDefaultConfig(service string) *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		Output:     "stdout",
		SourceRoot: service,
	}
}

// NewDevDefaultConfig 返回开发环境默认配置：debug 级别 + console 格式 + 源码位置
func NewDevDefaultConfig(service string) *Config {
	return &Config{
		Level:      "debug",
		Format:     "console",
		Output:     "stdout",
		AddSource:  true,
		SourceRoot: service,
	}
}

// validate 校验配置并填充默认值
func (c *Config) validate() error {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "console"
	}
	if c.Output == "" {
		c.Output = "stdout"
	}

	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	format := strings.ToLower(c.Format)
	if format != "json" && format != "console" {
		return fmt.Errorf("invalid format: %s, must be json or console", c.Format)
	}
	// Output 可以是 stdout、stderr 或文件路径，不做严格校验
	return nil
}
