package connector

import (
	"time"

	"github.com/ceyewan/aegis/xerrors"
)

// RedisConfig 是 Redis 连接器配置。
type RedisConfig struct {
	// Name 实例名, 用于日志与指标标签, 默认 "default"
	Name string `mapstructure:"name"`
	// Addr 服务地址, host:port
	Addr string `mapstructure:"addr"`
	// Password 密码, 可空
	Password string `mapstructure:"password"`
	// DB 数据库编号, 默认 0
	DB int `mapstructure:"db"`
	// PoolSize 连接池大小, 默认 10
	PoolSize int `mapstructure:"pool_size"`
	// MinIdleConns 最小空闲连接数, 默认 2
	MinIdleConns int `mapstructure:"min_idle_conns"`
	// DialTimeout 建连超时, 默认 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ReadTimeout 读超时, 默认 3s
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout 写超时, 默认 3s
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

func (c *RedisConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
}

func (c *RedisConfig) validate() error {
	if c.Addr == "" {
		return xerrors.New("redis addr 不能为空")
	}
	if c.DB < 0 {
		return xerrors.New("redis db 不能为负数")
	}
	return nil
}

// EtcdConfig 是 etcd 连接器配置。
type EtcdConfig struct {
	// Name 实例名, 用于日志与指标标签, 默认 "default"
	Name string `mapstructure:"name"`
	// Endpoints 集群地址列表
	Endpoints []string `mapstructure:"endpoints"`
	// Username 用户名, 可空
	Username string `mapstructure:"username"`
	// Password 密码, 可空
	Password string `mapstructure:"password"`
	// DialTimeout 建连超时, 默认 5s
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// Timeout 单次操作超时, 默认 3s
	Timeout time.Duration `mapstructure:"timeout"`
}

func (c *EtcdConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
}

func (c *EtcdConfig) validate() error {
	if len(c.Endpoints) == 0 {
		return xerrors.New("etcd endpoints 不能为空")
	}
	for _, ep := range c.Endpoints {
		if ep == "" {
			return xerrors.New("etcd endpoint 不能为空字符串")
		}
	}
	return nil
}
