// Package dlock 提供分布式锁组件, 支持 Redis 与 etcd 两种后端。
//
// Redis 后端基于 SetNX + 随机 token + Lua 脚本释放, 持有期间由 Watchdog
// 自动续期; etcd 后端基于 concurrency.Session/Mutex, 由 session KeepAlive
// 续期。breaker 组件可以通过 WithProbeLock 注入 Locker, 把半开探测的
// 选举收敛到集群内仅一个进程。
//
// ## 基本使用
//
//	redisConn, _ := connector.NewRedis(redisConfig)
//	locker, _ := dlock.NewRedis(redisConn, &dlock.Config{
//	    Prefix:     "myapp:lock:",
//	    DefaultTTL: 10 * time.Second,
//	}, dlock.WithLogger(logger))
//
//	if err := locker.Lock(ctx, "order:1001"); err != nil {
//	    return err
//	}
//	defer locker.Unlock(ctx, "order:1001")
package dlock

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/xerrors"
)

// DriverType 定义支持的后端类型
type DriverType string

const (
	DriverRedis DriverType = "redis"
	DriverEtcd  DriverType = "etcd"
)

// Config 组件静态配置
type Config struct {
	// Driver 选择使用的后端 (redis | etcd)
	Driver DriverType `json:"driver" yaml:"driver"`

	// Prefix 锁 Key 的全局前缀, 例如 "dlock:"
	Prefix string `json:"prefix" yaml:"prefix"`

	// DefaultTTL 默认锁超时时间
	// Redis 会启动 Watchdog 自动续期; etcd 使用 Session KeepAlive 自动续期。
	DefaultTTL time.Duration `json:"default_ttl" yaml:"default_ttl"`

	// RetryInterval 加锁重试间隔 (仅 Lock 模式有效)
	RetryInterval time.Duration `json:"retry_interval" yaml:"retry_interval"`
}

func (c *Config) setDefaults() {
	if c == nil {
		return
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	switch c.Driver {
	case DriverRedis, DriverEtcd:
		return nil
	case "":
		return xerrors.New("dlock: driver is required")
	default:
		return xerrors.New("dlock: unsupported driver: " + string(c.Driver))
	}
}

// Locker 定义了分布式锁的核心行为
type Locker interface {
	// Lock 阻塞式加锁
	// 成功返回 nil, 失败返回错误
	// 如果上下文取消, 返回 context.Canceled 或 context.DeadlineExceeded
	// 锁不可重入: key 已被同一个 Locker 持有时立即返回 ErrLockAlreadyHeld,
	// 不会阻塞等待自己释放
	//
	// opts 支持的选项:
	//   - WithTTL(duration): 设置锁的超时时间
	Lock(ctx context.Context, key string, opts ...LockOption) error

	// TryLock 非阻塞式尝试加锁
	// 成功获取锁返回 true, nil
	// 锁已被占用返回 false, nil, 被同一个 Locker 持有同样按占用处理
	// 发生错误返回 false, err
	//
	// opts 支持的选项:
	//   - WithTTL(duration): 设置锁的超时时间
	TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error)

	// Unlock 释放锁
	// 只有锁的持有者才能成功释放
	Unlock(ctx context.Context, key string) error

	// Close 关闭 Locker, 释放底层资源
	// 对于 etcd 会关闭 session, 对于 Redis 是 no-op
	Close() error
}

// New 根据配置创建 Locker 实例。
// 需要通过 WithRedisConnector / WithEtcdConnector 注入对应后端的连接器。
func New(cfg *Config, opts ...Option) (Locker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := applyOptions(opts...)

	switch cfg.Driver {
	case DriverEtcd:
		if opt.etcdConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "etcd driver 需要 WithEtcdConnector")
		}
		return NewEtcd(opt.etcdConnector, cfg, opts...)
	default:
		if opt.redisConnector == nil {
			return nil, xerrors.Wrap(ErrConnectorNil, "redis driver 需要 WithRedisConnector")
		}
		return NewRedis(opt.redisConnector, cfg, opts...)
	}
}
