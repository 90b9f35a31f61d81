// Package store 提供 aegis 各组件共享的外部状态存储抽象。
//
// Store 是一个极简的字节级键值契约: Get / Set / Close。没有事务、没有
// CAS、没有批量操作。breaker 与 ratelimit 的跨进程协调状态全部通过这一层
// 读写, 多个进程指向同一个 Store 时即共享同一份协调视图。
//
// 提供三种驱动:
//   - Redis (NewRedis): 生产环境首选, 通过 connector.RedisConnector 注入
//   - etcd (NewEtcd): 已有 etcd 集群时的替代后端
//   - Memory (NewMemory): 进程内存储, 用于测试与单机场景
//
// ## 基本使用
//
//	conn, _ := connector.NewRedis(&connector.RedisConfig{Addr: "localhost:6379"})
//	_ = conn.Connect(ctx)
//	st, _ := store.NewRedis(conn, &store.Config{Prefix: "myapp:"})
//
//	// 类型化绑定
//	counter := store.NewState[int64](st, "bucket:api", 100)
//	v, _ := counter.Get(ctx)
package store

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/xerrors"
)

// Store 定义共享状态存储的字节级契约。
//
// 所有实现必须线程安全。Get 与 Set 是相互独立的往返, 不提供原子的
// 读改写。依赖方在设计上必须容忍两次往返之间的并发写入。
type Store interface {
	// Get 读取 key 对应的原始字节。key 不存在时返回 (nil, false, nil),
	// 只有存储本身不可用时才返回非 nil 错误。
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set 写入 key 对应的原始字节。ttl > 0 时键在 ttl 后过期,
	// ttl == 0 表示不过期。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close 释放驱动持有的资源。外部连接(Redis/etcd)由 Connector 管理,
	// 对应驱动的 Close 不会关闭底层连接。
	Close() error
}

// New 根据配置创建 Store 实例。
//
// Driver 为 "redis"(默认) 或 "etcd" 时需要通过 WithRedisConnector /
// WithEtcdConnector 注入对应连接器; "memory" 创建进程内存储。
func New(cfg *Config, opts ...Option) (Store, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrInvalidConfig, "config 不能为 nil")
	}

	opt := applyOptions(opts...)

	switch cfg.Driver {
	case DriverMemory:
		return NewMemory(cfg.Memory, opts...)
	case DriverEtcd:
		if opt.etcdConn == nil {
			return nil, xerrors.Wrap(ErrNilConnector, "etcd driver 需要 WithEtcdConnector")
		}
		return NewEtcd(opt.etcdConn, cfg, opts...)
	case DriverRedis, "":
		if opt.redisConn == nil {
			return nil, xerrors.Wrap(ErrNilConnector, "redis driver 需要 WithRedisConnector")
		}
		return NewRedis(opt.redisConn, cfg, opts...)
	default:
		return nil, xerrors.Wrapf(ErrInvalidConfig, "未知 driver: %q", cfg.Driver)
	}
}
