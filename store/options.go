package store

import (
	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
)

// Option 存储组件选项函数
type Option func(*options)

type options struct {
	logger    clog.Logger
	redisConn connector.RedisConnector
	etcdConn  connector.EtcdConnector
}

// WithLogger 注入日志记录器
// 组件内部会自动追加 Namespace: logger.WithNamespace("store")
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("store")
		}
	}
}

// WithRedisConnector 注入 Redis 连接器 (仅用于 redis driver)
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		o.redisConn = conn
	}
}

// WithEtcdConnector 注入 etcd 连接器 (仅用于 etcd driver)
func WithEtcdConnector(conn connector.EtcdConnector) Option {
	return func(o *options) {
		o.etcdConn = conn
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Module("store")
	}
	return o
}
