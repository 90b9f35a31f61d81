// Package connector 提供对外部基础设施的统一连接管理。
//
// connector 将连接的建立、健康检查与关闭收敛到一个接口上,
// 上层组件(store、dlock 等)只依赖已连接的客户端, 不关心连接细节。
//
// ## 基本使用
//
//	conn, err := connector.NewRedis(&connector.RedisConfig{Addr: "localhost:6379"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//	if err := conn.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	client := conn.GetClient() // *redis.Client
package connector

import (
	"context"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/redis/go-redis/v9"
)

// Connector 定义连接器的通用生命周期。
type Connector interface {
	// Connect 建立连接并验证可用性, 幂等。
	Connect(ctx context.Context) error
	// Close 关闭连接并释放资源, 幂等。
	Close() error
	// HealthCheck 主动探测一次连接健康状态。
	HealthCheck(ctx context.Context) error
	// IsHealthy 返回最近一次探测的结果, 不触发网络请求。
	IsHealthy() bool
	// Name 返回连接器实例名, 用于日志与指标标签。
	Name() string
}

// TypedConnector 在 Connector 之上暴露具体类型的客户端。
type TypedConnector[T any] interface {
	Connector
	// GetClient 返回底层客户端。必须在 Connect 成功之后调用。
	GetClient() T
}

// RedisConnector 是 Redis 连接器。
type RedisConnector interface {
	TypedConnector[*redis.Client]
}

// EtcdConnector 是 etcd 连接器。
type EtcdConnector interface {
	TypedConnector[*clientv3.Client]
}
