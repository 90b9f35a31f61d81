package testkit

import (
	"context"
	"fmt"
	"os"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/ceyewan/aegis/connector"
)

// NewRedisContainerConfig 使用 testcontainers 启动 Redis 容器并返回配置。
// 设置 AEGIS_TEST_REDIS_ADDR 时跳过容器, 直接使用给定地址。
// 容器生命周期由 t.Cleanup 管理。
func NewRedisContainerConfig(t *testing.T) *connector.RedisConfig {
	if addr := os.Getenv("AEGIS_TEST_REDIS_ADDR"); addr != "" {
		return &connector.RedisConfig{Name: "test-redis", Addr: addr}
	}

	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "failed to start Redis container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	return &connector.RedisConfig{
		Name: "test-redis",
		Addr: fmt.Sprintf("%s:%s", host, mappedPort.Port()),
	}
}

// NewRedisConnector 获取已连接的 Redis 连接器(基于 testcontainers)。
// 生命周期由 t.Cleanup 管理。
func NewRedisConnector(t *testing.T) connector.RedisConnector {
	cfg := NewRedisContainerConfig(t)
	conn, err := connector.NewRedis(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create redis connector")

	require.NoError(t, conn.Connect(context.Background()), "failed to connect to redis")

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// NewRedisClient 获取原生 Redis 客户端(基于 testcontainers)
func NewRedisClient(t *testing.T) *goredis.Client {
	return NewRedisConnector(t).GetClient()
}

// FlushRedis 清空 Redis 数据库(慎用!)
func FlushRedis(t *testing.T, client *goredis.Client) {
	if err := client.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
