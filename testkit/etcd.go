package testkit

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/aegis/connector"
)

// NewEtcdContainerConfig 使用 testcontainers 启动 etcd 容器并返回配置。
// 设置 AEGIS_TEST_ETCD_ENDPOINTS (逗号分隔) 时跳过容器, 直接使用给定地址。
// 容器生命周期由 t.Cleanup 管理。
func NewEtcdContainerConfig(t *testing.T) *connector.EtcdConfig {
	if endpoints := os.Getenv("AEGIS_TEST_ETCD_ENDPOINTS"); endpoints != "" {
		return &connector.EtcdConfig{
			Name:      "test-etcd",
			Endpoints: strings.Split(endpoints, ","),
		}
	}

	ctx := context.Background()

	container, err := tcetcd.Run(ctx, "quay.io/coreos/etcd:v3.5.9")
	require.NoError(t, err, "failed to start etcd container")

	host, err := container.Host(ctx)
	require.NoError(t, err)

	mappedPort, err := container.MappedPort(ctx, "2379")
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	return &connector.EtcdConfig{
		Name:      "test-etcd",
		Endpoints: []string{fmt.Sprintf("%s:%s", host, mappedPort.Port())},
	}
}

// NewEtcdConnector 获取已连接的 etcd 连接器(基于 testcontainers)。
// 生命周期由 t.Cleanup 管理。
func NewEtcdConnector(t *testing.T) connector.EtcdConnector {
	cfg := NewEtcdContainerConfig(t)
	conn, err := connector.NewEtcd(cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create etcd connector")

	require.NoError(t, conn.Connect(context.Background()), "failed to connect to etcd")

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}

// NewEtcdClient 获取原生 etcd 客户端(基于 testcontainers)
func NewEtcdClient(t *testing.T) *clientv3.Client {
	return NewEtcdConnector(t).GetClient()
}
