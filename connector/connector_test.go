package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/xerrors"
)

func TestRedisConfigDefaults(t *testing.T) {
	cfg := &RedisConfig{Addr: "localhost:6379"}
	cfg.setDefaults()

	assert.Equal(t, "default", cfg.Name, "Name 应有默认值")
	assert.Equal(t, 10, cfg.PoolSize, "PoolSize 应有默认值")
	assert.Equal(t, 2, cfg.MinIdleConns, "MinIdleConns 应有默认值")
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
}

func TestRedisConfigValidate(t *testing.T) {
	t.Run("缺少 Addr", func(t *testing.T) {
		cfg := &RedisConfig{}
		cfg.setDefaults()
		assert.Error(t, cfg.validate())
	})

	t.Run("DB 为负数", func(t *testing.T) {
		cfg := &RedisConfig{Addr: "localhost:6379", DB: -1}
		cfg.setDefaults()
		assert.Error(t, cfg.validate())
	})

	t.Run("合法配置", func(t *testing.T) {
		cfg := &RedisConfig{Addr: "localhost:6379", DB: 1}
		cfg.setDefaults()
		assert.NoError(t, cfg.validate())
	})
}

func TestEtcdConfigValidate(t *testing.T) {
	t.Run("缺少 Endpoints", func(t *testing.T) {
		cfg := &EtcdConfig{}
		cfg.setDefaults()
		assert.Error(t, cfg.validate())
	})

	t.Run("空 Endpoint", func(t *testing.T) {
		cfg := &EtcdConfig{Endpoints: []string{"localhost:2379", ""}}
		cfg.setDefaults()
		assert.Error(t, cfg.validate())
	})

	t.Run("合法配置", func(t *testing.T) {
		cfg := &EtcdConfig{Endpoints: []string{"localhost:2379"}}
		cfg.setDefaults()
		assert.NoError(t, cfg.validate())
		assert.Equal(t, 5*time.Second, cfg.DialTimeout)
		assert.Equal(t, 3*time.Second, cfg.Timeout)
	})
}

func TestNewRedisInvalidConfig(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := NewRedis(nil)
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ErrConfig))
	})

	t.Run("缺少 Addr", func(t *testing.T) {
		_, err := NewRedis(&RedisConfig{})
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ErrConfig))
	})
}

func TestNewEtcdInvalidConfig(t *testing.T) {
	_, err := NewEtcd(nil)
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, ErrConfig))

	_, err = NewEtcd(&EtcdConfig{}, WithLogger(clog.Discard()))
	require.Error(t, err)
	assert.True(t, xerrors.Is(err, ErrConfig))
}

func TestNewRedisNoNetwork(t *testing.T) {
	// 创建连接器不应触发网络请求
	conn, err := NewRedis(&RedisConfig{
		Addr: "localhost:1", // 不可达地址
		Name: "test",
	}, WithLogger(clog.Discard()))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, "test", conn.Name())
	assert.False(t, conn.IsHealthy(), "未 Connect 时不应为健康状态")
	assert.NotNil(t, conn.GetClient())
}
