package dlock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/xerrors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{name: "nil config", cfg: nil, wantErr: true},
		{name: "缺少 driver", cfg: &Config{}, wantErr: true},
		{name: "非法 driver", cfg: &Config{Driver: "zookeeper"}, wantErr: true},
		{name: "redis driver", cfg: &Config{Driver: DriverRedis}},
		{name: "etcd driver", cfg: &Config{Driver: DriverEtcd}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := &Config{Driver: DriverRedis}
	cfg.setDefaults()
	assert.Equal(t, 10*time.Second, cfg.DefaultTTL)
	assert.Equal(t, 100*time.Millisecond, cfg.RetryInterval)
}

func TestNewWithoutConnector(t *testing.T) {
	t.Run("nil config", func(t *testing.T) {
		_, err := New(nil)
		assert.True(t, xerrors.Is(err, ErrConfigNil))
	})

	t.Run("redis 缺少连接器", func(t *testing.T) {
		_, err := New(&Config{Driver: DriverRedis})
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ErrConnectorNil))
	})

	t.Run("etcd 缺少连接器", func(t *testing.T) {
		_, err := New(&Config{Driver: DriverEtcd})
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ErrConnectorNil))
	})
}

func TestNewRedisNilArgs(t *testing.T) {
	_, err := NewRedis(nil, &Config{Driver: DriverRedis})
	assert.True(t, xerrors.Is(err, ErrConnectorNil))
}

// TestHeldKeyLocalSemantics 覆盖本地持有分支: 不触达后端即可判定,
// TryLock 按占用返回 false, Lock 立即报错。
func TestHeldKeyLocalSemantics(t *testing.T) {
	ctx := context.Background()

	t.Run("redis", func(t *testing.T) {
		l := &redisLocker{
			cfg:    &Config{Driver: DriverRedis, DefaultTTL: 10 * time.Second},
			logger: clog.Discard(),
			locks:  map[string]*redisLockEntry{"held": {}},
		}

		acquired, err := l.TryLock(ctx, "held")
		require.NoError(t, err)
		assert.False(t, acquired)

		err = l.Lock(ctx, "held")
		assert.True(t, xerrors.Is(err, ErrLockAlreadyHeld))
	})

	t.Run("etcd", func(t *testing.T) {
		l := &etcdLocker{
			cfg:    &Config{Driver: DriverEtcd, DefaultTTL: 10 * time.Second},
			logger: clog.Discard(),
			locks:  map[string]*etcdLockEntry{"held": {}},
		}

		acquired, err := l.TryLock(ctx, "held")
		require.NoError(t, err)
		assert.False(t, acquired)

		err = l.Lock(ctx, "held")
		assert.True(t, xerrors.Is(err, ErrLockAlreadyHeld))
	})
}

func TestNewToken(t *testing.T) {
	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)

	assert.Len(t, a, 32, "16 字节 hex 编码后应为 32 字符")
	assert.NotEqual(t, a, b, "token 必须唯一")
}
