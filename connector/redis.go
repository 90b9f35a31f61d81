package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/xerrors"
	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

type redisConnector struct {
	cfg    *RedisConfig
	client *redis.Client
	logger clog.Logger

	mu      sync.Mutex
	healthy atomic.Bool
	closed  bool
}

// NewRedis 创建 Redis 连接器。创建不触发网络请求, 连接在 Connect 时建立。
func NewRedis(cfg *RedisConfig, opts ...Option) (RedisConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "config 不能为 nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "redis config: %v", err)
	}

	opt := applyOptions(opts...)
	logger := opt.logger.With(
		clog.String("connector", "redis"),
		clog.String("name", cfg.Name),
	)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})

	return &redisConnector{
		cfg:    cfg,
		client: client,
		logger: logger,
	}, nil
}

func (c *redisConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		c.logger.Error("redis 连接失败", clog.String("addr", c.cfg.Addr), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "ping %s: %v", c.cfg.Addr, err)
	}
	c.healthy.Store(true)
	c.logger.Info("redis 连接成功", clog.String("addr", c.cfg.Addr), clog.Int("db", c.cfg.DB))
	return nil
}

func (c *redisConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.healthy.Store(false)
	if err := c.client.Close(); err != nil {
		return xerrors.Wrap(err, "close redis client")
	}
	c.logger.Info("redis 连接已关闭")
	return nil
}

func (c *redisConnector) HealthCheck(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "redis ping: %v", err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *redisConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *redisConnector) Name() string {
	return c.cfg.Name
}

func (c *redisConnector) GetClient() *redis.Client {
	return c.client
}
