package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/xerrors"
)

type redisStore struct {
	client *redis.Client
	prefix string
	logger clog.Logger
}

// NewRedis 基于已连接的 Redis 连接器创建存储。
func NewRedis(conn connector.RedisConnector, cfg *Config, opts ...Option) (Store, error) {
	if conn == nil {
		return nil, ErrNilConnector
	}
	if cfg == nil {
		cfg = &Config{}
	}

	opt := applyOptions(opts...)
	return &redisStore{
		client: conn.GetClient(),
		prefix: cfg.Prefix,
		logger: opt.logger.With(clog.String("driver", "redis")),
	}, nil
}

func (s *redisStore) getKey(key string) string {
	return s.prefix + key
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, s.getKey(key)).Bytes()
	if err != nil {
		if xerrors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, xerrors.Wrapf(err, "redis get %s", key)
	}
	return data, true, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.getKey(key), value, ttl).Err(); err != nil {
		return xerrors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

// Close 不关闭底层连接, 连接由 Connector 管理。
func (s *redisStore) Close() error {
	return nil
}
