package store

import (
	"context"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/xerrors"
)

type etcdStore struct {
	client *clientv3.Client
	prefix string
	logger clog.Logger
}

// NewEtcd 基于已连接的 etcd 连接器创建存储。
func NewEtcd(conn connector.EtcdConnector, cfg *Config, opts ...Option) (Store, error) {
	if conn == nil {
		return nil, ErrNilConnector
	}
	if cfg == nil {
		cfg = &Config{}
	}

	opt := applyOptions(opts...)
	return &etcdStore{
		client: conn.GetClient(),
		prefix: cfg.Prefix,
		logger: opt.logger.With(clog.String("driver", "etcd")),
	}, nil
}

func (s *etcdStore) getKey(key string) string {
	return s.prefix + key
}

func (s *etcdStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	resp, err := s.client.Get(ctx, s.getKey(key))
	if err != nil {
		return nil, false, xerrors.Wrapf(err, "etcd get %s", key)
	}
	if len(resp.Kvs) == 0 {
		return nil, false, nil
	}
	return resp.Kvs[0].Value, true, nil
}

func (s *etcdStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var putOpts []clientv3.OpOption
	if ttl > 0 {
		// etcd lease 粒度为秒, 不足 1s 向上取整
		seconds := int64(ttl / time.Second)
		if ttl%time.Second > 0 || seconds < 1 {
			seconds++
		}
		lease, err := s.client.Grant(ctx, seconds)
		if err != nil {
			return xerrors.Wrapf(err, "etcd grant lease for %s", key)
		}
		putOpts = append(putOpts, clientv3.WithLease(lease.ID))
	}
	if _, err := s.client.Put(ctx, s.getKey(key), string(value), putOpts...); err != nil {
		return xerrors.Wrapf(err, "etcd put %s", key)
	}
	return nil
}

// Close 不关闭底层连接, 连接由 Connector 管理。
func (s *etcdStore) Close() error {
	return nil
}
