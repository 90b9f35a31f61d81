package connector

import (
	"context"
	"sync"
	"sync/atomic"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// healthProbeKey 仅用于连通性探测, 不要求存在。
const healthProbeKey = "aegis/connector/health"

type etcdConnector struct {
	cfg    *EtcdConfig
	client *clientv3.Client
	logger clog.Logger

	mu      sync.Mutex
	healthy atomic.Bool
	closed  bool

	connectTotal     metrics.Counter
	healthCheckTotal metrics.Counter
}

// NewEtcd 创建 etcd 连接器。创建不触发网络请求, 连接在 Connect 时建立。
func NewEtcd(cfg *EtcdConfig, opts ...Option) (EtcdConnector, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(ErrConfig, "config 不能为 nil")
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Wrapf(ErrConfig, "etcd config: %v", err)
	}

	opt := applyOptions(opts...)
	logger := opt.logger.With(
		clog.String("connector", "etcd"),
		clog.String("name", cfg.Name),
	)

	c := &etcdConnector{
		cfg:    cfg,
		logger: logger,
	}
	if opt.meter != nil {
		var err error
		c.connectTotal, err = opt.meter.Counter(
			"connector_etcd_connect_total", "etcd 连接尝试总数")
		if err != nil {
			logger.Warn("创建 connect 指标失败", clog.Error(err))
		}
		c.healthCheckTotal, err = opt.meter.Counter(
			"connector_etcd_health_check_total", "etcd 健康检查总数")
		if err != nil {
			logger.Warn("创建 health check 指标失败", clog.Error(err))
		}
	}
	return c, nil
}

func (c *etcdConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrAlreadyClosed
	}
	if c.client == nil {
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   c.cfg.Endpoints,
			DialTimeout: c.cfg.DialTimeout,
			Username:    c.cfg.Username,
			Password:    c.cfg.Password,
		})
		if err != nil {
			c.recordConnect(ctx, false)
			return xerrors.Wrapf(ErrConnection, "create etcd client: %v", err)
		}
		c.client = client
	}
	if err := c.probe(ctx); err != nil {
		c.healthy.Store(false)
		c.recordConnect(ctx, false)
		c.logger.Error("etcd 连接失败", clog.Any("endpoints", c.cfg.Endpoints), clog.Error(err))
		return xerrors.Wrapf(ErrConnection, "etcd probe: %v", err)
	}
	c.healthy.Store(true)
	c.recordConnect(ctx, true)
	c.logger.Info("etcd 连接成功", clog.Any("endpoints", c.cfg.Endpoints))
	return nil
}

func (c *etcdConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.healthy.Store(false)
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			return xerrors.Wrap(err, "close etcd client")
		}
	}
	c.logger.Info("etcd 连接已关闭")
	return nil
}

func (c *etcdConnector) HealthCheck(ctx context.Context) error {
	if c.client == nil {
		return ErrNotConnected
	}
	err := c.probe(ctx)
	if c.healthCheckTotal != nil {
		c.healthCheckTotal.Inc(ctx, metrics.L("result", resultLabel(err == nil)))
	}
	if err != nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrHealthCheck, "etcd probe: %v", err)
	}
	c.healthy.Store(true)
	return nil
}

func (c *etcdConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *etcdConnector) Name() string {
	return c.cfg.Name
}

// GetClient 返回底层客户端, Connect 成功前返回 nil。
func (c *etcdConnector) GetClient() *clientv3.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// probe 以一次带超时的 Get 验证连通性, key 不存在同样视为健康。
func (c *etcdConnector) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	_, err := c.client.Get(probeCtx, healthProbeKey)
	return err
}

func (c *etcdConnector) recordConnect(ctx context.Context, ok bool) {
	if c.connectTotal != nil {
		c.connectTotal.Inc(ctx, metrics.L("result", resultLabel(ok)))
	}
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
