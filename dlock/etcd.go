package dlock

import (
	"context"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

type etcdLocker struct {
	client  *clientv3.Client
	session *concurrency.Session
	cfg     *Config
	logger  clog.Logger
	meter   metrics.Meter
	locks   map[string]*etcdLockEntry
	mu      sync.Mutex
}

type etcdLockEntry struct {
	mutex      *concurrency.Mutex
	session    *concurrency.Session
	ownSession bool
}

// NewEtcd 创建 etcd 分布式锁。
// 默认 session 在创建时建立并持续 KeepAlive, Close 时释放。
func NewEtcd(conn connector.EtcdConnector, cfg *Config, opts ...Option) (Locker, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()

	opt := applyOptions(opts...)

	client := conn.GetClient()
	session, err := concurrency.NewSession(client, concurrency.WithTTL(int(cfg.DefaultTTL.Seconds())))
	if err != nil {
		return nil, xerrors.Wrap(err, "create etcd session")
	}

	return &etcdLocker{
		client:  client,
		session: session,
		cfg:     cfg,
		logger:  opt.logger.With(clog.String("driver", "etcd")),
		meter:   opt.meter,
		locks:   make(map[string]*etcdLockEntry),
	}, nil
}

func (l *etcdLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	return l.lock(ctx, key, false, opts...)
}

func (l *etcdLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	err := l.lock(ctx, key, true, opts...)
	if err != nil {
		if xerrors.Is(err, concurrency.ErrLocked) {
			l.record(ctx, MetricLockFailed)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (l *etcdLocker) lock(ctx context.Context, key string, try bool, opts ...LockOption) error {
	// 同一个 locker 持有中: TryLock 按占用处理, Lock 等自己释放只会死锁
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		if try {
			return concurrency.ErrLocked
		}
		return xerrors.Wrapf(ErrLockAlreadyHeld, "key: %s", key)
	}
	l.mu.Unlock()

	options := &lockOptions{TTL: l.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(options)
	}

	// TTL 与默认不同时为这把锁建独立 session
	session := l.session
	ownSession := false
	if options.TTL > 0 && options.TTL != l.cfg.DefaultTTL {
		var err error
		session, err = concurrency.NewSession(l.client, concurrency.WithTTL(int(options.TTL.Seconds())))
		if err != nil {
			return xerrors.Wrap(err, "create etcd session")
		}
		ownSession = true
	}

	mutex := concurrency.NewMutex(session, l.getEtcdKey(key))

	var lockErr error
	if try {
		lockErr = mutex.TryLock(ctx)
	} else {
		lockErr = mutex.Lock(ctx)
	}
	if lockErr != nil {
		if ownSession {
			_ = session.Close()
		}
		if xerrors.Is(lockErr, concurrency.ErrLocked) {
			return concurrency.ErrLocked
		}
		return xerrors.Wrap(lockErr, "acquire lock")
	}

	l.mu.Lock()
	l.locks[key] = &etcdLockEntry{mutex: mutex, session: session, ownSession: ownSession}
	l.mu.Unlock()

	l.record(ctx, MetricLockAcquired)
	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key))
	return nil
}

func (l *etcdLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	if err := entry.mutex.Unlock(ctx); err != nil {
		return xerrors.Wrap(err, "release lock")
	}
	if entry.ownSession {
		_ = entry.session.Close()
	}

	l.record(ctx, MetricLockReleased)
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

func (l *etcdLocker) getEtcdKey(key string) string {
	return l.cfg.Prefix + key
}

func (l *etcdLocker) record(ctx context.Context, name string) {
	if l.meter == nil {
		return
	}
	if counter, err := l.meter.Counter(name, "dlock operations"); err == nil && counter != nil {
		counter.Inc(ctx, metrics.L(LabelDriver, "etcd"))
	}
}

// Close 关闭默认 session
func (l *etcdLocker) Close() error {
	if l.session != nil {
		return l.session.Close()
	}
	return nil
}
