package dlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/connector"
	"github.com/ceyewan/aegis/metrics"
	"github.com/ceyewan/aegis/xerrors"
)

// releaseScript 仅当 token 匹配时删除, 防止误删他人持有的锁
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// renewScript 仅当 token 匹配时续期
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

type redisLocker struct {
	client *redis.Client
	cfg    *Config
	logger clog.Logger
	meter  metrics.Meter
	locks  map[string]*redisLockEntry
	mu     sync.Mutex
}

type redisLockEntry struct {
	key        string
	token      string
	expiration time.Duration
	renewStop  chan struct{}
	renewDone  chan struct{}
}

// NewRedis 创建 Redis 分布式锁。
func NewRedis(conn connector.RedisConnector, cfg *Config, opts ...Option) (Locker, error) {
	if conn == nil {
		return nil, ErrConnectorNil
	}
	if cfg == nil {
		return nil, ErrConfigNil
	}
	cfg.setDefaults()

	opt := applyOptions(opts...)
	return &redisLocker{
		client: conn.GetClient(),
		cfg:    cfg,
		logger: opt.logger.With(clog.String("driver", "redis")),
		meter:  opt.meter,
		locks:  make(map[string]*redisLockEntry),
	}, nil
}

func (l *redisLocker) Lock(ctx context.Context, key string, opts ...LockOption) error {
	// 等待自己持有的锁只会死锁, 直接报错
	l.mu.Lock()
	_, held := l.locks[key]
	l.mu.Unlock()
	if held {
		return xerrors.Wrapf(ErrLockAlreadyHeld, "key: %s", key)
	}

	for {
		acquired, err := l.TryLock(ctx, key, opts...)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.RetryInterval):
		}
	}
}

func (l *redisLocker) TryLock(ctx context.Context, key string, opts ...LockOption) (bool, error) {
	options := &lockOptions{TTL: l.cfg.DefaultTTL}
	for _, opt := range opts {
		opt(options)
	}
	if options.TTL <= 0 {
		options.TTL = 10 * time.Second
	}

	// 同一个 locker 重复获取同一把锁按占用处理
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		l.record(ctx, MetricLockFailed)
		return false, nil
	}
	l.mu.Unlock()

	token, err := newToken()
	if err != nil {
		return false, err
	}
	redisKey := l.getRedisKey(key)

	acquired, err := l.client.SetNX(ctx, redisKey, token, options.TTL).Result()
	if err != nil {
		return false, xerrors.Wrap(err, "acquire lock")
	}
	if !acquired {
		l.record(ctx, MetricLockFailed)
		return false, nil
	}

	entry := &redisLockEntry{
		key:        key,
		token:      token,
		expiration: options.TTL,
		renewStop:  make(chan struct{}),
		renewDone:  make(chan struct{}),
	}

	// 再次检查本地状态, 避免并发 TryLock 同时持有
	l.mu.Lock()
	if _, exists := l.locks[key]; exists {
		l.mu.Unlock()
		_, _ = l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Result()
		l.record(ctx, MetricLockFailed)
		return false, nil
	}
	l.locks[key] = entry
	l.mu.Unlock()

	go l.watchdog(entry, redisKey)

	l.record(ctx, MetricLockAcquired)
	l.logger.DebugContext(ctx, "lock acquired", clog.String("key", key))
	return true, nil
}

func (l *redisLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	entry, exists := l.locks[key]
	if !exists {
		l.mu.Unlock()
		return xerrors.Wrapf(ErrLockNotHeld, "key: %s", key)
	}
	delete(l.locks, key)
	l.mu.Unlock()

	// 先停掉续约, 避免 Unlock 与 Watchdog 竞争
	close(entry.renewStop)
	<-entry.renewDone

	result, err := l.client.Eval(ctx, releaseScript, []string{l.getRedisKey(key)}, entry.token).Result()
	if err != nil {
		return xerrors.Wrap(err, "release lock")
	}
	if result.(int64) == 0 {
		return xerrors.Wrapf(ErrOwnershipLost, "key: %s", key)
	}

	l.record(ctx, MetricLockReleased)
	l.logger.DebugContext(ctx, "lock released", clog.String("key", key))
	return nil
}

// watchdog 周期性续期, 直到 Unlock 或所有权丢失。
func (l *redisLocker) watchdog(entry *redisLockEntry, redisKey string) {
	defer close(entry.renewDone)

	renewInterval := entry.expiration / 3
	if renewInterval < time.Second {
		renewInterval = time.Second
	}
	ticker := time.NewTicker(renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-entry.renewStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			res, err := l.client.Eval(ctx, renewScript,
				[]string{redisKey}, entry.token, entry.expiration.Milliseconds()).Result()
			cancel()

			if err != nil {
				l.logger.Error("watchdog renew failed", clog.String("key", entry.key), clog.Error(err))
				return
			}
			if res.(int64) == 0 {
				l.logger.Warn("watchdog lost ownership", clog.String("key", entry.key))
				return
			}
		}
	}
}

func (l *redisLocker) getRedisKey(key string) string {
	return l.cfg.Prefix + key
}

func (l *redisLocker) record(ctx context.Context, name string) {
	if l.meter == nil {
		return
	}
	if counter, err := l.meter.Counter(name, "dlock operations"); err == nil && counter != nil {
		counter.Inc(ctx, metrics.L(LabelDriver, "redis"))
	}
}

// Close Redis Locker 不拥有底层连接, 是 no-op
func (l *redisLocker) Close() error {
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", xerrors.Wrap(err, "generate lock token")
	}
	return hex.EncodeToString(buf), nil
}
