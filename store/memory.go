package store

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/aegis/clog"
	"github.com/ceyewan/aegis/xerrors"
)

// defaultMemoryTTL 未指定 TTL 时的占位过期时间(100 年, 模拟永久)。
const defaultMemoryTTL = 24 * 365 * 100 * time.Hour

type memoryStore struct {
	cache  *otter.Cache[string, []byte]
	logger clog.Logger
	closed atomic.Bool
}

// NewMemory 创建进程内存储, 用于测试与单机场景。
//
// 进程内存储不跨进程共享, 多个组件句柄传入同一个实例时共享同一份状态。
func NewMemory(cfg *MemoryConfig, opts ...Option) (Store, error) {
	if cfg == nil {
		cfg = &MemoryConfig{}
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}

	opt := applyOptions(opts...)

	// 写入过期策略, 与 Redis TTL 语义一致: 过期从写入开始计算,
	// 读取不重置 TTL。具体 TTL 在 Set 时通过 SetExpiresAfter 覆盖。
	cache, err := otter.New(&otter.Options[string, []byte]{
		MaximumSize:      cfg.Capacity,
		ExpiryCalculator: otter.ExpiryWriting[string, []byte](defaultMemoryTTL),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "build otter cache")
	}

	return &memoryStore{
		cache:  cache,
		logger: opt.logger.With(clog.String("driver", "memory")),
	}, nil
}

func (s *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.closed.Load() {
		return nil, false, ErrClosed
	}
	data, ok := s.cache.GetIfPresent(key)
	if !ok {
		return nil, false, nil
	}
	return data, true, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	// 拷贝一份, 调用方之后修改自己的切片不影响已存值
	buf := make([]byte, len(value))
	copy(buf, value)
	s.cache.Set(key, buf)
	if ttl > 0 {
		s.cache.SetExpiresAfter(key, ttl)
	}
	return nil
}

func (s *memoryStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.cache.StopAllGoroutines()
	}
	return nil
}
