package store

import (
	"context"
	"time"

	"github.com/ceyewan/aegis/store/serializer"
	"github.com/ceyewan/aegis/xerrors"
)

// State 把 Store 中的一个键绑定为类型化的共享状态单元。
//
// 键不存在时读取返回 defaultValue。Get / Set / GetAndUpdate 各自是独立的
// 存储往返: GetAndUpdate 先读后写, 两次往返之间其他进程的写入会被覆盖。
// 依赖方必须容忍这种竞态, 这里不提供 CAS。
type State[T any] struct {
	store        Store
	key          string
	defaultValue T
	ser          serializer.Serializer
	ttl          time.Duration
}

// StateOption 配置 State 的序列化与过期行为。
type StateOption func(*stateOptions)

type stateOptions struct {
	ser serializer.Serializer
	ttl time.Duration
}

// WithSerializer 指定序列化器, 默认 JSON。
func WithSerializer(s serializer.Serializer) StateOption {
	return func(o *stateOptions) {
		if s != nil {
			o.ser = s
		}
	}
}

// WithTTL 指定每次写入附带的过期时间, 默认不过期。
func WithTTL(ttl time.Duration) StateOption {
	return func(o *stateOptions) {
		o.ttl = ttl
	}
}

// NewState 创建类型化状态绑定。创建不触发任何存储访问。
func NewState[T any](s Store, key string, defaultValue T, opts ...StateOption) *State[T] {
	o := &stateOptions{ser: &serializer.JSONSerializer{}}
	for _, opt := range opts {
		opt(o)
	}
	return &State[T]{
		store:        s,
		key:          key,
		defaultValue: defaultValue,
		ser:          o.ser,
		ttl:          o.ttl,
	}
}

// Key 返回绑定的存储键。
func (st *State[T]) Key() string {
	return st.key
}

// Get 读取当前值, 键不存在时返回 defaultValue。
func (st *State[T]) Get(ctx context.Context) (T, error) {
	data, ok, err := st.store.Get(ctx, st.key)
	if err != nil {
		return st.defaultValue, err
	}
	if !ok {
		return st.defaultValue, nil
	}
	var value T
	if err := st.ser.Unmarshal(data, &value); err != nil {
		return st.defaultValue, xerrors.Wrapf(err, "unmarshal state %s", st.key)
	}
	return value, nil
}

// Set 写入新值。
func (st *State[T]) Set(ctx context.Context, value T) error {
	data, err := st.ser.Marshal(value)
	if err != nil {
		return xerrors.Wrapf(err, "marshal state %s", st.key)
	}
	return st.store.Set(ctx, st.key, data, st.ttl)
}

// GetAndUpdate 读取当前值, 应用 f 后写回, 返回更新前的值。
//
// 读与写是两次独立往返, 不是原子操作。
func (st *State[T]) GetAndUpdate(ctx context.Context, f func(T) T) (T, error) {
	old, err := st.Get(ctx)
	if err != nil {
		return st.defaultValue, err
	}
	if err := st.Set(ctx, f(old)); err != nil {
		return st.defaultValue, err
	}
	return old, nil
}
