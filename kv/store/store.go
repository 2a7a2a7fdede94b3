package store

import (
	"context"
	"time"

	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrConditionFailed = errors.New("condition failed")
)

func init() {
	ref.MustRegisterT[*MapStore](NewMapStoreWithOptions)
	ref.MustRegisterT[*FreeCacheStore](NewFreeCacheStoreWithOptions)
	ref.MustRegisterT[*BoltDBStore](NewBoltDBStoreWithOptions)
	ref.MustRegisterT[*RedisStore](NewRedisStoreWithOptions)
	ref.MustRegisterT[*PebbleStore](NewPebbleStoreWithOptions)
	ref.MustRegisterT[*LevelDBStore](NewLevelDBStoreWithOptions)
	ref.MustRegisterT[*TieredStore](NewTieredStoreWithOptions)
	ref.MustRegisterT[*ObservableStore](NewObservableStoreWithOptions)
}

// setOptions 用于设置 KV 数据时的选项
type setOptions struct {
	Expiration time.Duration
	IfNotExist bool
}

// SetOption 用于设置 KV 数据时的选项
type SetOption func(*setOptions)

func WithExpiration(expiration time.Duration) SetOption {
	return func(options *setOptions) {
		options.Expiration = expiration
	}
}

func WithIfNotExist() SetOption {
	return func(options *setOptions) {
		options.IfNotExist = true
	}
}

func applySetOptions(opts []SetOption) *setOptions {
	options := &setOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// Store 缓存存储接口，键为字符串，值为序列化后的字节
type Store interface {
	// Set 设置键值对，WithIfNotExist 时键存在则返回 ErrConditionFailed
	Set(ctx context.Context, key string, value []byte, opts ...SetOption) error
	// Get 获取键对应的值，键不存在或已过期时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Del 删除键，键不存在时也返回成功
	Del(ctx context.Context, key string) error
	// DelPrefix 删除所有以 prefix 开头的键
	DelPrefix(ctx context.Context, prefix string) error
	Close() error
}

// NewStoreWithOptions 通过 ref 创建存储，Namespace 为空时默认为本包
func NewStoreWithOptions(options *ref.TypeOptions) (Store, error) {
	namespace, _ := ref.TypeName[*MapStore]()
	store, err := ref.NewAs[Store](options, namespace)
	if err != nil {
		return nil, errors.WithMessage(err, "create store failed")
	}
	return store, nil
}
