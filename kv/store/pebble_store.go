package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/fifo"
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

type PebbleStoreOptions struct {
	// 数据库目录，不存在时自动创建
	DBPath string `cfg:"dbPath" validate:"required"`

	// 写入时是否同步到磁盘
	Sync bool `cfg:"sync"`

	// 块缓存大小，默认 8MB
	CacheSize int64 `cfg:"cacheSize" def:"8388608"`

	// 并行加载块的上限，0 表示不限制
	LoadBlockConcurrency int64 `cfg:"loadBlockConcurrency"`

	// 缓存数据可以丢失时关闭 WAL
	DisableWAL bool `cfg:"disableWAL"`
}

type PebbleStore struct {
	db           *pebble.DB
	writeOptions *pebble.WriteOptions

	// 保证 IfNotExist 的读写原子性
	mu sync.Mutex
}

func NewPebbleStoreWithOptions(options *PebbleStoreOptions) (*PebbleStore, error) {
	if options.DBPath == "" {
		return nil, errors.New("dbPath is required")
	}

	cache := pebble.NewCache(options.CacheSize)
	defer cache.Unref()

	pebbleOptions := &pebble.Options{
		Cache:      cache,
		DisableWAL: options.DisableWAL,
	}
	if options.LoadBlockConcurrency > 0 {
		pebbleOptions.LoadBlockSema = fifo.NewSemaphore(options.LoadBlockConcurrency)
	}

	db, err := pebble.Open(options.DBPath, pebbleOptions)
	if err != nil {
		return nil, errors.Wrapf(err, "pebble open %s failed", options.DBPath)
	}

	writeOptions := pebble.NoSync
	if options.Sync {
		writeOptions = pebble.Sync
	}

	return &PebbleStore{db: db, writeOptions: writeOptions}, nil
}

func (s *PebbleStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	options := applySetOptions(opts)

	if options.IfNotExist {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, err := s.Get(ctx, key); err == nil {
			return ErrConditionFailed
		} else if err != ErrKeyNotFound {
			return err
		}
	}

	if err := s.db.Set([]byte(key), encodeExpire(value, options.Expiration), s.writeOptions); err != nil {
		return errors.Wrapf(err, "pebble set %s failed", key)
	}
	return nil
}

func (s *PebbleStore) Get(ctx context.Context, key string) ([]byte, error) {
	buf, closer, err := s.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "pebble get %s failed", key)
	}
	defer closer.Close()

	// decodeExpire 会复制数据，closer 关闭后 buf 不可再用
	value, expired := decodeExpire(buf)
	if expired {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (s *PebbleStore) Del(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(key), s.writeOptions); err != nil {
		return errors.Wrapf(err, "pebble delete %s failed", key)
	}
	return nil
}

// DelPrefix 使用 range tombstone 一次删除整个前缀区间
func (s *PebbleStore) DelPrefix(ctx context.Context, prefix string) error {
	start := []byte(prefix)
	end := prefixUpperBound(start)
	if end != nil {
		if err := s.db.DeleteRange(start, end, s.writeOptions); err != nil {
			return errors.Wrapf(err, "pebble delete range %s failed", prefix)
		}
		return nil
	}

	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: start})
	if err != nil {
		return errors.Wrapf(err, "pebble iterate %s failed", prefix)
	}
	batch := s.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := batch.Delete(iter.Key(), nil); err != nil {
			_ = iter.Close()
			_ = batch.Close()
			return errors.Wrapf(err, "pebble delete prefix %s failed", prefix)
		}
	}
	if err := iter.Close(); err != nil {
		_ = batch.Close()
		return errors.Wrapf(err, "pebble iterate %s failed", prefix)
	}
	if err := batch.Commit(s.writeOptions); err != nil {
		return errors.Wrapf(err, "pebble delete prefix %s failed", prefix)
	}
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
