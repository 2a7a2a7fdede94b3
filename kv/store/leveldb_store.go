package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

type LevelDBStoreOptions struct {
	// 数据库目录，不存在时自动创建
	DBPath string `cfg:"dbPath" validate:"required"`

	// 'sorted table' 块缓存容量，默认 8MiB
	BlockCacheCapacity int `cfg:"blockCacheCapacity" def:"8388608"`

	// memdb 大小，默认 4MiB
	WriteBuffer int `cfg:"writeBuffer" def:"4194304"`

	// 写入时是否同步到磁盘
	Sync bool `cfg:"sync"`
}

type LevelDBStore struct {
	db           *leveldb.DB
	writeOptions *opt.WriteOptions

	// 保证 IfNotExist 的读写原子性
	mu sync.Mutex
}

func NewLevelDBStoreWithOptions(options *LevelDBStoreOptions) (*LevelDBStore, error) {
	if options.DBPath == "" {
		return nil, errors.New("dbPath is required")
	}

	db, err := leveldb.OpenFile(options.DBPath, &opt.Options{
		BlockCacheCapacity: options.BlockCacheCapacity,
		WriteBuffer:        options.WriteBuffer,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "leveldb open %s failed", options.DBPath)
	}

	return &LevelDBStore{
		db:           db,
		writeOptions: &opt.WriteOptions{Sync: options.Sync},
	}, nil
}

func (s *LevelDBStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
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

	if err := s.db.Put([]byte(key), encodeExpire(value, options.Expiration), s.writeOptions); err != nil {
		return errors.Wrapf(err, "leveldb put %s failed", key)
	}
	return nil
}

func (s *LevelDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	buf, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "leveldb get %s failed", key)
	}
	value, expired := decodeExpire(buf)
	if expired {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (s *LevelDBStore) Del(ctx context.Context, key string) error {
	if err := s.db.Delete([]byte(key), s.writeOptions); err != nil {
		return errors.Wrapf(err, "leveldb delete %s failed", key)
	}
	return nil
}

func (s *LevelDBStore) DelPrefix(ctx context.Context, prefix string) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	batch := new(leveldb.Batch)
	for iter.Next() {
		batch.Delete(iter.Key())
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return errors.Wrapf(err, "leveldb iterate %s failed", prefix)
	}
	if err := s.db.Write(batch, s.writeOptions); err != nil {
		return errors.Wrapf(err, "leveldb delete prefix %s failed", prefix)
	}
	return nil
}

func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
