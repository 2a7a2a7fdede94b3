package store

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type BoltDBStoreOptions struct {
	// 数据库文件路径，目录不存在时自动创建
	DBPath string `cfg:"dbPath" validate:"required"`

	// 存放数据的 bucket
	Bucket string `cfg:"bucket" def:"cache"`

	// 获取文件锁的等待时间，0 表示无限期等待
	Timeout time.Duration `cfg:"timeout" def:"1s"`

	// 写入后不 fsync，缓存场景下可以接受
	NoSync bool `cfg:"noSync"`

	// freelist 类型：array, hashmap
	FreelistType string `cfg:"freelistType" def:"array" validate:"omitempty,oneof=array hashmap"`
}

type BoltDBStore struct {
	db     *bolt.DB
	bucket []byte
}

func NewBoltDBStoreWithOptions(options *BoltDBStoreOptions) (*BoltDBStore, error) {
	if options.DBPath == "" {
		return nil, errors.New("dbPath is required")
	}
	if err := os.MkdirAll(filepath.Dir(options.DBPath), 0755); err != nil {
		return nil, errors.Wrapf(err, "create directory for %s failed", options.DBPath)
	}

	freelistType := bolt.FreelistArrayType
	if options.FreelistType == "hashmap" {
		freelistType = bolt.FreelistMapType
	}

	db, err := bolt.Open(options.DBPath, 0644, &bolt.Options{
		Timeout:      options.Timeout,
		NoSync:       options.NoSync,
		FreelistType: freelistType,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt open %s failed", options.DBPath)
	}

	bucket := []byte(options.Bucket)
	if len(bucket) == 0 {
		bucket = []byte("cache")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "create bucket %s failed", bucket)
	}

	return &BoltDBStore{db: db, bucket: bucket}, nil
}

func (s *BoltDBStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	options := applySetOptions(opts)

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if options.IfNotExist {
			if buf := b.Get([]byte(key)); buf != nil {
				if _, expired := decodeExpire(buf); !expired {
					return ErrConditionFailed
				}
			}
		}
		return b.Put([]byte(key), encodeExpire(value, options.Expiration))
	})
	if err == ErrConditionFailed {
		return err
	}
	return errors.Wrapf(err, "bolt put %s failed", key)
}

func (s *BoltDBStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		buf := tx.Bucket(s.bucket).Get([]byte(key))
		if buf == nil {
			return nil
		}
		v, expired := decodeExpire(buf)
		if !expired {
			value, found = v, true
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt get %s failed", key)
	}
	if !found {
		return nil, ErrKeyNotFound
	}
	return value, nil
}

func (s *BoltDBStore) Del(ctx context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	return errors.Wrapf(err, "bolt delete %s failed", key)
}

func (s *BoltDBStore) DelPrefix(ctx context.Context, prefix string) error {
	p := []byte(prefix)
	err := s.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Seek(p) {
			if err := c.Delete(); err != nil {
				return err
			}
		}
		return nil
	})
	return errors.Wrapf(err, "bolt delete prefix %s failed", prefix)
}

func (s *BoltDBStore) Close() error {
	return s.db.Close()
}
