package store

import (
	"bytes"
	"context"
	"time"

	"github.com/coocood/freecache"
	"github.com/pkg/errors"
)

type FreeCacheStoreOptions struct {
	// 缓存大小（字节），freecache 最小为 512KB
	Size int `cfg:"size" def:"33554432" validate:"gte=524288"`

	// Set 未指定过期时间时使用的默认 TTL
	DefaultTTL time.Duration `cfg:"defaultTTL" def:"0s"`
}

// FreeCacheStore 进程内缓存，过期精度为秒，容量不足时按近似 LRU 淘汰
type FreeCacheStore struct {
	cache      *freecache.Cache
	defaultTTL time.Duration
}

func NewFreeCacheStoreWithOptions(options *FreeCacheStoreOptions) (*FreeCacheStore, error) {
	return &FreeCacheStore{
		cache:      freecache.NewCache(options.Size),
		defaultTTL: options.DefaultTTL,
	}, nil
}

func (s *FreeCacheStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	options := applySetOptions(opts)

	if options.IfNotExist {
		if _, err := s.cache.Get([]byte(key)); err == nil {
			return ErrConditionFailed
		}
	}

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}
	expireSeconds := int(expiration / time.Second)
	if expiration > 0 && expireSeconds == 0 {
		expireSeconds = 1
	}

	if err := s.cache.Set([]byte(key), value, expireSeconds); err != nil {
		return errors.Wrapf(err, "freecache set %s failed", key)
	}
	return nil
}

func (s *FreeCacheStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.cache.Get([]byte(key))
	if err == freecache.ErrNotFound {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "freecache get %s failed", key)
	}
	return value, nil
}

func (s *FreeCacheStore) Del(ctx context.Context, key string) error {
	s.cache.Del([]byte(key))
	return nil
}

// DelPrefix 遍历全部条目，代价与缓存条目数成正比
func (s *FreeCacheStore) DelPrefix(ctx context.Context, prefix string) error {
	p := []byte(prefix)
	var keys [][]byte
	it := s.cache.NewIterator()
	for entry := it.Next(); entry != nil; entry = it.Next() {
		if bytes.HasPrefix(entry.Key, p) {
			keys = append(keys, entry.Key)
		}
	}
	for _, k := range keys {
		s.cache.Del(k)
	}
	return nil
}

func (s *FreeCacheStore) Close() error {
	s.cache.Clear()
	return nil
}
