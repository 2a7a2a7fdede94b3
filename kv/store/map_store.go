package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

type MapStoreOptions struct{}

type mapEntry struct {
	value    []byte
	expireAt time.Time
}

func (e *mapEntry) expired(now time.Time) bool {
	return !e.expireAt.IsZero() && !now.Before(e.expireAt)
}

// MapStore 进程内存储，过期键在访问时惰性删除
type MapStore struct {
	mu sync.RWMutex
	m  map[string]*mapEntry
}

func NewMapStoreWithOptions(options *MapStoreOptions) (*MapStore, error) {
	return NewMapStore(), nil
}

func NewMapStore() *MapStore {
	return &MapStore{m: make(map[string]*mapEntry)}
}

func (s *MapStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	options := applySetOptions(opts)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if options.IfNotExist {
		if e, ok := s.m[key]; ok && !e.expired(now) {
			return ErrConditionFailed
		}
	}

	e := &mapEntry{value: append([]byte(nil), value...)}
	if options.Expiration > 0 {
		e.expireAt = now.Add(options.Expiration)
	}
	s.m[key] = e
	return nil
}

func (s *MapStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	if e.expired(time.Now()) {
		s.mu.Lock()
		if cur, ok := s.m[key]; ok && cur == e {
			delete(s.m, key)
		}
		s.mu.Unlock()
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (s *MapStore) Del(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}

func (s *MapStore) DelPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.m {
		if strings.HasPrefix(k, prefix) {
			delete(s.m, k)
		}
	}
	return nil
}

// Len 返回未过期的键数量
func (s *MapStore) Len() int {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.m {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

func (s *MapStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = make(map[string]*mapEntry)
	return nil
}
