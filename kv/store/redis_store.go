package store

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisStoreOptions struct {
	// 单机 host:port 地址
	Endpoint string `cfg:"endpoint"`

	// 集群节点地址列表，Endpoint 为空时使用
	Endpoints []string `cfg:"endpoints"`

	// Set 未指定过期时间时使用的默认 TTL，0 表示永不过期
	DefaultTTL time.Duration `cfg:"defaultTTL" def:"0s"`

	// DelPrefix 每次 SCAN 的 COUNT 以及每批 DEL 的键数
	ScanCount int64 `cfg:"scanCount" def:"500" validate:"gte=1"`

	Username string `cfg:"username"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db" def:"0"`

	// -1 禁用重试
	MaxRetries      int           `cfg:"maxRetries" def:"3"`
	MinRetryBackoff time.Duration `cfg:"minRetryBackoff" def:"8ms"`
	MaxRetryBackoff time.Duration `cfg:"maxRetryBackoff" def:"512ms"`
	DialTimeout     time.Duration `cfg:"dialTimeout" def:"5s"`
	ReadTimeout     time.Duration `cfg:"readTimeout" def:"3s"`
	WriteTimeout    time.Duration `cfg:"writeTimeout" def:"3s"`

	PoolSize        int           `cfg:"poolSize" def:"100"`
	PoolTimeout     time.Duration `cfg:"poolTimeout" def:"4s"`
	MinIdleConns    int           `cfg:"minIdleConns" def:"0"`
	MaxIdleConns    int           `cfg:"maxIdleConns" def:"0"`
	ConnMaxIdleTime time.Duration `cfg:"connMaxIdleTime" def:"30m"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"0s"`

	// 集群模式下 MOVED/ASK 重定向的最大次数
	MaxRedirects int `cfg:"maxRedirects" def:"3"`
}

type RedisStore struct {
	client     redis.UniversalClient
	defaultTTL time.Duration
	scanCount  int64
}

func NewRedisStoreWithOptions(options *RedisStoreOptions) (*RedisStore, error) {
	var client redis.UniversalClient

	if options.Endpoint != "" {
		client = redis.NewClient(&redis.Options{
			Addr:            options.Endpoint,
			Username:        options.Username,
			Password:        options.Password,
			DB:              options.DB,
			MaxRetries:      options.MaxRetries,
			MinRetryBackoff: options.MinRetryBackoff,
			MaxRetryBackoff: options.MaxRetryBackoff,
			DialTimeout:     options.DialTimeout,
			ReadTimeout:     options.ReadTimeout,
			WriteTimeout:    options.WriteTimeout,
			PoolSize:        options.PoolSize,
			PoolTimeout:     options.PoolTimeout,
			MinIdleConns:    options.MinIdleConns,
			MaxIdleConns:    options.MaxIdleConns,
			ConnMaxIdleTime: options.ConnMaxIdleTime,
			ConnMaxLifetime: options.ConnMaxLifetime,
		})
	} else if len(options.Endpoints) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           options.Endpoints,
			Username:        options.Username,
			Password:        options.Password,
			MaxRetries:      options.MaxRetries,
			MinRetryBackoff: options.MinRetryBackoff,
			MaxRetryBackoff: options.MaxRetryBackoff,
			DialTimeout:     options.DialTimeout,
			ReadTimeout:     options.ReadTimeout,
			WriteTimeout:    options.WriteTimeout,
			PoolSize:        options.PoolSize,
			PoolTimeout:     options.PoolTimeout,
			MinIdleConns:    options.MinIdleConns,
			MaxIdleConns:    options.MaxIdleConns,
			ConnMaxIdleTime: options.ConnMaxIdleTime,
			ConnMaxLifetime: options.ConnMaxLifetime,
			MaxRedirects:    options.MaxRedirects,
		})
	} else {
		return nil, errors.Errorf("Endpoint or Endpoints must be set")
	}

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis client ping failed")
	}

	s := NewRedisStore(client)
	s.defaultTTL = options.DefaultTTL
	if options.ScanCount > 0 {
		s.scanCount = options.ScanCount
	}
	return s, nil
}

// NewRedisStore 包装一个已有的客户端，Close 时会关闭该客户端
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, scanCount: 500}
}

// Client 返回底层客户端，便于共享连接
func (s *RedisStore) Client() redis.UniversalClient {
	return s.client
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	options := applySetOptions(opts)

	expiration := options.Expiration
	if expiration == 0 {
		expiration = s.defaultTTL
	}

	if options.IfNotExist {
		ok, err := s.client.SetNX(ctx, key, value, expiration).Result()
		if err != nil {
			return errors.Wrapf(err, "redis setnx %s failed", key)
		}
		if !ok {
			return ErrConditionFailed
		}
		return nil
	}

	if err := s.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s failed", key)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	buf, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "redis get %s failed", key)
	}
	return buf, nil
}

func (s *RedisStore) Del(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "redis del %s failed", key)
	}
	return nil
}

// DelPrefix 通过 SCAN MATCH 分批删除，集群模式下在每个 master 上执行
func (s *RedisStore) DelPrefix(ctx context.Context, prefix string) error {
	pattern := escapeGlob(prefix) + "*"

	if cluster, ok := s.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return s.scanDel(ctx, node, pattern)
		})
	}
	return s.scanDel(ctx, s.client, pattern)
}

// scanDel 先收集全部匹配的键再分批删除，扫描过程中不修改键空间
func (s *RedisStore) scanDel(ctx context.Context, client redis.Cmdable, pattern string) error {
	var keys []string
	iter := client.Scan(ctx, 0, pattern, s.scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrapf(err, "redis scan %s failed", pattern)
	}

	for start := 0; start < len(keys); start += int(s.scanCount) {
		end := min(start+int(s.scanCount), len(keys))
		if err := client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return errors.Wrapf(err, "redis del %s failed", pattern)
		}
	}
	return nil
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
