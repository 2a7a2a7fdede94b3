package intgen

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

type RedisGeneratorOptions struct {
	Endpoint string `cfg:"endpoint" def:"localhost:6379"`
	Password string `cfg:"password"`
	DB       int    `cfg:"db"`

	// 序列号键的前缀，实际键为 KeyName:毫秒时间戳
	KeyName string        `cfg:"keyName" def:"uid:sequence"`
	Timeout time.Duration `cfg:"timeout" def:"3s"`
}

// RedisGenerator 时间戳 + Redis INCR 序列号，多进程间唯一
type RedisGenerator struct {
	client  redis.UniversalClient
	keyName string
	timeout time.Duration
}

func NewRedisGeneratorWithOptions(options *RedisGeneratorOptions) (*RedisGenerator, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     options.Endpoint,
		Password: options.Password,
		DB:       options.DB,
	})

	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis client ping failed")
	}

	return NewRedisGenerator(client, options.KeyName, timeout), nil
}

func NewRedisGenerator(client redis.UniversalClient, keyName string, timeout time.Duration) *RedisGenerator {
	if keyName == "" {
		keyName = "uid:sequence"
	}
	return &RedisGenerator{client: client, keyName: keyName, timeout: timeout}
}

// Generate Redis 不可用时退化为序列号为 0 的本地时间戳
func (g *RedisGenerator) Generate() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	for {
		timestamp := time.Now().UnixMilli()
		key := g.keyName + ":" + strconv.FormatInt(timestamp, 10)

		sequence, err := g.client.Incr(ctx, key).Result()
		if err != nil {
			return timestamp << sequenceBits
		}
		if sequence == 1 {
			g.client.Expire(ctx, key, 2*time.Second)
		}

		if sequence-1 <= maxSequence {
			return (timestamp << sequenceBits) | (sequence - 1)
		}
		// 本毫秒序列号耗尽
		time.Sleep(time.Millisecond)
	}
}

func (g *RedisGenerator) Close() error {
	return g.client.Close()
}
