package orm

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"strconv"

	"github.com/hatlonely/ormx/kv/serializer"
	"github.com/hatlonely/ormx/kv/store"
	"github.com/hatlonely/ormx/log/logger"
	"github.com/pkg/errors"
	"github.com/zeebo/blake3"
)

// cacheLayer 以编译后的 SQL 和参数的内容哈希为键缓存查询结果
// 写操作不会使缓存失效，需要时由调用方 Uncache 或 ClearCache
type cacheLayer struct {
	store        store.Store
	serializer   serializer.Serializer[any, []byte]
	prefix       string
	ignoreErrors bool
	logger       logger.Logger
}

// Key 结构不同但编译结果相同的查询共享同一个键
func (c *cacheLayer) Key(table string, sql string, args []any) (string, error) {
	buf, err := json.Marshal(args)
	if err != nil {
		return "", errors.Wrap(err, "marshal query args failed")
	}
	h := blake3.New()
	_, _ = h.Write([]byte(sql))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write(buf)
	return c.tablePrefix(table) + hex.EncodeToString(h.Sum(nil)), nil
}

func (c *cacheLayer) tablePrefix(table string) string {
	return c.prefix + "." + table + "."
}

// tolerate 按 ignoreErrors 决定缓存存储错误是否当作未命中
func (c *cacheLayer) tolerate(ctx context.Context, operation string, key string, err error) error {
	if !c.ignoreErrors {
		return errors.Wrapf(err, "cache %s %s failed", operation, key)
	}
	c.logger.WarnContext(ctx, "cache store failure ignored", "operation", operation, "key", key, "error", err.Error())
	return nil
}

// remember 依次处理失效、读取、回源和回填
// 返回的 payload 在命中时是反序列化的结果，未命中时是 fetch 的结果
func (c *cacheLayer) remember(ctx context.Context, qc *QueryContext, sql string, args []any, fetch func() (any, error)) (any, bool, error) {
	if !qc.cacheEnabled && !qc.destroyCache {
		v, err := fetch()
		return v, false, err
	}

	key, err := c.Key(qc.table, sql, args)
	if err != nil {
		return nil, false, err
	}

	if qc.destroyCache {
		if err := c.store.Del(ctx, key); err != nil {
			if err := c.tolerate(ctx, "del", key, err); err != nil {
				return nil, false, err
			}
		}
	}

	if !qc.cacheEnabled {
		v, err := fetch()
		return v, false, err
	}

	buf, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		payload, decodeErr := c.serializer.Deserialize(buf)
		if decodeErr == nil {
			return payload, true, nil
		}
		if err := c.tolerate(ctx, "decode", key, decodeErr); err != nil {
			return nil, false, err
		}
	case errors.Is(err, store.ErrKeyNotFound):
	default:
		if err := c.tolerate(ctx, "get", key, err); err != nil {
			return nil, false, err
		}
	}

	v, err := fetch()
	if err != nil {
		return nil, false, err
	}

	buf, err = c.serializer.Serialize(v)
	if err != nil {
		return nil, false, errors.Wrap(err, "serialize cache payload failed")
	}
	var opts []store.SetOption
	if qc.cacheLifetime > 0 {
		opts = append(opts, store.WithExpiration(qc.cacheLifetime))
	}
	if err := c.store.Set(ctx, key, buf, opts...); err != nil {
		if err := c.tolerate(ctx, "set", key, err); err != nil {
			return nil, false, err
		}
	}
	return v, false, nil
}

func (c *cacheLayer) Clear(ctx context.Context, table string) error {
	return errors.Wrapf(c.store.DelPrefix(ctx, c.tablePrefix(table)), "clear cache of %s failed", table)
}

// toRows 把缓存中反序列化出的结果还原为行
func toRows(payload any) ([]map[string]any, error) {
	switch v := payload.(type) {
	case []map[string]any:
		return v, nil
	case nil:
		return []map[string]any{}, nil
	case []any:
		rows := make([]map[string]any, 0, len(v))
		for _, item := range v {
			row, ok := item.(map[string]any)
			if !ok {
				return nil, errors.Errorf("unexpected cached row %T", item)
			}
			rows = append(rows, row)
		}
		return rows, nil
	}
	return nil, errors.Errorf("unexpected cached rows %T", payload)
}

// toInt64 COUNT 的结果因驱动和缓存编码不同可能是整数、浮点数、字符串或字节
func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, errors.Wrapf(err, "parse count %q failed", n)
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, errors.Wrapf(err, "parse count %q failed", n)
	case nil:
		return 0, nil
	}
	return 0, errors.Errorf("unexpected count %T", v)
}
