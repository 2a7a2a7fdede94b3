package store

import (
	"context"
	"time"

	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

type TieredStoreOptions struct {
	// Tiers 多级存储层配置，按优先级从高到低排列
	// 第一层应该是最快的缓存（如内存），最后一层是共享或持久化存储
	Tiers []*ref.TypeOptions `cfg:"tiers" validate:"required,min=1,dive,required"`

	// WritePolicy 写入策略
	// - "writeThrough": 同步写入所有层
	// - "writeBack": 只同步写入第一层，其他层异步写入
	WritePolicy string `cfg:"writePolicy" def:"writeThrough" validate:"oneof=writeThrough writeBack"`

	// Promote 从下层读到数据后是否写回上层
	Promote bool `cfg:"promote" def:"true"`

	// PromoteTTL 写回上层时使用的过期时间，下层的剩余 TTL 无法取得
	PromoteTTL time.Duration `cfg:"promoteTTL" def:"1m"`
}

// TieredStore 多级缓存存储
type TieredStore struct {
	tiers       []Store
	writePolicy string
	promote     bool
	promoteTTL  time.Duration
}

func NewTieredStoreWithOptions(options *TieredStoreOptions) (*TieredStore, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if len(options.Tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}

	tiers := make([]Store, 0, len(options.Tiers))
	for i, tierOptions := range options.Tiers {
		tier, err := NewStoreWithOptions(tierOptions)
		if err != nil {
			for _, created := range tiers {
				_ = created.Close()
			}
			return nil, errors.WithMessagef(err, "failed to create tier %d", i)
		}
		tiers = append(tiers, tier)
	}

	ts, err := NewTieredStore(options.WritePolicy, tiers...)
	if err != nil {
		return nil, err
	}
	ts.promote = options.Promote
	ts.promoteTTL = options.PromoteTTL
	return ts, nil
}

// NewTieredStore 由已创建的存储组成多级存储，默认开启提升
func NewTieredStore(writePolicy string, tiers ...Store) (*TieredStore, error) {
	if len(tiers) == 0 {
		return nil, errors.New("at least one tier is required")
	}
	if writePolicy == "" {
		writePolicy = "writeThrough"
	}
	if writePolicy != "writeThrough" && writePolicy != "writeBack" {
		return nil, errors.Errorf("invalid write policy: %s", writePolicy)
	}
	return &TieredStore{
		tiers:       tiers,
		writePolicy: writePolicy,
		promote:     true,
		promoteTTL:  time.Minute,
	}, nil
}

func (ts *TieredStore) Set(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	if ts.writePolicy == "writeBack" {
		return ts.writeBack(ctx, key, value, opts...)
	}
	return ts.writeThrough(ctx, key, value, opts...)
}

// Get 逐层查找，所有层都出错时返回最后一个错误而不是 ErrKeyNotFound
func (ts *TieredStore) Get(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	failed := 0
	for i, tier := range ts.tiers {
		value, err := tier.Get(ctx, key)
		if err == nil {
			if ts.promote && i > 0 {
				ts.promoteToUpperTiers(ctx, key, value, i)
			}
			return value, nil
		}
		if err != ErrKeyNotFound {
			lastErr = errors.WithMessagef(err, "tier %d get failed", i)
			failed++
		}
	}

	if failed == len(ts.tiers) {
		return nil, lastErr
	}
	return nil, ErrKeyNotFound
}

func (ts *TieredStore) Del(ctx context.Context, key string) error {
	var lastErr error
	for i, tier := range ts.tiers {
		if err := tier.Del(ctx, key); err != nil {
			lastErr = errors.WithMessagef(err, "tier %d del failed", i)
		}
	}
	return lastErr
}

func (ts *TieredStore) DelPrefix(ctx context.Context, prefix string) error {
	var lastErr error
	for i, tier := range ts.tiers {
		if err := tier.DelPrefix(ctx, prefix); err != nil {
			lastErr = errors.WithMessagef(err, "tier %d del prefix failed", i)
		}
	}
	return lastErr
}

func (ts *TieredStore) Close() error {
	var errs []error
	for i, tier := range ts.tiers {
		if err := tier.Close(); err != nil {
			errs = append(errs, errors.WithMessagef(err, "failed to close tier %d", i))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

// writeThrough 同步写入所有层，至少一层成功即返回成功
func (ts *TieredStore) writeThrough(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	var lastErr error
	success := false

	for _, tier := range ts.tiers {
		if err := tier.Set(ctx, key, value, opts...); err != nil {
			if err == ErrConditionFailed {
				return err
			}
			lastErr = err
		} else {
			success = true
		}
	}

	if !success {
		return lastErr
	}
	return nil
}

func (ts *TieredStore) writeBack(ctx context.Context, key string, value []byte, opts ...SetOption) error {
	if err := ts.tiers[0].Set(ctx, key, value, opts...); err != nil {
		return err
	}
	if len(ts.tiers) > 1 {
		go ts.writeToLowerTiers(context.WithoutCancel(ctx), key, value, opts...)
	}
	return nil
}

func (ts *TieredStore) promoteToUpperTiers(ctx context.Context, key string, value []byte, fromTier int) {
	for i := fromTier - 1; i >= 0; i-- {
		_ = ts.tiers[i].Set(ctx, key, value, WithExpiration(ts.promoteTTL))
	}
}

func (ts *TieredStore) writeToLowerTiers(ctx context.Context, key string, value []byte, opts ...SetOption) {
	for i := 1; i < len(ts.tiers); i++ {
		_ = ts.tiers[i].Set(ctx, key, value, opts...)
	}
}

// GetFromTier 从指定层获取数据，用于测试和监控
func (ts *TieredStore) GetFromTier(ctx context.Context, tier int, key string) ([]byte, error) {
	if tier < 0 || tier >= len(ts.tiers) {
		return nil, errors.Errorf("invalid tier index: %d", tier)
	}
	return ts.tiers[tier].Get(ctx, key)
}
