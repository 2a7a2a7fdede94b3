package orm

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hatlonely/ormx/kv/serializer"
	"github.com/hatlonely/ormx/kv/store"
	"github.com/hatlonely/ormx/log"
	"github.com/hatlonely/ormx/log/logger"
	"github.com/hatlonely/ormx/rdb/database"
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func init() {
	ref.MustRegisterT[*Orm](NewOrmWithOptions)
}

type OrmOptions struct {
	Engine *ref.TypeOptions `cfg:"engine" validate:"required"`
	// Store 为空时不启用缓存，Cache() 被忽略
	Store  *ref.TypeOptions `cfg:"store"`
	Cache  CacheOptions     `cfg:"cache"`
	Logger *ref.TypeOptions `cfg:"logger"`
	Tables []*TableOptions  `cfg:"tables" validate:"dive"`
}

type CacheOptions struct {
	// 键的格式为 <prefix>.<table>.<hash>
	Prefix string `cfg:"prefix" def:"orm"`
	// 缓存内容的编码，默认 json，可选 msgpack
	Serializer *ref.TypeOptions `cfg:"serializer"`
	// 为 true 时缓存存储的错误按未命中处理并记录 warn 日志，否则直接返回
	IgnoreErrors bool `cfg:"ignoreErrors"`
}

// Orm 表声明的注册中心，持有数据库引擎和缓存存储
type Orm struct {
	engine database.Engine
	store  store.Store
	cache  *cacheLayer
	logger logger.Logger

	mu      sync.RWMutex
	tables  map[string]*Definition
	columns map[string][]string
}

type settings struct {
	logger       logger.Logger
	prefix       string
	serializer   serializer.Serializer[any, []byte]
	ignoreErrors bool
}

type Option func(*settings)

func WithLogger(l logger.Logger) Option {
	return func(s *settings) {
		s.logger = l
	}
}

func WithCachePrefix(prefix string) Option {
	return func(s *settings) {
		s.prefix = prefix
	}
}

func WithSerializer(ser serializer.Serializer[any, []byte]) Option {
	return func(s *settings) {
		s.serializer = ser
	}
}

// WithIgnoreCacheErrors 缓存存储的错误按未命中处理
func WithIgnoreCacheErrors(ignore bool) Option {
	return func(s *settings) {
		s.ignoreErrors = ignore
	}
}

// New kvStore 为 nil 时不启用缓存
func New(engine database.Engine, kvStore store.Store, opts ...Option) *Orm {
	s := &settings{
		logger:     log.Default(),
		prefix:     "orm",
		serializer: serializer.NewJSONSerializer[any](),
	}
	for _, opt := range opts {
		opt(s)
	}

	o := &Orm{
		engine:  engine,
		store:   kvStore,
		logger:  s.logger.WithGroup("orm"),
		tables:  map[string]*Definition{},
		columns: map[string][]string{},
	}
	if kvStore != nil {
		o.cache = &cacheLayer{
			store:        kvStore,
			serializer:   s.serializer,
			prefix:       s.prefix,
			ignoreErrors: s.ignoreErrors,
			logger:       o.logger,
		}
	}
	return o
}

func NewOrmWithOptions(options *OrmOptions) (*Orm, error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}

	l, err := log.NewLoggerWithOptions(options.Logger)
	if err != nil {
		return nil, errors.WithMessage(err, "create logger failed")
	}

	ser, err := serializer.NewByteSerializerWithOptions[any](options.Cache.Serializer)
	if err != nil {
		return nil, err
	}

	var defs []*Definition
	for i, tableOptions := range options.Tables {
		def, err := tableOptions.Definition()
		if err != nil {
			return nil, errors.WithMessagef(err, "table %d", i)
		}
		defs = append(defs, def)
	}

	engine, err := database.NewEngineWithOptions(options.Engine)
	if err != nil {
		return nil, err
	}

	var kvStore store.Store
	if options.Store != nil {
		if kvStore, err = store.NewStoreWithOptions(options.Store); err != nil {
			_ = engine.Close()
			return nil, err
		}
	}

	prefix := options.Cache.Prefix
	if prefix == "" {
		prefix = "orm"
	}
	o := New(engine, kvStore,
		WithLogger(l),
		WithCachePrefix(prefix),
		WithSerializer(ser),
		WithIgnoreCacheErrors(options.Cache.IgnoreErrors),
	)
	for _, def := range defs {
		if err := o.Define(*def); err != nil {
			_ = o.Close()
			return nil, err
		}
	}
	return o, nil
}

func (o *Orm) Engine() database.Engine {
	return o.engine
}

func (o *Orm) Store() store.Store {
	return o.store
}

// Define 声明一张表，同名的声明会被替换
func (o *Orm) Define(def Definition) error {
	d, err := def.normalize()
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tables[d.Name] = d
	return nil
}

// Table 未声明的表返回的句柄在所有终结操作上返回 ErrTableNotDefined
func (o *Orm) Table(name string) *Table {
	o.mu.RLock()
	def, ok := o.tables[name]
	o.mu.RUnlock()

	t := &Table{orm: o, name: name, def: def, track: NewScopeTrack()}
	if !ok {
		t.err = errors.Wrapf(ErrTableNotDefined, "%s", name)
	}
	return t
}

// TableTx 在事务 tx 中操作的表句柄
func (o *Orm) TableTx(name string, tx database.Tx) *Table {
	return o.Table(name).Transacting(tx)
}

// Tables 已声明的表名，按名称排序
func (o *Orm) Tables() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.tables))
	for name := range o.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns 返回表的列名，首次查询后缓存在内存中
func (o *Orm) Columns(ctx context.Context, table string) ([]string, error) {
	o.mu.RLock()
	columns, ok := o.columns[table]
	o.mu.RUnlock()
	if ok {
		return columns, nil
	}

	columns, err := o.engine.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.columns[table] = columns
	o.mu.Unlock()
	return columns, nil
}

// Load 加载全部已声明表以及关联中间表的列信息
func (o *Orm) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range o.loadTargets() {
		name := name
		g.Go(func() error {
			_, err := o.Columns(gctx, name)
			return errors.WithMessagef(err, "load columns of %s failed", name)
		})
	}
	return g.Wait()
}

// loadTargets 已声明的表，加上多对多关联用到但未声明的中间表
func (o *Orm) loadTargets() []string {
	names := o.Tables()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	targets := slices.Clone(names)
	for _, name := range names {
		t := o.Table(name)
		for _, fn := range t.def.Relations {
			pt, ok := fn(t).(PivotTabler)
			if !ok || seen[pt.PivotTable()] {
				continue
			}
			seen[pt.PivotTable()] = true
			targets = append(targets, pt.PivotTable())
		}
	}
	return targets
}

// Trx 在一个事务中执行 fn，成功时提交，失败时回滚并原样返回 fn 的错误
// fn panic 时同样回滚，然后继续 panic
func (o *Orm) Trx(ctx context.Context, fn func(tx database.Tx) (any, error)) (any, error) {
	// 事务占用连接期间不再单独查询列信息
	if err := o.Load(ctx); err != nil {
		return nil, err
	}

	tx, err := o.engine.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if p := recover(); p != nil {
			o.rollback(ctx, tx)
			panic(p)
		}
	}()

	result, err := fn(tx)
	if err != nil {
		o.rollback(ctx, tx)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orm) rollback(ctx context.Context, tx database.Tx) {
	if err := tx.Rollback(); err != nil {
		o.logger.ErrorContext(ctx, "rollback failed", "error", err.Error())
	}
}

func (o *Orm) Close() error {
	var err error
	if o.store != nil {
		err = o.store.Close()
	}
	if engineErr := o.engine.Close(); engineErr != nil {
		err = engineErr
	}
	return err
}

func (o *Orm) query(ctx context.Context, executor database.Executor, sql string, args []any) ([]map[string]any, error) {
	start := time.Now()
	rows, err := executor.Query(ctx, sql, args...)
	o.logger.DebugContext(ctx, "query", "sql", sql, "args", args, "duration", time.Since(start))
	return rows, err
}

func (o *Orm) exec(ctx context.Context, executor database.Executor, sql string, args []any) (database.Result, error) {
	start := time.Now()
	result, err := executor.Exec(ctx, sql, args...)
	o.logger.DebugContext(ctx, "exec", "sql", sql, "args", args, "duration", time.Since(start))
	return result, err
}

// remember 未配置缓存存储时直接执行
func (o *Orm) remember(ctx context.Context, qc *QueryContext, sql string, args []any, fetch func() (any, error)) (any, error) {
	if o.cache == nil {
		return fetch()
	}
	payload, hit, err := o.cache.remember(ctx, qc, sql, args, fetch)
	if hit {
		o.logger.DebugContext(ctx, "cache hit", "table", qc.table, "sql", sql)
	}
	return payload, err
}

// ClearCache 删除本表命名空间下的全部缓存
func (t *Table) ClearCache(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if t.orm.cache == nil {
		return ErrNoCache
	}
	return t.orm.cache.Clear(ctx, t.name)
}
