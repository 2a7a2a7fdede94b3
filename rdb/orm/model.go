package orm

import (
	"context"
	"maps"

	"github.com/hatlonely/ormx/uid"
	"github.com/pkg/errors"
)

var (
	ErrTableNotDefined    = errors.New("table not defined")
	ErrRelationNotDefined = errors.New("relation not defined")
	ErrScopeNotDefined    = errors.New("scope not defined")
	ErrMethodNotDefined   = errors.New("method not defined")
	ErrNotSlice           = errors.New("value is not a slice")
	ErrInvalidOperator    = errors.New("invalid operator")
	ErrMissingKey         = errors.New("missing key")
	ErrNoCache            = errors.New("cache store not configured")
)

// Model 一行数据，持久化时只读写其中出现的列
type Model map[string]any

func (m Model) Clone() Model {
	return maps.Clone(m)
}

// KeyMode 主键的产生方式
type KeyMode int

const (
	// KeyGenerated 默认模式，数据库不产生主键，由 KeyGenerator 生成候选值（默认 UUID），冲突时重新生成
	KeyGenerated KeyMode = iota
	// KeyAutoIncrement 自增主键
	KeyAutoIncrement
	// KeyAutoUUID 数据库默认值产生的 UUID 主键，需要 RETURNING 支持
	KeyAutoUUID
)

func (k KeyMode) String() string {
	switch k {
	case KeyAutoIncrement:
		return "autoIncrement"
	case KeyAutoUUID:
		return "autoUUID"
	}
	return "generated"
}

// ScopeFunc 命名作用域，在 t 上追加操作并返回新的表句柄
type ScopeFunc func(t *Table, args ...any) *Table

// JointFunc 命名连接，不带参数，同一条查询链上只生效一次
type JointFunc func(t *Table) *Table

// RelationFunc 声明一个关联，通常返回 HasOne、BelongsTo 等构造函数的结果
type RelationFunc func(t *Table) Relation

// MethodFunc 表上的自定义方法
type MethodFunc func(ctx context.Context, t *Table, args ...any) (any, error)

// HookFunc 生命周期钩子，返回错误时中止后续步骤
type HookFunc func(ctx context.Context, t *Table, m Model) (Model, error)

func (h HookFunc) run(ctx context.Context, t *Table, m Model) (Model, error) {
	if h == nil {
		return m, nil
	}
	out, err := h(ctx, t, m)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return m, nil
	}
	return out, nil
}

type Hooks struct {
	BeforeSave   HookFunc
	AfterSave    HookFunc
	BeforeCreate HookFunc
	AfterCreate  HookFunc
	BeforeUpdate HookFunc
	AfterUpdate  HookFunc
	BeforeDelete HookFunc
	AfterDelete  HookFunc
}

// Definition 表声明，Define 之后不再修改，可被并发的查询链共享
type Definition struct {
	Name string
	// 主键列，默认 id
	Key          string
	KeyMode      KeyMode
	KeyGenerator uid.KeyGenerator
	// 默认分页大小，默认 25
	PerPage int

	Timestamps bool
	CreatedAt  string
	UpdatedAt  string

	RowParser        func(Model) Model
	CollectionParser func([]Model) []Model

	Scopes    map[string]ScopeFunc
	Joints    map[string]JointFunc
	Relations map[string]RelationFunc
	Methods   map[string]MethodFunc
	Hooks     Hooks
}

// normalize 返回填充了默认值的副本
func (d Definition) normalize() (*Definition, error) {
	if d.Name == "" {
		return nil, errors.New("table name is required")
	}
	if d.Key == "" {
		d.Key = "id"
	}
	if d.PerPage <= 0 {
		d.PerPage = 25
	}
	if d.CreatedAt == "" {
		d.CreatedAt = "created_at"
	}
	if d.UpdatedAt == "" {
		d.UpdatedAt = "updated_at"
	}
	if d.KeyGenerator == nil {
		d.KeyGenerator = uid.DefaultKeyGenerator()
	}
	d.Scopes = maps.Clone(d.Scopes)
	d.Joints = maps.Clone(d.Joints)
	d.Relations = maps.Clone(d.Relations)
	d.Methods = maps.Clone(d.Methods)
	return &d, nil
}
