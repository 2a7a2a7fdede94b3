package orm

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/hatlonely/ormx/rdb/database"
	"github.com/hatlonely/ormx/rdb/query"
	"github.com/pkg/errors"
)

// Table 表的查询句柄
// 每个链式调用都返回新的句柄，原句柄不变，可以作为多条查询链的起点
type Table struct {
	orm   *Orm
	name  string
	def   *Definition
	track *ScopeTrack
	err   error
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Definition() *Definition {
	return t.def
}

func (t *Table) Orm() *Orm {
	return t.orm
}

// Err 链上记录的编译期错误
func (t *Table) Err() error {
	return t.err
}

// Track 返回作用域记录的副本
func (t *Table) Track() *ScopeTrack {
	return t.track.Fork()
}

// C 把列名限定到本表，已包含 . 的列名原样返回
func (t *Table) C(column string) string {
	return qualify(t.name, column)
}

// KeyName 主键列名
func (t *Table) KeyName() string {
	if t.def == nil {
		return "id"
	}
	return t.def.Key
}

// KeyColumn 限定到本表的主键列
func (t *Table) KeyColumn() string {
	return t.C(t.KeyName())
}

func (t *Table) Fork() *Table {
	return &Table{orm: t.orm, name: t.name, def: t.def, track: t.track.Fork(), err: t.err}
}

func (t *Table) withErr(err error) *Table {
	nt := t.Fork()
	if nt.err == nil {
		nt.err = err
	}
	return nt
}

func (t *Table) push(name string, joint bool, op Operation) *Table {
	nt := t.Fork()
	nt.track.Push(Scope{Name: name, Joint: joint, Op: op})
	return nt
}

// Apply 追加一个自定义操作
func (t *Table) Apply(name string, op Operation) *Table {
	if name == "" {
		name = "scope"
	}
	return t.push(name, false, op)
}

func splitOpValue(args []any) (string, any, error) {
	switch len(args) {
	case 1:
		return "=", args[0], nil
	case 2:
		op, ok := args[0].(string)
		if !ok {
			return "", nil, errors.Wrapf(ErrInvalidOperator, "operator must be a string, got %T", args[0])
		}
		return strings.TrimSpace(op), args[1], nil
	}
	return "", nil, errors.Errorf("where expects (value) or (op, value), got %d arguments", len(args))
}

// Where 条件查询，Where(field, value) 为等值比较，Where(field, op, value) 指定运算符
// in、not in、between、not between 交给对应的专用方法，ilike 为忽略大小写的 like
func (t *Table) Where(field string, args ...any) *Table {
	op, value, err := splitOpValue(args)
	if err != nil {
		return t.withErr(err)
	}

	switch strings.ToLower(op) {
	case "in":
		return t.WhereIn(field, value)
	case "not in":
		return t.WhereNotIn(field, value)
	case "between":
		return t.whereBetween(field, value, false)
	case "not between":
		return t.whereBetween(field, value, true)
	case "ilike":
		return t.push("where", false, whereOp{q: &query.ILikeQuery{Field: t.C(field), Value: value}})
	}
	if !query.IsTermOperator(op) {
		return t.withErr(errors.Wrapf(ErrInvalidOperator, "%q", op))
	}
	return t.push("where", false, whereOp{q: &query.TermQuery{Field: t.C(field), Op: op, Value: value}})
}

// WhereNot 取反的条件查询，in 与 not in、between 与 not between 互换
func (t *Table) WhereNot(field string, args ...any) *Table {
	op, value, err := splitOpValue(args)
	if err != nil {
		return t.withErr(err)
	}

	switch strings.ToLower(op) {
	case "in":
		return t.WhereNotIn(field, value)
	case "not in":
		return t.WhereIn(field, value)
	case "between":
		return t.whereBetween(field, value, true)
	case "not between":
		return t.whereBetween(field, value, false)
	case "ilike":
		return t.push("whereNot", false, whereOp{q: query.Not(&query.ILikeQuery{Field: t.C(field), Value: value})})
	}
	if !query.IsTermOperator(op) {
		return t.withErr(errors.Wrapf(ErrInvalidOperator, "%q", op))
	}
	return t.push("whereNot", false, whereOp{q: query.Not(&query.TermQuery{Field: t.C(field), Op: op, Value: value})})
}

func sortedFields(conditions map[string]any) []string {
	fields := make([]string, 0, len(conditions))
	for field := range conditions {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// WhereMap 每个键一个等值条件，按键名排序后依次 AND
func (t *Table) WhereMap(conditions map[string]any) *Table {
	nt := t
	for _, field := range sortedFields(conditions) {
		nt = nt.Where(field, conditions[field])
	}
	return nt
}

func (t *Table) WhereNotMap(conditions map[string]any) *Table {
	nt := t
	for _, field := range sortedFields(conditions) {
		nt = nt.WhereNot(field, conditions[field])
	}
	return nt
}

func toSlice(values any) ([]any, error) {
	if vs, ok := values.([]any); ok {
		return vs, nil
	}
	rv := reflect.ValueOf(values)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, errors.Wrapf(ErrNotSlice, "got %T", values)
	}
	vs := make([]any, rv.Len())
	for i := range vs {
		vs[i] = rv.Index(i).Interface()
	}
	return vs, nil
}

// WhereIn 空列表退化为主键 IS NULL，结果总为空
func (t *Table) WhereIn(field string, values any) *Table {
	vs, err := toSlice(values)
	if err != nil {
		return t.withErr(err)
	}
	if len(vs) == 0 {
		return t.ScopeNull()
	}
	return t.push("whereIn", false, whereOp{q: &query.InQuery{Field: t.C(field), Values: vs}})
}

// WhereNotIn 空列表不追加任何条件
func (t *Table) WhereNotIn(field string, values any) *Table {
	vs, err := toSlice(values)
	if err != nil {
		return t.withErr(err)
	}
	if len(vs) == 0 {
		return t
	}
	return t.push("whereNotIn", false, whereOp{q: &query.InQuery{Field: t.C(field), Values: vs, Not: true}})
}

// ScopeNull 主键为空，用于表达恒假的条件
func (t *Table) ScopeNull() *Table {
	return t.push("scopeNull", false, whereOp{q: &query.NullQuery{Field: t.KeyColumn()}})
}

func (t *Table) WhereNull(field string) *Table {
	return t.push("whereNull", false, whereOp{q: &query.NullQuery{Field: t.C(field)}})
}

func (t *Table) WhereNotNull(field string) *Table {
	return t.push("whereNotNull", false, whereOp{q: &query.NullQuery{Field: t.C(field), Not: true}})
}

func (t *Table) WhereBetween(field string, low any, high any) *Table {
	return t.push("whereBetween", false, whereOp{q: &query.BetweenQuery{Field: t.C(field), Low: low, High: high}})
}

func (t *Table) WhereNotBetween(field string, low any, high any) *Table {
	return t.push("whereNotBetween", false, whereOp{q: &query.BetweenQuery{Field: t.C(field), Low: low, High: high, Not: true}})
}

func (t *Table) whereBetween(field string, value any, not bool) *Table {
	vs, err := toSlice(value)
	if err != nil {
		return t.withErr(err)
	}
	if len(vs) != 2 {
		return t.withErr(errors.Wrapf(ErrNotSlice, "between expects 2 values, got %d", len(vs)))
	}
	if not {
		return t.WhereNotBetween(field, vs[0], vs[1])
	}
	return t.WhereBetween(field, vs[0], vs[1])
}

// WhereRaw 原样拼入的条件片段，占位符为 ?
func (t *Table) WhereRaw(sql string, args ...any) *Table {
	return t.push("whereRaw", false, whereOp{q: &query.RawQuery{SQL: sql, Args: args}})
}

// Transacting 让之后的终结操作在 tx 中执行
func (t *Table) Transacting(tx database.Tx) *Table {
	return t.push("transacting", false, transactingOp{tx: tx})
}

// ForPage 页码小于 1 时按 1 处理，perPage 缺省时使用表的默认分页大小
func (t *Table) ForPage(page int, perPage ...int) *Table {
	if page < 1 {
		page = 1
	}
	size := 25
	if t.def != nil {
		size = t.def.PerPage
	}
	if len(perPage) > 0 && perPage[0] > 0 {
		size = perPage[0]
	}
	return t.push("forPage", false, pageOp{limit: size, offset: (page - 1) * size})
}

func (t *Table) Offset(n int) *Table {
	return t.push("offset", false, offsetOp{n: n})
}

func (t *Table) Take(n int) *Table {
	return t.push("take", false, limitOp{n: n})
}

// OrderBy direction 为 desc 时降序，列名不做限定
func (t *Table) OrderBy(field string, direction ...string) *Table {
	desc := len(direction) > 0 && strings.EqualFold(strings.TrimSpace(direction[0]), "desc")
	return t.push("orderBy", false, orderOp{column: field, desc: desc})
}

// Select 替换默认的 table.* 投影
func (t *Table) Select(columns ...string) *Table {
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = t.C(c)
	}
	return t.push("select", false, selectOp{columns: qualified})
}

// AddSelect 在投影之后追加列
func (t *Table) AddSelect(columns ...string) *Table {
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = t.C(c)
	}
	return t.push("addSelect", false, selectOp{columns: qualified, add: true})
}

// Cache 读取缓存，未命中时执行并以 lifetime 为有效期回填，0 为不过期
func (t *Table) Cache(lifetime time.Duration) *Table {
	return t.push("cache", false, cacheOp{lifetime: lifetime})
}

// Uncache 先删除本查询的缓存再执行
func (t *Table) Uncache() *Table {
	return t.push("uncache", false, uncacheOp{})
}

// EagerLoad 预加载关联，规则见 ParseEagerLoads
func (t *Table) EagerLoad(specs ...any) *Table {
	loads, err := ParseEagerLoads(specs...)
	if err != nil {
		return t.withErr(err)
	}
	if len(loads) == 0 {
		return t
	}
	return t.push("eagerLoad", false, eagerLoadOp{loads: loads})
}

// join 完全相同的连接（类型、表和 ON 条件）只追加一次，Joint 改过标签的连接同样参与判断
func (t *Table) join(kind string, table string, left string, op string, right string) *Table {
	jo := joinOp{kind: kind, table: table, left: left, op: op, right: right}
	for _, scope := range t.track.Scopes() {
		if existing, ok := scope.Op.(joinOp); ok && existing == jo {
			return t
		}
	}
	return t.push("join:"+table, false, jo)
}

// Join 内连接
func (t *Table) Join(table string, left string, op string, right string) *Table {
	return t.join("INNER", table, left, op, right)
}

func (t *Table) LeftJoin(table string, left string, op string, right string) *Table {
	return t.join("LEFT", table, left, op, right)
}

// Scope 调用命名作用域，新增的最后一个作用域以 name 为标签
func (t *Table) Scope(name string, args ...any) *Table {
	if t.err != nil {
		return t
	}
	fn, ok := t.def.Scopes[name]
	if !ok {
		return t.withErr(errors.Wrapf(ErrScopeNotDefined, "%s.%s", t.name, name))
	}
	before := t.track.Len()
	nt := fn(t.Fork(), args...)
	if nt == nil {
		return t.withErr(errors.Errorf("scope %s.%s returned nil", t.name, name))
	}
	nt = nt.Fork()
	if nt.track.Len() > before {
		nt.track.RelabelLast(name)
	}
	return nt
}

// Joint 调用命名连接，同名连接已存在时不重复追加
func (t *Table) Joint(name string) *Table {
	if t.err != nil {
		return t
	}
	if t.track.HasJoint(name) {
		return t
	}
	fn, ok := t.def.Joints[name]
	if !ok {
		return t.withErr(errors.Wrapf(ErrScopeNotDefined, "joint %s.%s", t.name, name))
	}
	before := t.track.Len()
	nt := fn(t.Fork())
	if nt == nil {
		return t.withErr(errors.Errorf("joint %s.%s returned nil", t.name, name))
	}
	nt = nt.Fork()
	if nt.track.Len() > before {
		nt.track.RelabelLast(name)
		nt.track.MakeJointOfLast()
	}
	return nt
}

func (t *Table) HasRelation(name string) bool {
	if t.def == nil {
		return false
	}
	_, ok := t.def.Relations[name]
	return ok
}

// Relation 按名称取得声明的关联
func (t *Table) Relation(name string) (Relation, error) {
	if t.err != nil {
		return nil, t.err
	}
	fn, ok := t.def.Relations[name]
	if !ok {
		return nil, errors.Wrapf(ErrRelationNotDefined, "%s.%s", t.name, name)
	}
	rel := fn(t.Fork())
	if rel == nil {
		return nil, errors.Errorf("relation %s.%s returned nil", t.name, name)
	}
	return rel, nil
}

// JoinRelation 把声明的关联表达为当前链上的连接
func (t *Table) JoinRelation(name string) *Table {
	rel, err := t.Relation(name)
	if err != nil {
		return t.withErr(err)
	}
	return rel.Join(t)
}

// JoinPivot 只连接关联的中间表，没有中间表的关联等同于 JoinRelation
func (t *Table) JoinPivot(name string) *Table {
	rel, err := t.Relation(name)
	if err != nil {
		return t.withErr(err)
	}
	if pj, ok := rel.(PivotJoiner); ok {
		return pj.JoinPivot(t)
	}
	return rel.Join(t)
}

// Call 调用表上的自定义方法
func (t *Table) Call(ctx context.Context, name string, args ...any) (any, error) {
	if t.err != nil {
		return nil, t.err
	}
	fn, ok := t.def.Methods[name]
	if !ok {
		return nil, errors.Wrapf(ErrMethodNotDefined, "%s.%s", t.name, name)
	}
	return fn(ctx, t, args...)
}

// replay 在新的 QueryContext 上回放作用域
func (t *Table) replay() (*QueryContext, error) {
	if t.err != nil {
		return nil, t.err
	}
	qc := NewQueryContext(t.name)
	t.track.Apply(qc)
	if err := qc.Err(); err != nil {
		return nil, err
	}
	return qc, nil
}

// Table 取得另一张表，并带上本链的事务和缓存设置
func (t *Table) Table(name string) *Table {
	nt := t.orm.Table(name)
	qc, err := t.replay()
	if err != nil {
		return nt.withErr(err)
	}
	if qc.tx != nil {
		nt = nt.Transacting(qc.tx)
	}
	if qc.cacheEnabled {
		nt = nt.Cache(qc.cacheLifetime)
	}
	if qc.destroyCache {
		nt = nt.Uncache()
	}
	return nt
}

// plain 只带事务设置的本表句柄，用于持久化过程中的内部查询
func (t *Table) plain() (*Table, error) {
	qc, err := t.replay()
	if err != nil {
		return nil, err
	}
	nt := t.orm.Table(t.name)
	if qc.tx != nil {
		nt = nt.Transacting(qc.tx)
	}
	return nt, nil
}

func (t *Table) executor(qc *QueryContext) database.Executor {
	if qc.tx != nil {
		return qc.tx
	}
	return t.orm.engine
}

// ToSQL 编译 All 将执行的 SELECT 语句
func (t *Table) ToSQL() (string, []any, error) {
	qc, err := t.replay()
	if err != nil {
		return "", nil, err
	}
	return qc.selectBuilder().Distinct().SelectSQL(t.orm.engine.Dialect())
}
