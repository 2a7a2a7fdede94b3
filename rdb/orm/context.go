package orm

import (
	"maps"
	"strings"
	"time"

	"github.com/hatlonely/ormx/rdb/database"
	"github.com/hatlonely/ormx/rdb/query"
)

// QueryContext 一次终结操作的查询状态，由 ScopeTrack 回放得到，不在查询链之间共享
type QueryContext struct {
	table   string
	builder query.Builder
	columns []string

	cacheEnabled  bool
	cacheLifetime time.Duration
	destroyCache  bool

	tx         database.Tx
	eagerLoads EagerLoads
	err        error
}

func NewQueryContext(table string) *QueryContext {
	return &QueryContext{
		table:      table,
		builder:    query.From(table),
		eagerLoads: EagerLoads{},
	}
}

func (qc *QueryContext) TableName() string {
	return qc.table
}

// Column 未限定的列名加上表名前缀
func (qc *QueryContext) Column(c string) string {
	return qualify(qc.table, c)
}

func qualify(table string, c string) string {
	if strings.Contains(c, ".") {
		return c
	}
	return table + "." + c
}

func (qc *QueryContext) Where(q query.Query) {
	qc.builder = qc.builder.Where(q)
}

func (qc *QueryContext) Join(kind string, table string, left string, op string, right string) {
	qc.builder = qc.builder.Join(kind, table, left, op, right)
}

func (qc *QueryContext) OrderBy(column string, desc bool) {
	qc.builder = qc.builder.OrderBy(column, desc)
}

func (qc *QueryContext) Limit(n int) {
	qc.builder = qc.builder.Limit(n)
}

func (qc *QueryContext) Offset(n int) {
	qc.builder = qc.builder.Offset(n)
}

// Select 替换投影列
func (qc *QueryContext) Select(columns ...string) {
	qc.columns = append([]string(nil), columns...)
}

// AddSelect 在当前投影之后追加列，未设置投影时以 table.* 开始
func (qc *QueryContext) AddSelect(columns ...string) {
	if len(qc.columns) == 0 {
		qc.columns = []string{qc.table + ".*"}
	}
	qc.columns = append(qc.columns, columns...)
}

func (qc *QueryContext) Projection() []string {
	if len(qc.columns) == 0 {
		return []string{qc.table + ".*"}
	}
	return append([]string(nil), qc.columns...)
}

func (qc *QueryContext) Cache(lifetime time.Duration) {
	qc.cacheEnabled = true
	qc.cacheLifetime = lifetime
}

func (qc *QueryContext) Uncache() {
	qc.destroyCache = true
}

func (qc *QueryContext) Transacting(tx database.Tx) {
	qc.tx = tx
}

func (qc *QueryContext) Tx() database.Tx {
	return qc.tx
}

func (qc *QueryContext) MergeEagerLoads(loads EagerLoads) {
	maps.Copy(qc.eagerLoads, loads)
}

func (qc *QueryContext) EagerLoads() EagerLoads {
	return maps.Clone(qc.eagerLoads)
}

// Fail 记录编译期错误，终结操作在任何 I/O 之前返回它
func (qc *QueryContext) Fail(err error) {
	if qc.err == nil {
		qc.err = err
	}
}

func (qc *QueryContext) Err() error {
	return qc.err
}

// selectBuilder 带投影的 SELECT 构造器
func (qc *QueryContext) selectBuilder() query.Builder {
	return qc.builder.Columns(qc.Projection()...)
}

// 内置操作

type whereOp struct {
	q query.Query
}

func (o whereOp) Apply(qc *QueryContext) {
	qc.Where(o.q)
}

type joinOp struct {
	kind  string
	table string
	left  string
	op    string
	right string
}

func (o joinOp) Apply(qc *QueryContext) {
	qc.Join(o.kind, o.table, o.left, o.op, o.right)
}

type orderOp struct {
	column string
	desc   bool
}

func (o orderOp) Apply(qc *QueryContext) {
	qc.OrderBy(o.column, o.desc)
}

type limitOp struct {
	n int
}

func (o limitOp) Apply(qc *QueryContext) {
	qc.Limit(o.n)
}

type offsetOp struct {
	n int
}

func (o offsetOp) Apply(qc *QueryContext) {
	qc.Offset(o.n)
}

type pageOp struct {
	limit  int
	offset int
}

func (o pageOp) Apply(qc *QueryContext) {
	qc.Limit(o.limit)
	qc.Offset(o.offset)
}

type selectOp struct {
	columns []string
	add     bool
}

func (o selectOp) Apply(qc *QueryContext) {
	if o.add {
		qc.AddSelect(o.columns...)
	} else {
		qc.Select(o.columns...)
	}
}

type cacheOp struct {
	lifetime time.Duration
}

func (o cacheOp) Apply(qc *QueryContext) {
	qc.Cache(o.lifetime)
}

type uncacheOp struct{}

func (uncacheOp) Apply(qc *QueryContext) {
	qc.Uncache()
}

type transactingOp struct {
	tx database.Tx
}

func (o transactingOp) Apply(qc *QueryContext) {
	qc.Transacting(o.tx)
}

type eagerLoadOp struct {
	loads EagerLoads
}

func (o eagerLoadOp) Apply(qc *QueryContext) {
	qc.MergeEagerLoads(o.loads)
}
