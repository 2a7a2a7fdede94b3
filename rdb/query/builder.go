package query

import (
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Join 连接子句，ON 条件为两个列的比较
type Join struct {
	Kind  string
	Table string
	Left  string
	Op    string
	Right string
}

type Order struct {
	Column string
	Desc   bool
}

// Builder 不可变的语句构造器，每次追加都返回新的副本
// 相同的构造过程总是编译出相同的 SQL 和参数
type Builder struct {
	table    string
	columns  []string
	distinct bool
	joins    []Join
	wheres   []Query
	orders   []Order
	limit    int
	hasLimit bool
	offset   int
}

func From(table string) Builder {
	return Builder{table: table}
}

func (b Builder) Table() string {
	return b.table
}

// Columns 替换投影列
func (b Builder) Columns(columns ...string) Builder {
	b.columns = slices.Clone(columns)
	return b
}

// AddColumns 追加投影列
func (b Builder) AddColumns(columns ...string) Builder {
	b.columns = append(slices.Clip(b.columns), columns...)
	return b
}

func (b Builder) ColumnList() []string {
	return slices.Clone(b.columns)
}

func (b Builder) Distinct() Builder {
	b.distinct = true
	return b
}

func (b Builder) Join(kind string, table string, left string, op string, right string) Builder {
	b.joins = append(slices.Clip(b.joins), Join{Kind: kind, Table: table, Left: left, Op: op, Right: right})
	return b
}

func (b Builder) Joins() []Join {
	return slices.Clone(b.joins)
}

func (b Builder) Where(q Query) Builder {
	b.wheres = append(slices.Clip(b.wheres), q)
	return b
}

func (b Builder) OrderBy(column string, desc bool) Builder {
	b.orders = append(slices.Clip(b.orders), Order{Column: column, Desc: desc})
	return b
}

func (b Builder) Limit(n int) Builder {
	b.limit = n
	b.hasLimit = true
	return b
}

func (b Builder) Offset(n int) Builder {
	b.offset = n
	return b
}

func (b Builder) compileJoins(sb *strings.Builder) error {
	for _, j := range b.joins {
		kind := strings.ToUpper(strings.TrimSpace(j.Kind))
		switch kind {
		case "", "INNER":
			kind = "INNER"
		case "LEFT", "RIGHT", "LEFT OUTER", "RIGHT OUTER", "CROSS":
		default:
			return errors.Errorf("unsupported join kind %q", j.Kind)
		}
		op := j.Op
		if op == "" {
			op = "="
		}
		sb.WriteString(" ")
		sb.WriteString(kind)
		sb.WriteString(" JOIN ")
		sb.WriteString(j.Table)
		sb.WriteString(" ON ")
		sb.WriteString(j.Left)
		sb.WriteString(" ")
		sb.WriteString(op)
		sb.WriteString(" ")
		sb.WriteString(j.Right)
	}
	return nil
}

func (b Builder) compileWhere(sb *strings.Builder) ([]any, error) {
	if len(b.wheres) == 0 {
		return nil, nil
	}
	var args []any
	sb.WriteString(" WHERE ")
	for i, q := range b.wheres {
		sql, queryArgs, err := q.ToSQL()
		if err != nil {
			return nil, err
		}
		if i > 0 {
			sb.WriteString(" AND ")
		}
		if _, ok := q.(*RawQuery); ok {
			sql = "(" + sql + ")"
		}
		sb.WriteString(sql)
		args = append(args, queryArgs...)
	}
	return args, nil
}

func (b Builder) checkTable() error {
	if b.table == "" {
		return errors.New("table is required")
	}
	return nil
}

// SelectSQL 编译 SELECT 语句，未指定列时投影 *
func (b Builder) SelectSQL(dialect Dialect) (string, []any, error) {
	if err := b.checkTable(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.columns, ", "))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	if err := b.compileJoins(&sb); err != nil {
		return "", nil, err
	}
	args, err := b.compileWhere(&sb)
	if err != nil {
		return "", nil, err
	}

	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range b.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.Column)
			if o.Desc {
				sb.WriteString(" DESC")
			} else {
				sb.WriteString(" ASC")
			}
		}
	}

	switch {
	case b.hasLimit:
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	case b.offset > 0 && dialect == DialectMySQL:
		sb.WriteString(" LIMIT 18446744073709551615")
	case b.offset > 0 && dialect != DialectPostgres:
		sb.WriteString(" LIMIT -1")
	}
	if b.offset > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(b.offset))
	}

	return Rebind(dialect, sb.String()), args, nil
}

// CountSQL 编译 COUNT 语句，忽略排序和分页，结果列名为 count
func (b Builder) CountSQL(dialect Dialect, column string) (string, []any, error) {
	if err := b.checkTable(); err != nil {
		return "", nil, err
	}
	if column == "" {
		column = "*"
	}

	var sb strings.Builder
	sb.WriteString("SELECT COUNT(")
	if b.distinct && column != "*" {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(column)
	sb.WriteString(") AS count FROM ")
	sb.WriteString(b.table)

	if err := b.compileJoins(&sb); err != nil {
		return "", nil, err
	}
	args, err := b.compileWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	return Rebind(dialect, sb.String()), args, nil
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InsertSQL 编译 INSERT 语句，列按名称排序
// returning 非空且方言支持时追加 RETURNING 子句
func (b Builder) InsertSQL(dialect Dialect, values map[string]any, returning string) (string, []any, error) {
	if err := b.checkTable(); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, errors.New("insert values are empty")
	}

	columns := sortedKeys(values)
	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = values[c]
	}

	placeholders := strings.Repeat("?, ", len(columns))
	sql := "INSERT INTO " + b.table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders[:len(placeholders)-2] + ")"
	if returning != "" && dialect.SupportsReturning() {
		sql += " RETURNING " + returning
	}
	return Rebind(dialect, sql), args, nil
}

func (b Builder) checkNoJoin(statement string) error {
	if len(b.joins) > 0 {
		return errors.Errorf("%s with joins is not supported", statement)
	}
	return nil
}

// UpdateSQL 编译 UPDATE 语句，列按名称排序
func (b Builder) UpdateSQL(dialect Dialect, values map[string]any) (string, []any, error) {
	if err := b.checkTable(); err != nil {
		return "", nil, err
	}
	if err := b.checkNoJoin("update"); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, errors.New("update values are empty")
	}

	columns := sortedKeys(values)
	args := make([]any, 0, len(columns))
	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = c + " = ?"
		args = append(args, values[c])
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(b.table)
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))
	whereArgs, err := b.compileWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	return Rebind(dialect, sb.String()), append(args, whereArgs...), nil
}

func (b Builder) DeleteSQL(dialect Dialect) (string, []any, error) {
	if err := b.checkTable(); err != nil {
		return "", nil, err
	}
	if err := b.checkNoJoin("delete"); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(b.table)
	args, err := b.compileWhere(&sb)
	if err != nil {
		return "", nil, err
	}
	return Rebind(dialect, sb.String()), args, nil
}

// TruncateSQL sqlite 不支持 TRUNCATE，使用不带条件的 DELETE
func (b Builder) TruncateSQL(dialect Dialect) (string, error) {
	if err := b.checkTable(); err != nil {
		return "", err
	}
	if dialect == DialectSQLite {
		return "DELETE FROM " + b.table, nil
	}
	return "TRUNCATE TABLE " + b.table, nil
}
