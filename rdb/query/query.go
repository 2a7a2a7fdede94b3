package query

import (
	"strconv"
	"strings"
)

// Query 查询条件节点，编译为带 ? 占位符的 SQL 片段
type Query interface {
	ToSQL() (string, []any, error)
}

// Dialect SQL 方言，取值与 database/sql 的驱动名一致
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite3"
	DialectPostgres Dialect = "postgres"
)

// SupportsReturning INSERT 是否支持 RETURNING 子句
func (d Dialect) SupportsReturning() bool {
	return d == DialectPostgres || d == DialectSQLite
}

// Quote 引用标识符，用于包含 . 等特殊字符的列别名
func (d Dialect) Quote(ident string) string {
	if d == DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Rebind 把 ? 占位符转换为方言的占位符，postgres 使用 $1, $2...，单引号字符串内的 ? 保持不变
func Rebind(dialect Dialect, sql string) string {
	if dialect != DialectPostgres || !strings.Contains(sql, "?") {
		return sql
	}

	var b strings.Builder
	b.Grow(len(sql) + 8)
	n := 0
	inString := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\'':
			inString = !inString
			b.WriteByte(c)
		case c == '?' && !inString:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
