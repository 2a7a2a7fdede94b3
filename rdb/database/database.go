package database

import (
	"context"
	"database/sql"

	"github.com/hatlonely/ormx/rdb/query"
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

var ErrUnsupportedDriver = errors.New("unsupported driver")

func init() {
	ref.MustRegisterT[*SQL](NewSQLWithOptions)
	ref.MustRegisterT[*Gorm](NewGormWithOptions)
	ref.MustRegisterT[*ObservableEngine](NewObservableEngineWithOptions)
}

// Result 写操作结果，LastInsertID 仅在驱动支持时有效
type Result struct {
	LastInsertID int64
	RowsAffected int64
}

// Executor 执行已编译的 SQL，行以列名到值的映射返回，[]byte 列值转换为 string
type Executor interface {
	Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error)
	Exec(ctx context.Context, sql string, args ...any) (Result, error)
}

// Engine 数据库引擎
type Engine interface {
	Executor
	Dialect() query.Dialect
	// Columns 返回表的列名，顺序与表定义一致
	Columns(ctx context.Context, table string) ([]string, error)
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx 事务，Commit 或 Rollback 之后不可再用
type Tx interface {
	Executor
	Commit() error
	Rollback() error
}

// NewEngineWithOptions 通过 ref 创建引擎，Namespace 为空时默认为本包
func NewEngineWithOptions(options *ref.TypeOptions) (Engine, error) {
	namespace, _ := ref.TypeName[*SQL]()
	engine, err := ref.NewAs[Engine](options, namespace)
	if err != nil {
		return nil, errors.WithMessage(err, "create engine failed")
	}
	return engine, nil
}

// scanRows 把结果集扫描为映射列表
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "rows.Columns failed")
	}

	result := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.Wrap(err, "rows.Scan failed")
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "rows.Next failed")
	}
	return result, nil
}

func toResult(r sql.Result) Result {
	var result Result
	// 部分驱动（如 postgres）不支持 LastInsertId
	if id, err := r.LastInsertId(); err == nil {
		result.LastInsertID = id
	}
	if n, err := r.RowsAffected(); err == nil {
		result.RowsAffected = n
	}
	return result
}
