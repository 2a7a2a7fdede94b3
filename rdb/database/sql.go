package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/hatlonely/ormx/rdb/query"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

type SQLOptions struct {
	// 驱动：mysql, sqlite3, postgres
	Driver string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3 postgres"`

	// 设置后忽略 Host/Port/Database 等连接参数
	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`
	SSLMode  string `cfg:"sslMode" def:"disable"`

	MaxConns        int           `cfg:"maxConns" def:"10"`
	MaxIdle         int           `cfg:"maxIdle" def:"5"`
	ConnMaxLifetime time.Duration `cfg:"connMaxLifetime" def:"0s"`
}

// SQL 基于 database/sql 的引擎
type SQL struct {
	db      *sql.DB
	dialect query.Dialect
}

func buildDSN(options *SQLOptions) (string, error) {
	if options.DSN != "" {
		return options.DSN, nil
	}
	switch options.Driver {
	case "mysql":
		port := options.Port
		if port == "" {
			port = "3306"
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=%s&parseTime=True&loc=Local",
			options.Username, options.Password, options.Host, port, options.Database, options.Charset), nil
	case "postgres":
		port := options.Port
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			options.Host, port, options.Username, options.Password, options.Database, options.SSLMode), nil
	case "sqlite3":
		return options.Database, nil
	}
	return "", errors.Wrapf(ErrUnsupportedDriver, "driver %s", options.Driver)
}

func NewSQLWithOptions(options *SQLOptions) (*SQL, error) {
	dsn, err := buildDSN(options)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(options.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "sql.Open %s failed", options.Driver)
	}

	maxConns, maxIdle := options.MaxConns, options.MaxIdle
	// 每个 :memory: 连接是一个独立的数据库，连接关闭即丢失
	if options.Driver == "sqlite3" && (dsn == ":memory:" || dsn == "") {
		maxConns, maxIdle = 1, 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(options.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "ping %s failed", options.Driver)
	}

	return NewSQL(db, query.Dialect(options.Driver)), nil
}

// NewSQL 包装已打开的连接池
func NewSQL(db *sql.DB, dialect query.Dialect) *SQL {
	return &SQL{db: db, dialect: dialect}
}

// DB 返回底层连接池
func (s *SQL) DB() *sql.DB {
	return s.db
}

func (s *SQL) Dialect() query.Dialect {
	return s.dialect
}

func (s *SQL) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query failed: %s", sqlStr)
	}
	return scanRows(rows)
}

func (s *SQL) Exec(ctx context.Context, sqlStr string, args ...any) (Result, error) {
	r, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Result{}, errors.Wrapf(err, "exec failed: %s", sqlStr)
	}
	return toResult(r), nil
}

// Columns 通过 LIMIT 0 查询获取列名，各方言通用
func (s *SQL) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+table+" LIMIT 0")
	if err != nil {
		return nil, errors.Wrapf(err, "get columns of %s failed", table)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrapf(err, "get columns of %s failed", table)
	}
	return columns, nil
}

func (s *SQL) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction failed")
	}
	return &SQLTx{tx: tx}, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}

type SQLTx struct {
	tx *sql.Tx
}

func (t *SQLTx) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	rows, err := t.tx.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query failed: %s", sqlStr)
	}
	return scanRows(rows)
}

func (t *SQLTx) Exec(ctx context.Context, sqlStr string, args ...any) (Result, error) {
	r, err := t.tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Result{}, errors.Wrapf(err, "exec failed: %s", sqlStr)
	}
	return toResult(r), nil
}

func (t *SQLTx) Commit() error {
	return errors.Wrap(t.tx.Commit(), "commit failed")
}

func (t *SQLTx) Rollback() error {
	return errors.Wrap(t.tx.Rollback(), "rollback failed")
}
