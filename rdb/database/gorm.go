package database

import (
	"context"
	"time"

	"github.com/hatlonely/ormx/rdb/query"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type GormOptions struct {
	// 驱动：mysql, sqlite3
	Driver string `cfg:"driver" def:"mysql" validate:"oneof=mysql sqlite3"`

	DSN      string `cfg:"dsn"`
	Host     string `cfg:"host" def:"localhost"`
	Port     string `cfg:"port"`
	Database string `cfg:"database"`
	Username string `cfg:"username"`
	Password string `cfg:"password"`
	Charset  string `cfg:"charset" def:"utf8mb4"`

	MaxConns int `cfg:"maxConns" def:"10"`
	MaxIdle  int `cfg:"maxIdle" def:"5"`

	// gorm 自身的日志级别：silent, error, warn, info
	LogLevel      string        `cfg:"logLevel" def:"silent" validate:"omitempty,oneof=silent error warn info"`
	SlowThreshold time.Duration `cfg:"slowThreshold" def:"200ms"`
}

// Gorm 基于 gorm 连接的引擎，语句原样执行，列信息来自 Migrator
type Gorm struct {
	db      *gorm.DB
	dialect query.Dialect
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "error":
		return gormlogger.Error
	case "warn":
		return gormlogger.Warn
	case "info":
		return gormlogger.Info
	}
	return gormlogger.Silent
}

func NewGormWithOptions(options *GormOptions) (*Gorm, error) {
	dsn, err := buildDSN(&SQLOptions{
		Driver:   options.Driver,
		DSN:      options.DSN,
		Host:     options.Host,
		Port:     options.Port,
		Database: options.Database,
		Username: options.Username,
		Password: options.Password,
		Charset:  options.Charset,
	})
	if err != nil {
		return nil, err
	}

	var dialector gorm.Dialector
	switch options.Driver {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "sqlite3":
		dialector = sqlite.Open(dsn)
	default:
		return nil, errors.Wrapf(ErrUnsupportedDriver, "gorm driver %s", options.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel(options.LogLevel)),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "gorm.Open %s failed", options.Driver)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "gorm.DB failed")
	}
	maxConns, maxIdle := options.MaxConns, options.MaxIdle
	if options.Driver == "sqlite3" && (dsn == ":memory:" || dsn == "") {
		maxConns, maxIdle = 1, 1
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxIdle)

	return NewGorm(db), nil
}

// NewGorm 包装已有的 gorm 连接
func NewGorm(db *gorm.DB) *Gorm {
	dialect := query.DialectMySQL
	switch db.Dialector.Name() {
	case "sqlite":
		dialect = query.DialectSQLite
	case "postgres":
		dialect = query.DialectPostgres
	}
	return &Gorm{db: db, dialect: dialect}
}

func (g *Gorm) DB() *gorm.DB {
	return g.db
}

func (g *Gorm) Dialect() query.Dialect {
	return g.dialect
}

func gormQuery(db *gorm.DB, ctx context.Context, sqlStr string, args []any) ([]map[string]any, error) {
	rows, err := db.WithContext(ctx).Raw(sqlStr, args...).Rows()
	if err != nil {
		return nil, errors.Wrapf(err, "query failed: %s", sqlStr)
	}
	return scanRows(rows)
}

// gormExec 直接使用连接池执行，以便取得 LastInsertId
func gormExec(db *gorm.DB, ctx context.Context, sqlStr string, args []any) (Result, error) {
	r, err := db.WithContext(ctx).Statement.ConnPool.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return Result{}, errors.Wrapf(err, "exec failed: %s", sqlStr)
	}
	return toResult(r), nil
}

func (g *Gorm) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	return gormQuery(g.db, ctx, sqlStr, args)
}

func (g *Gorm) Exec(ctx context.Context, sqlStr string, args ...any) (Result, error) {
	return gormExec(g.db, ctx, sqlStr, args)
}

func (g *Gorm) Columns(ctx context.Context, table string) ([]string, error) {
	columnTypes, err := g.db.WithContext(ctx).Migrator().ColumnTypes(table)
	if err != nil {
		return nil, errors.Wrapf(err, "get columns of %s failed", table)
	}
	columns := make([]string, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = ct.Name()
	}
	return columns, nil
}

func (g *Gorm) Begin(ctx context.Context) (Tx, error) {
	tx := g.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, errors.Wrap(tx.Error, "begin transaction failed")
	}
	return &GormTx{tx: tx}, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return errors.Wrap(err, "gorm.DB failed")
	}
	return sqlDB.Close()
}

type GormTx struct {
	tx *gorm.DB
}

func (t *GormTx) Query(ctx context.Context, sqlStr string, args ...any) ([]map[string]any, error) {
	return gormQuery(t.tx, ctx, sqlStr, args)
}

func (t *GormTx) Exec(ctx context.Context, sqlStr string, args ...any) (Result, error) {
	return gormExec(t.tx, ctx, sqlStr, args)
}

func (t *GormTx) Commit() error {
	return errors.Wrap(t.tx.Commit().Error, "commit failed")
}

func (t *GormTx) Rollback() error {
	return errors.Wrap(t.tx.Rollback().Error, "rollback failed")
}
