package database

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/hatlonely/ormx/cfg"
	"github.com/hatlonely/ormx/log/logger"
	"github.com/hatlonely/ormx/rdb/query"
	"github.com/hatlonely/ormx/ref"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
)

const usersDDL = `CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	age INTEGER
)`

func newSQLiteEngine(t *testing.T) *SQL {
	engine, err := NewSQLWithOptions(&SQLOptions{Driver: "sqlite3", Database: ":memory:", MaxConns: 10})
	require.NoError(t, err)
	_, err = engine.Exec(context.Background(), usersDDL)
	require.NoError(t, err)
	return engine
}

func newGormSQLiteEngine(t *testing.T) *Gorm {
	engine, err := NewGormWithOptions(&GormOptions{Driver: "sqlite3", Database: ":memory:", MaxConns: 10, LogLevel: "silent"})
	require.NoError(t, err)
	_, err = engine.Exec(context.Background(), usersDDL)
	require.NoError(t, err)
	return engine
}

// testEngineBehavior 各引擎共享的行为
func testEngineBehavior(engine Engine) {
	ctx := context.Background()

	Convey("Exec 返回自增 ID 和影响行数", func() {
		r, err := engine.Exec(ctx, "INSERT INTO users (name, age) VALUES (?, ?)", "alice", 20)
		So(err, ShouldBeNil)
		So(r.LastInsertID, ShouldEqual, int64(1))
		So(r.RowsAffected, ShouldEqual, int64(1))

		r, err = engine.Exec(ctx, "INSERT INTO users (name, age) VALUES (?, ?)", "bob", 30)
		So(err, ShouldBeNil)
		So(r.LastInsertID, ShouldEqual, int64(2))

		r, err = engine.Exec(ctx, "UPDATE users SET age = age + 1")
		So(err, ShouldBeNil)
		So(r.RowsAffected, ShouldEqual, int64(2))
	})

	Convey("Query 以映射返回行，文本列为 string", func() {
		_, err := engine.Exec(ctx, "INSERT INTO users (name, age) VALUES (?, ?)", "alice", 20)
		So(err, ShouldBeNil)

		rows, err := engine.Query(ctx, "SELECT id, name, age FROM users WHERE name = ?", "alice")
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 1)
		So(rows[0]["name"], ShouldEqual, "alice")
		So(rows[0]["age"], ShouldEqual, int64(20))

		rows, err = engine.Query(ctx, "SELECT * FROM users WHERE name = ?", "nobody")
		So(err, ShouldBeNil)
		So(rows, ShouldNotBeNil)
		So(len(rows), ShouldEqual, 0)
	})

	Convey("Columns 按表定义顺序返回列名", func() {
		columns, err := engine.Columns(ctx, "users")
		So(err, ShouldBeNil)
		So(columns, ShouldResemble, []string{"id", "name", "age"})
	})

	Convey("语法错误", func() {
		_, err := engine.Query(ctx, "SELECT FROM")
		So(err, ShouldNotBeNil)
		_, err = engine.Exec(ctx, "INSERT INTO missing VALUES (1)")
		So(err, ShouldNotBeNil)
	})

	Convey("事务提交", func() {
		tx, err := engine.Begin(ctx)
		So(err, ShouldBeNil)
		_, err = tx.Exec(ctx, "INSERT INTO users (name) VALUES (?)", "carol")
		So(err, ShouldBeNil)
		rows, err := tx.Query(ctx, "SELECT name FROM users")
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 1)
		So(tx.Commit(), ShouldBeNil)

		rows, err = engine.Query(ctx, "SELECT name FROM users")
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 1)
	})

	Convey("事务回滚", func() {
		tx, err := engine.Begin(ctx)
		So(err, ShouldBeNil)
		_, err = tx.Exec(ctx, "INSERT INTO users (name) VALUES (?)", "dave")
		So(err, ShouldBeNil)
		So(tx.Rollback(), ShouldBeNil)

		rows, err := engine.Query(ctx, "SELECT name FROM users")
		So(err, ShouldBeNil)
		So(len(rows), ShouldEqual, 0)
	})
}

func TestSQL(t *testing.T) {
	Convey("SQL 引擎", t, func() {
		engine := newSQLiteEngine(t)
		defer engine.Close()

		So(engine.Dialect(), ShouldEqual, query.DialectSQLite)
		testEngineBehavior(engine)
	})
}

func TestGorm(t *testing.T) {
	Convey("Gorm 引擎", t, func() {
		engine := newGormSQLiteEngine(t)
		defer engine.Close()

		So(engine.Dialect(), ShouldEqual, query.DialectSQLite)
		testEngineBehavior(engine)
	})
}

func TestObservableEngine(t *testing.T) {
	Convey("ObservableEngine", t, func() {
		var buf bytes.Buffer
		l := logger.NewSLog(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		registry := prometheus.NewRegistry()
		metrics := NewEngineMetrics("test_rdb", registry)

		engine := NewObservableEngine(newSQLiteEngine(t), "test", l, metrics)
		defer engine.Close()

		testEngineBehavior(engine)

		Convey("记录语句日志和指标", func() {
			_, err := engine.Query(context.Background(), "SELECT * FROM users WHERE id = ?", 1)
			So(err, ShouldBeNil)
			_, err = engine.Query(context.Background(), "SELECT FROM")
			So(err, ShouldNotBeNil)

			So(buf.String(), ShouldContainSubstring, "statement executed")
			So(buf.String(), ShouldContainSubstring, "statement failed")
			So(buf.String(), ShouldContainSubstring, "SELECT * FROM users WHERE id = ?")
			So(testutil.ToFloat64(metrics.statementCounter.WithLabelValues("query", "error")), ShouldBeGreaterThanOrEqualTo, 1)
		})

		Convey("同名指标复用", func() {
			So(NewEngineMetrics("test_rdb", registry).statementCounter, ShouldEqual, metrics.statementCounter)
		})

		Convey("Unwrap", func() {
			_, ok := engine.Unwrap().(*SQL)
			So(ok, ShouldBeTrue)
		})
	})
}

func TestNewEngineWithOptions(t *testing.T) {
	Convey("通过配置创建引擎", t, func() {
		Convey("SQL", func() {
			engine, err := NewEngineWithOptions(&ref.TypeOptions{
				Type: "SQL",
				Options: cfg.NewNode(map[string]any{
					"driver":   "sqlite3",
					"database": ":memory:",
				}),
			})
			So(err, ShouldBeNil)
			defer engine.Close()
			_, ok := engine.(*SQL)
			So(ok, ShouldBeTrue)
		})

		Convey("ObservableEngine 包装 Gorm", func() {
			engine, err := NewEngineWithOptions(&ref.TypeOptions{
				Type: "ObservableEngine",
				Options: cfg.NewNode(map[string]any{
					"name":          "cfg_rdb",
					"enableMetrics": false,
					"engine": map[string]any{
						"type": "Gorm",
						"options": map[string]any{
							"driver":   "sqlite3",
							"database": ":memory:",
						},
					},
				}),
			})
			So(err, ShouldBeNil)
			defer engine.Close()
			obs, ok := engine.(*ObservableEngine)
			So(ok, ShouldBeTrue)
			_, ok = obs.Unwrap().(*Gorm)
			So(ok, ShouldBeTrue)
		})

		Convey("不支持的驱动", func() {
			_, err := NewEngineWithOptions(&ref.TypeOptions{
				Type:    "SQL",
				Options: cfg.NewNode(map[string]any{"driver": "oracle"}),
			})
			So(err, ShouldNotBeNil)
		})

		Convey("DSN 拼接", func() {
			dsn, err := buildDSN(&SQLOptions{Driver: "mysql", Host: "db", Username: "u", Password: "p", Database: "d", Charset: "utf8mb4"})
			So(err, ShouldBeNil)
			So(dsn, ShouldEqual, "u:p@tcp(db:3306)/d?charset=utf8mb4&parseTime=True&loc=Local")

			dsn, err = buildDSN(&SQLOptions{Driver: "postgres", Host: "db", Username: "u", Password: "p", Database: "d", SSLMode: "disable"})
			So(err, ShouldBeNil)
			So(dsn, ShouldEqual, "host=db port=5432 user=u password=p dbname=d sslmode=disable")
		})
	})
}
