package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hatlonely/ormx/rdb/database"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/require"
)

const configTemplate = `
engine:
  type: SQL
  options:
    driver: sqlite3
    database: {{db}}
store:
  type: MapStore
tables:
  - name: users
    keyMode: autoIncrement
    relations:
      posts:
        kind: hasMany
        related: posts
        foreignKey: user_id
  - name: posts
    keyMode: autoIncrement
    perPage: 2
`

// newConfig 在临时目录中准备 sqlite 数据库和配置文件
func newConfig(t *testing.T) string {
	dir := t.TempDir()
	db := filepath.Join(dir, "test.db")

	engine, err := database.NewSQLWithOptions(&database.SQLOptions{Driver: "sqlite3", Database: db, MaxConns: 1, MaxIdle: 1})
	require.NoError(t, err)
	defer engine.Close()
	for _, stmt := range []string{
		`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT, age INTEGER)`,
		`CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, title TEXT)`,
		`INSERT INTO users (id, name, age) VALUES (1, 'alice', 20), (2, 'bob', 30)`,
		`INSERT INTO posts (id, user_id, title) VALUES (1, 1, 'p1'), (2, 1, 'p2'), (3, 2, 'p3')`,
	} {
		_, err := engine.Exec(context.Background(), stmt)
		require.NoError(t, err)
	}

	path := filepath.Join(dir, "ormctl.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.ReplaceAll(configTemplate, "{{db}}", db)), 0644))
	return path
}

func run(args ...string) (string, error) {
	var buf bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	Convey("命令和全局参数", t, func() {
		cmd := NewRootCommand()
		So(cmd.Use, ShouldEqual, "ormctl")
		for _, name := range []string{"columns", "count", "query", "find", "clear-cache"} {
			sub, _, err := cmd.Find([]string{name})
			So(err, ShouldBeNil)
			So(sub.Name(), ShouldEqual, name)
		}
		So(cmd.PersistentFlags().Lookup("format").DefValue, ShouldEqual, "text")
		So(cmd.PersistentFlags().Lookup("config").Shorthand, ShouldEqual, "c")
	})

	Convey("参数校验", t, func() {
		_, err := run("count", "users")
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "--config")

		_, err = run("count", "users", "--config", "x.yaml", "--format", "xml")
		So(err, ShouldNotBeNil)

		_, err = run("count", "users", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestCommands(t *testing.T) {
	Convey("子命令", t, func() {
		config := newConfig(t)

		Convey("columns", func() {
			out, err := run("columns", "users", "-c", config)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "id\nname\nage\n")
		})

		Convey("count", func() {
			out, err := run("count", "posts", "-c", config, "--where", "user_id=1")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "2\n")

			out, err = run("count", "users", "-c", config, "-w", "age>=30", "--format", "json")
			So(err, ShouldBeNil)
			So(strings.TrimSpace(out), ShouldEqual, "1")

			_, err = run("count", "users", "-c", config, "-w", "age")
			So(err, ShouldNotBeNil)
		})

		Convey("query 输出 json 并预加载关联", func() {
			out, err := run("query", "users", "-c", config, "--order", "id", "--with", "posts", "--format", "json")
			So(err, ShouldBeNil)

			var rows []map[string]any
			So(json.Unmarshal([]byte(out), &rows), ShouldBeNil)
			So(len(rows), ShouldEqual, 2)
			So(rows[0]["name"], ShouldEqual, "alice")
			So(len(rows[0]["posts"].([]any)), ShouldEqual, 2)
		})

		Convey("query 分页和排序", func() {
			out, err := run("query", "posts", "-c", config, "--order", "id:desc", "--page", "2", "--cache", "5s")
			So(err, ShouldBeNil)
			lines := strings.Split(strings.TrimSpace(out), "\n")
			So(len(lines), ShouldEqual, 2)
			So(lines[0], ShouldStartWith, "id")
			So(lines[1], ShouldContainSubstring, "p1")
		})

		Convey("find", func() {
			out, err := run("find", "users", "2", "-c", config, "--format", "json")
			So(err, ShouldBeNil)
			var rows []map[string]any
			So(json.Unmarshal([]byte(out), &rows), ShouldBeNil)
			So(rows[0]["name"], ShouldEqual, "bob")

			_, err = run("find", "users", "9", "-c", config)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "not found")
		})

		Convey("clear-cache", func() {
			out, err := run("clear-cache", "users", "-c", config)
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "cleared")
		})

		Convey("未声明的表", func() {
			_, err := run("query", "nope", "-c", config)
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseWhere(t *testing.T) {
	Convey("解析条件", t, func() {
		for _, c := range []struct {
			expr  string
			field string
			op    string
			value any
		}{
			{"age=20", "age", "=", int64(20)},
			{"age >= 20", "age", ">=", int64(20)},
			{"name!=bob", "name", "!=", "bob"},
			{"score<2.5", "score", "<", "2.5"},
		} {
			field, op, value, err := parseWhere(c.expr)
			So(err, ShouldBeNil)
			So(field, ShouldEqual, c.field)
			So(op, ShouldEqual, c.op)
			So(value, ShouldEqual, c.value)
		}

		_, _, _, err := parseWhere("=1")
		So(err, ShouldNotBeNil)
	})
}
