package query

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestQueryToSQL(t *testing.T) {
	Convey("条件节点编译", t, func() {
		cases := []struct {
			q    Query
			sql  string
			args []any
		}{
			{&TermQuery{Field: "users.id", Value: 1}, "users.id = ?", []any{1}},
			{&TermQuery{Field: "age", Op: ">=", Value: 18}, "age >= ?", []any{18}},
			{&TermQuery{Field: "name", Op: "LIKE", Value: "a%"}, "name LIKE ?", []any{"a%"}},
			{&TermQuery{Field: "deleted_at", Value: nil}, "deleted_at IS NULL", nil},
			{&TermQuery{Field: "deleted_at", Op: "<>", Value: nil}, "deleted_at IS NOT NULL", nil},
			{&InQuery{Field: "id", Values: []any{1, 2, 3}}, "id IN (?, ?, ?)", []any{1, 2, 3}},
			{&InQuery{Field: "id", Values: []any{1}, Not: true}, "id NOT IN (?)", []any{1}},
			{&InQuery{Field: "id"}, "1=0", nil},
			{&InQuery{Field: "id", Not: true}, "1=1", nil},
			{&NullQuery{Field: "id"}, "id IS NULL", nil},
			{&NullQuery{Field: "id", Not: true}, "id IS NOT NULL", nil},
			{&BetweenQuery{Field: "age", Low: 1, High: 9}, "age BETWEEN ? AND ?", []any{1, 9}},
			{&BetweenQuery{Field: "age", Low: 1, High: 9, Not: true}, "age NOT BETWEEN ? AND ?", []any{1, 9}},
			{&ILikeQuery{Field: "name", Value: "%Al%"}, "LOWER(name) LIKE LOWER(?)", []any{"%Al%"}},
			{&RangeQuery{Field: "age", Gt: 1, Lte: 5}, "age > ? AND age <= ?", []any{1, 5}},
			{&RangeQuery{Field: "age"}, "1=1", nil},
			{&RawQuery{SQL: "a = ? OR b = ?", Args: []any{1, 2}}, "a = ? OR b = ?", []any{1, 2}},
			{Not(&TermQuery{Field: "a", Value: 1}), "(NOT (a = ?))", []any{1}},
			{Or(&TermQuery{Field: "a", Value: 1}, &TermQuery{Field: "b", Value: 2}), "(a = ? OR b = ?)", []any{1, 2}},
			{And(&TermQuery{Field: "a", Value: 1}, &NullQuery{Field: "b"}), "(a = ? AND b IS NULL)", []any{1}},
			{&BoolQuery{}, "1=1", nil},
		}

		for _, c := range cases {
			sql, args, err := c.q.ToSQL()
			So(err, ShouldBeNil)
			So(sql, ShouldEqual, c.sql)
			So(args, ShouldResemble, c.args)
		}
	})

	Convey("非法运算符返回错误", t, func() {
		_, _, err := (&TermQuery{Field: "a", Op: "===", Value: 1}).ToSQL()
		So(err, ShouldNotBeNil)
		So(IsTermOperator("not like"), ShouldBeTrue)
		So(IsTermOperator("in"), ShouldBeFalse)
	})

	Convey("MinShouldMatch", t, func() {
		n := 2
		sql, args, err := (&BoolQuery{
			Should:         []Query{&TermQuery{Field: "a", Value: 1}, &TermQuery{Field: "b", Value: 2}, &TermQuery{Field: "c", Value: 3}},
			MinShouldMatch: &n,
		}).ToSQL()
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "(CASE WHEN (a = ?) THEN 1 ELSE 0 END + CASE WHEN (b = ?) THEN 1 ELSE 0 END + CASE WHEN (c = ?) THEN 1 ELSE 0 END) >= 2")
		So(args, ShouldResemble, []any{1, 2, 3})
	})
}

func TestRebind(t *testing.T) {
	Convey("postgres 占位符", t, func() {
		So(Rebind(DialectPostgres, "a = ? AND b = '?' AND c IN (?, ?)"), ShouldEqual, "a = $1 AND b = '?' AND c IN ($2, $3)")
		So(Rebind(DialectMySQL, "a = ?"), ShouldEqual, "a = ?")
	})

	Convey("标识符引用", t, func() {
		So(DialectMySQL.Quote("pivot.id"), ShouldEqual, "`pivot.id`")
		So(DialectSQLite.Quote("pivot.id"), ShouldEqual, `"pivot.id"`)
		So(DialectPostgres.SupportsReturning(), ShouldBeTrue)
		So(DialectMySQL.SupportsReturning(), ShouldBeFalse)
	})
}

func TestBuilder(t *testing.T) {
	Convey("SELECT", t, func() {
		b := From("posts").
			Columns("posts.*").
			Distinct().
			Join("inner", "tags_posts", "tags_posts.post_id", "=", "posts.id").
			Where(&InQuery{Field: "tags_posts.tag_id", Values: []any{1, 2}}).
			Where(&RawQuery{SQL: "posts.a = ? OR posts.b = ?", Args: []any{"x", "y"}}).
			OrderBy("posts.id", true).
			Limit(10).
			Offset(20)

		sql, args, err := b.SelectSQL(DialectSQLite)
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "SELECT DISTINCT posts.* FROM posts INNER JOIN tags_posts ON tags_posts.post_id = posts.id WHERE tags_posts.tag_id IN (?, ?) AND (posts.a = ? OR posts.b = ?) ORDER BY posts.id DESC LIMIT 10 OFFSET 20")
		So(args, ShouldResemble, []any{1, 2, "x", "y"})

		Convey("相同构造编译结果相同", func() {
			sql2, args2, err := b.SelectSQL(DialectSQLite)
			So(err, ShouldBeNil)
			So(sql2, ShouldEqual, sql)
			So(args2, ShouldResemble, args)
		})

		Convey("追加不影响原构造器", func() {
			base := From("users").Where(&TermQuery{Field: "a", Value: 1})
			b1 := base.Where(&TermQuery{Field: "b", Value: 2})
			b2 := base.Where(&TermQuery{Field: "c", Value: 3})
			s1, _, _ := b1.SelectSQL(DialectMySQL)
			s2, _, _ := b2.SelectSQL(DialectMySQL)
			s0, _, _ := base.SelectSQL(DialectMySQL)
			So(s0, ShouldEqual, "SELECT * FROM users WHERE a = ?")
			So(s1, ShouldEqual, "SELECT * FROM users WHERE a = ? AND b = ?")
			So(s2, ShouldEqual, "SELECT * FROM users WHERE a = ? AND c = ?")
		})

		Convey("只有 OFFSET", func() {
			s, _, _ := From("users").Offset(5).SelectSQL(DialectSQLite)
			So(s, ShouldEqual, "SELECT * FROM users LIMIT -1 OFFSET 5")
			s, _, _ = From("users").Offset(5).SelectSQL(DialectPostgres)
			So(s, ShouldEqual, "SELECT * FROM users OFFSET 5")
		})

		Convey("非法 JOIN 类型", func() {
			_, _, err := From("a").Join("sideways", "b", "a.id", "=", "b.a_id").SelectSQL(DialectMySQL)
			So(err, ShouldNotBeNil)
		})

		Convey("缺少表名", func() {
			_, _, err := Builder{}.SelectSQL(DialectMySQL)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("COUNT", t, func() {
		sql, args, err := From("users").Distinct().Where(&TermQuery{Field: "users.age", Op: ">", Value: 3}).
			OrderBy("users.id", false).Limit(1).
			CountSQL(DialectPostgres, "users.id")
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "SELECT COUNT(DISTINCT users.id) AS count FROM users WHERE users.age > $1")
		So(args, ShouldResemble, []any{3})
	})

	Convey("INSERT", t, func() {
		values := map[string]any{"name": "a", "age": 3, "id": "k"}
		sql, args, err := From("users").InsertSQL(DialectMySQL, values, "id")
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "INSERT INTO users (age, id, name) VALUES (?, ?, ?)")
		So(args, ShouldResemble, []any{3, "k", "a"})

		sql, _, err = From("users").InsertSQL(DialectPostgres, values, "id")
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "INSERT INTO users (age, id, name) VALUES ($1, $2, $3) RETURNING id")

		_, _, err = From("users").InsertSQL(DialectMySQL, nil, "")
		So(err, ShouldNotBeNil)
	})

	Convey("UPDATE / DELETE / TRUNCATE", t, func() {
		b := From("users").Where(&TermQuery{Field: "users.id", Value: 7})

		sql, args, err := b.UpdateSQL(DialectSQLite, map[string]any{"name": "b", "age": 4})
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "UPDATE users SET age = ?, name = ? WHERE users.id = ?")
		So(args, ShouldResemble, []any{4, "b", 7})

		sql, args, err = b.DeleteSQL(DialectSQLite)
		So(err, ShouldBeNil)
		So(sql, ShouldEqual, "DELETE FROM users WHERE users.id = ?")
		So(args, ShouldResemble, []any{7})

		_, _, err = b.Join("", "posts", "posts.user_id", "=", "users.id").DeleteSQL(DialectSQLite)
		So(err, ShouldNotBeNil)

		s, err := b.TruncateSQL(DialectSQLite)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "DELETE FROM users")
		s, err = b.TruncateSQL(DialectMySQL)
		So(err, ShouldBeNil)
		So(s, ShouldEqual, "TRUNCATE TABLE users")
	})
}
