package orm

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEagerLoad(t *testing.T) {
	Convey("预加载", t, func() {
		o, engine := newFixture(t, nil)
		ctx := context.Background()
		users := o.Table("users").OrderBy("id")
		posts := o.Table("posts").OrderBy("id")

		Convey("hasMany 每层一次查询，没有关联数据时为空列表", func() {
			rows, err := users.EagerLoad("posts").All(ctx)
			So(err, ShouldBeNil)
			So(engine.reset(), ShouldEqual, 2)
			So(len(rows[0]["posts"].([]Model)), ShouldEqual, 2)
			So(len(rows[1]["posts"].([]Model)), ShouldEqual, 1)
			So(rows[2]["posts"], ShouldResemble, []Model{})
		})

		Convey("嵌套路径逐层加载，前缀上的约束保留", func() {
			rows, err := users.EagerLoad(
				map[string]Constraint{"posts": func(t *Table) *Table { return t.OrderBy("id", "desc") }},
				"posts.comments",
			).All(ctx)
			So(err, ShouldBeNil)
			So(engine.reset(), ShouldEqual, 3)

			alicePosts := rows[0]["posts"].([]Model)
			So(names(alicePosts, "title"), ShouldResemble, []any{"p2", "p1"})
			So(alicePosts[0]["comments"], ShouldResemble, []Model{})
			So(len(alicePosts[1]["comments"].([]Model)), ShouldEqual, 2)
		})

		Convey("约束作用于关联查询", func() {
			rows, err := users.EagerLoad(map[string]Constraint{
				"posts": func(t *Table) *Table { return t.Scope("published") },
			}).All(ctx)
			So(err, ShouldBeNil)
			So(names(rows[0]["posts"].([]Model), "title"), ShouldResemble, []any{"p1"})
		})

		Convey("hasOne 没有关联数据时为 nil", func() {
			rows, err := users.EagerLoad("profile").All(ctx)
			So(err, ShouldBeNil)
			So(rows[0]["profile"].(Model)["bio"], ShouldEqual, "hi")
			So(rows[1]["profile"], ShouldBeNil)
		})

		Convey("belongsTo", func() {
			rows, err := posts.EagerLoad("user").All(ctx)
			So(err, ShouldBeNil)
			So(engine.reset(), ShouldEqual, 2)
			So(rows[0]["user"].(Model)["name"], ShouldEqual, "alice")
			So(rows[2]["user"].(Model)["name"], ShouldEqual, "bob")
		})

		Convey("belongsToMany 一次连接查询，保留中间表的列", func() {
			m, err := posts.EagerLoad("tags").Find(ctx, 1)
			So(err, ShouldBeNil)
			So(engine.reset(), ShouldEqual, 2)

			tags := m["tags"].([]Model)
			So(len(tags), ShouldEqual, 2)
			weights := map[any]any{}
			for _, tag := range tags {
				weights[tag["name"]] = tag["post_tags.weight"]
				So(tag["label"], ShouldStartWith, "#")
			}
			So(weights, ShouldResemble, map[any]any{"go": int64(5), "sql": int64(3)})
		})

		Convey("hasManyThrough 先查中间表再查关联表", func() {
			m, err := o.Table("users").EagerLoad("comments").Find(ctx, 1)
			So(err, ShouldBeNil)
			So(engine.reset(), ShouldEqual, 3)
			So(len(m["comments"].([]Model)), ShouldEqual, 2)
		})

		Convey("morphMany 与 morphTo", func() {
			rows, err := posts.EagerLoad("photos").All(ctx)
			So(err, ShouldBeNil)
			So(names(rows[0]["photos"].([]Model), "url"), ShouldResemble, []any{"b.png"})
			So(rows[1]["photos"], ShouldResemble, []Model{})

			engine.reset()
			photos, err := o.Table("photos").OrderBy("id").EagerLoad("imageable").All(ctx)
			So(err, ShouldBeNil)
			So(engine.reset(), ShouldEqual, 3)
			So(photos[0]["imageable"].(Model)["name"], ShouldEqual, "alice")
			So(photos[1]["imageable"].(Model)["title"], ShouldEqual, "p1")
			So(photos[2]["imageable"].(Model)["title"], ShouldEqual, "p3")
		})

		Convey("结果为空时不发起关联查询", func() {
			rows, err := users.Where("id", 99).EagerLoad("posts.comments").All(ctx)
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 0)
			So(engine.reset(), ShouldEqual, 1)
		})

		Convey("未声明的关联", func() {
			_, err := users.EagerLoad("nope").All(ctx)
			So(errors.Is(err, ErrRelationNotDefined), ShouldBeTrue)
			So(o.Table("users").HasRelation("posts"), ShouldBeTrue)
			So(o.Table("users").HasRelation("nope"), ShouldBeFalse)
		})

		Convey("For 查询单个 owner 的关联", func() {
			rel, err := o.Table("users").Relation("posts")
			So(err, ShouldBeNil)
			n, err := rel.For(Model{"id": int64(1)}).Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			rel, err = o.Table("posts").Relation("tags")
			So(err, ShouldBeNil)
			n, err = rel.For(Model{"id": int64(1)}).Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			rel, err = o.Table("photos").Relation("imageable")
			So(err, ShouldBeNil)
			m, err := rel.For(Model{"imageable_type": "posts", "imageable_id": int64(3)}).First(ctx)
			So(err, ShouldBeNil)
			So(m["title"], ShouldEqual, "p3")
		})

		Convey("关联表达为连接", func() {
			n, err := o.Table("posts").JoinRelation("user").Where("users.name", "alice").Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			n, err = o.Table("posts").JoinPivot("tags").Where("post_tags.tag_id", 1).Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 2)

			n, err = o.Table("posts").JoinRelation("tags").Where("tags.name", "sql").Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			n, err = o.Table("users").JoinRelation("comments").Where("comments.body", "c3").Count(ctx)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 1)

			_, err = o.Table("photos").JoinRelation("imageable").All(ctx)
			So(err, ShouldNotBeNil)
		})
	})
}
