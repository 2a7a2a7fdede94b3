package orm

import (
	"context"
	"testing"

	"github.com/hatlonely/ormx/cfg"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewOrmWithOptions(t *testing.T) {
	Convey("从配置创建 Orm", t, func() {
		ctx := context.Background()

		var options OrmOptions
		So(cfg.NewNode(map[string]any{
			"engine": map[string]any{
				"type":    "SQL",
				"options": map[string]any{"driver": "sqlite3", "database": ":memory:"},
			},
			"store": map[string]any{"type": "MapStore"},
			"cache": map[string]any{"prefix": "test"},
			"tables": []any{
				map[string]any{
					"name":    "users",
					"keyMode": "autoIncrement",
					"relations": map[string]any{
						"posts": map[string]any{"kind": "hasMany", "related": "posts", "foreignKey": "user_id"},
					},
				},
				map[string]any{
					"name":    "posts",
					"keyMode": "autoIncrement",
					"perPage": 2,
					"relations": map[string]any{
						"user": map[string]any{"kind": "belongsTo", "related": "users", "foreignKey": "user_id"},
					},
				},
			},
		}).ConvertTo(&options), ShouldBeNil)

		So(options.Tables[0].Key, ShouldEqual, "id")
		So(options.Tables[0].PerPage, ShouldEqual, 25)
		So(options.Tables[1].PerPage, ShouldEqual, 2)

		o, err := NewOrmWithOptions(&options)
		So(err, ShouldBeNil)
		defer o.Close()
		So(o.Tables(), ShouldResemble, []string{"posts", "users"})
		So(o.Table("users").Definition().KeyMode, ShouldEqual, KeyAutoIncrement)

		for _, stmt := range schema[:3] {
			_, err := o.Engine().Exec(ctx, stmt)
			So(err, ShouldBeNil)
		}
		for _, stmt := range seed[:3] {
			_, err := o.Engine().Exec(ctx, stmt)
			So(err, ShouldBeNil)
		}

		rows, err := o.Table("users").OrderBy("id").EagerLoad("posts").All(ctx)
		So(err, ShouldBeNil)
		So(len(rows[0]["posts"].([]Model)), ShouldEqual, 2)

		page, err := o.Table("posts").OrderBy("id").ForPage(2).All(ctx)
		So(err, ShouldBeNil)
		So(names(page, "title"), ShouldResemble, []any{"p3"})

		m, err := o.Table("posts").EagerLoad("user").Cache(0).Find(ctx, 3)
		So(err, ShouldBeNil)
		So(m["user"].(Model)["name"], ShouldEqual, "bob")
		So(o.Table("posts").ClearCache(ctx), ShouldBeNil)
	})

	Convey("配置校验", t, func() {
		_, err := NewOrmWithOptions(nil)
		So(err, ShouldNotBeNil)

		_, err = (&TableOptions{Name: "x", KeyMode: "weird"}).Definition()
		So(err, ShouldNotBeNil)

		_, err = (&TableOptions{}).Definition()
		So(err, ShouldNotBeNil)

		for _, r := range []*RelationOptions{
			{Kind: "hasMany"},
			{Kind: "belongsTo", Related: "users"},
			{Kind: "hasManyThrough", Related: "comments", Through: "posts"},
			{Kind: "belongsToMany", Related: "tags", Pivot: "post_tags"},
			{Kind: "morphMany", Related: "photos"},
			{Kind: "morphTo", TypeField: "t", ForeignKey: "id"},
			{Kind: "hasSome", Related: "x"},
		} {
			_, err := r.RelationFunc()
			So(err, ShouldNotBeNil)
		}

		for i := 0; i < 5; i++ {
			_, err := (&RelationOptions{Kind: "hasManyThrough", Related: "comments", Through: "posts"}).RelationFunc()
			So(err.Error(), ShouldEqual, "hasManyThrough requires firstKey")
		}

		fn, err := (&RelationOptions{Kind: "morphTo", Tables: []string{"users"}, TypeField: "t", ForeignKey: "id"}).RelationFunc()
		So(err, ShouldBeNil)
		So(fn, ShouldNotBeNil)

		mode, err := ParseKeyMode("autoUUID")
		So(err, ShouldBeNil)
		So(mode, ShouldEqual, KeyAutoUUID)
		So(mode.String(), ShouldEqual, "autoUUID")

		mode, err = ParseKeyMode("")
		So(err, ShouldBeNil)
		So(mode, ShouldEqual, KeyGenerated)
		So(mode.String(), ShouldEqual, "generated")
		_, err = ParseKeyMode("none")
		So(err, ShouldNotBeNil)
	})

	Convey("未知的引擎类型", t, func() {
		_, err := NewOrmWithOptions(&OrmOptions{Engine: nil})
		So(err, ShouldNotBeNil)

		var options OrmOptions
		So(cfg.NewNode(map[string]any{
			"engine": map[string]any{"type": "Nope"},
		}).ConvertTo(&options), ShouldBeNil)
		_, err = NewOrmWithOptions(&options)
		So(err, ShouldNotBeNil)
	})
}
