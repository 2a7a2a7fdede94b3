package orm

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hatlonely/ormx/kv/store"
	"github.com/hatlonely/ormx/rdb/database"
	"github.com/stretchr/testify/require"
)

// countingEngine 统计经过引擎（不含事务）的语句数量
type countingEngine struct {
	database.Engine
	queries atomic.Int64
	execs   atomic.Int64
}

func (e *countingEngine) Query(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	e.queries.Add(1)
	return e.Engine.Query(ctx, sql, args...)
}

func (e *countingEngine) Exec(ctx context.Context, sql string, args ...any) (database.Result, error) {
	e.execs.Add(1)
	return e.Engine.Exec(ctx, sql, args...)
}

// reset 返回并清零查询计数
func (e *countingEngine) reset() int64 {
	e.execs.Store(0)
	return e.queries.Swap(0)
}

var schema = []string{
	`CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, age INTEGER, created_at DATETIME, updated_at DATETIME)`,
	`CREATE TABLE profiles (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, bio TEXT)`,
	`CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, title TEXT, published INTEGER DEFAULT 0)`,
	`CREATE TABLE comments (id INTEGER PRIMARY KEY AUTOINCREMENT, post_id INTEGER, body TEXT)`,
	`CREATE TABLE tags (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT)`,
	`CREATE TABLE post_tags (post_id INTEGER, tag_id INTEGER, weight INTEGER)`,
	`CREATE TABLE photos (id INTEGER PRIMARY KEY AUTOINCREMENT, imageable_type TEXT, imageable_id INTEGER, url TEXT)`,
	`CREATE TABLE tokens (id TEXT PRIMARY KEY, user_id INTEGER)`,
}

var seed = []string{
	`INSERT INTO users (id, name, age) VALUES (1, 'alice', 20), (2, 'bob', 30), (3, 'carol', 40)`,
	`INSERT INTO profiles (id, user_id, bio) VALUES (1, 1, 'hi')`,
	`INSERT INTO posts (id, user_id, title, published) VALUES (1, 1, 'p1', 1), (2, 1, 'p2', 0), (3, 2, 'p3', 1)`,
	`INSERT INTO comments (id, post_id, body) VALUES (1, 1, 'c1'), (2, 1, 'c2'), (3, 3, 'c3')`,
	`INSERT INTO tags (id, name) VALUES (1, 'go'), (2, 'sql')`,
	`INSERT INTO post_tags (post_id, tag_id, weight) VALUES (1, 1, 5), (1, 2, 3), (3, 1, 1)`,
	`INSERT INTO photos (id, imageable_type, imageable_id, url) VALUES (1, 'users', 1, 'a.png'), (2, 'posts', 1, 'b.png'), (3, 'posts', 3, 'c.png')`,
}

func defineSchema(t *testing.T, o *Orm) {
	defs := []Definition{
		{
			Name:       "users",
			KeyMode:    KeyAutoIncrement,
			Timestamps: true,
			Relations: map[string]RelationFunc{
				"profile":  func(t *Table) Relation { return HasOne(t, "profiles", "user_id", "") },
				"posts":    func(t *Table) Relation { return HasMany(t, "posts", "user_id", "") },
				"comments": func(t *Table) Relation { return HasManyThrough(t, "comments", "posts", "user_id", "post_id") },
				"photos":   func(t *Table) Relation { return MorphMany(t, "photos", "imageable") },
			},
			Methods: map[string]MethodFunc{
				"seniors": func(ctx context.Context, t *Table, args ...any) (any, error) {
					return t.Where("age", ">=", args[0]).Count(ctx)
				},
			},
		},
		{Name: "profiles", KeyMode: KeyAutoIncrement},
		{
			Name:    "posts",
			KeyMode: KeyAutoIncrement,
			Scopes: map[string]ScopeFunc{
				"published": func(t *Table, args ...any) *Table { return t.Where("published", 1) },
				"byUser":    func(t *Table, args ...any) *Table { return t.Where("user_id", args[0]) },
			},
			Joints: map[string]JointFunc{
				"withUser": func(t *Table) *Table { return t.Join("users", "users.id", "=", "posts.user_id") },
			},
			Relations: map[string]RelationFunc{
				"user":     func(t *Table) Relation { return BelongsTo(t, "users", "user_id", "") },
				"comments": func(t *Table) Relation { return HasMany(t, "comments", "post_id", "") },
				"tags":     func(t *Table) Relation { return BelongsToMany(t, "tags", "post_tags", "post_id", "tag_id") },
				"photos":   func(t *Table) Relation { return MorphMany(t, "photos", "imageable") },
			},
		},
		{Name: "comments", KeyMode: KeyAutoIncrement},
		{
			Name:    "tags",
			KeyMode: KeyAutoIncrement,
			RowParser: func(m Model) Model {
				m["label"] = "#" + m["name"].(string)
				return m
			},
		},
		{Name: "post_tags", Key: "post_id"},
		{
			Name:    "photos",
			KeyMode: KeyAutoIncrement,
			Relations: map[string]RelationFunc{
				"imageable": func(t *Table) Relation { return MorphTo(t, []string{"users", "posts"}, "imageable_type", "imageable_id") },
			},
		},
		{Name: "tokens"},
	}
	for _, def := range defs {
		require.NoError(t, o.Define(def))
	}
}

// newFixture 基于 sqlite 内存库的 Orm，列信息已加载，计数已清零
func newFixture(t *testing.T, kvStore store.Store, opts ...Option) (*Orm, *countingEngine) {
	sqlEngine, err := database.NewSQLWithOptions(&database.SQLOptions{Driver: "sqlite3", Database: ":memory:"})
	require.NoError(t, err)

	ctx := context.Background()
	for _, stmt := range append(append([]string{}, schema...), seed...) {
		_, err := sqlEngine.Exec(ctx, stmt)
		require.NoError(t, err, strings.SplitN(stmt, "(", 2)[0])
	}

	engine := &countingEngine{Engine: sqlEngine}
	o := New(engine, kvStore, opts...)
	defineSchema(t, o)
	require.NoError(t, o.Load(ctx))
	engine.reset()
	t.Cleanup(func() { _ = o.Close() })
	return o, engine
}

func names(models []Model, field string) []any {
	values := make([]any, len(models))
	for i, m := range models {
		values[i] = m[field]
	}
	return values
}
