package orm

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/hatlonely/ormx/rdb/query"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Update 按当前条件更新，返回影响行数
func (t *Table) Update(ctx context.Context, values map[string]any) (int64, error) {
	qc, err := t.replay()
	if err != nil {
		return 0, err
	}
	sql, args, err := qc.builder.UpdateSQL(t.orm.engine.Dialect(), values)
	if err != nil {
		return 0, errors.WithMessagef(err, "compile update on %s failed", t.name)
	}
	result, err := t.orm.exec(ctx, t.executor(qc), sql, args)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

// UpdateKey 更新主键为 key 的行
func (t *Table) UpdateKey(ctx context.Context, key any, values map[string]any) (int64, error) {
	return t.Where(t.KeyName(), key).Update(ctx, values)
}

// Delete 按当前条件删除，返回影响行数
func (t *Table) Delete(ctx context.Context) (int64, error) {
	qc, err := t.replay()
	if err != nil {
		return 0, err
	}
	sql, args, err := qc.builder.DeleteSQL(t.orm.engine.Dialect())
	if err != nil {
		return 0, errors.WithMessagef(err, "compile delete on %s failed", t.name)
	}
	result, err := t.orm.exec(ctx, t.executor(qc), sql, args)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected, nil
}

func (t *Table) DeleteKey(ctx context.Context, key any) (int64, error) {
	return t.Where(t.KeyName(), key).Delete(ctx)
}

// DeleteModel 经过 BeforeDelete、AfterDelete 钩子删除 m
func (t *Table) DeleteModel(ctx context.Context, m Model) (Model, error) {
	if t.err != nil {
		return nil, t.err
	}
	m, err := t.def.Hooks.BeforeDelete.run(ctx, t, m)
	if err != nil {
		return nil, err
	}
	key, ok := m[t.def.Key]
	if !ok || key == nil {
		return nil, errors.Wrapf(ErrMissingKey, "delete from %s", t.name)
	}
	if _, err := t.DeleteKey(ctx, key); err != nil {
		return nil, err
	}
	return t.def.Hooks.AfterDelete.run(ctx, t, m)
}

func (t *Table) Truncate(ctx context.Context) error {
	qc, err := t.replay()
	if err != nil {
		return err
	}
	sql, err := qc.builder.TruncateSQL(t.orm.engine.Dialect())
	if err != nil {
		return errors.WithMessagef(err, "compile truncate on %s failed", t.name)
	}
	_, err = t.orm.exec(ctx, t.executor(qc), sql, nil)
	return err
}

// stamp 未显式设置为 time.Time 的时间戳字段填为 now
func stamp(values map[string]any, field string, now time.Time) {
	if _, ok := values[field].(time.Time); !ok {
		values[field] = now
	}
}

// insertValues 执行 INSERT，returnKey 为 true 时取回数据库产生的主键
func (t *Table) insertValues(ctx context.Context, values map[string]any, returnKey bool) (any, error) {
	qc, err := t.replay()
	if err != nil {
		return nil, err
	}
	dialect := t.orm.engine.Dialect()
	returning := ""
	if returnKey {
		returning = t.def.Key
	}
	sql, args, err := query.From(t.name).InsertSQL(dialect, values, returning)
	if err != nil {
		return nil, errors.WithMessagef(err, "compile insert on %s failed", t.name)
	}

	executor := t.executor(qc)
	if returnKey && dialect.SupportsReturning() {
		rows, err := t.orm.query(ctx, executor, sql, args)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errors.Wrapf(ErrMissingKey, "insert into %s returned no rows", t.name)
		}
		return rows[0][t.def.Key], nil
	}

	result, err := t.orm.exec(ctx, executor, sql, args)
	if err != nil {
		return nil, err
	}
	if returnKey {
		if t.def.KeyMode == KeyAutoUUID {
			return nil, errors.Wrapf(ErrMissingKey, "%s cannot return generated uuid of %s", dialect, t.name)
		}
		return result.LastInsertID, nil
	}
	if result.LastInsertID != 0 {
		return result.LastInsertID, nil
	}
	return nil, nil
}

// Insert 直接插入一行，不经过钩子，返回带主键的副本
func (t *Table) Insert(ctx context.Context, values map[string]any) (Model, error) {
	if t.err != nil {
		return nil, t.err
	}
	m := Model(values).Clone()
	if t.def.Timestamps {
		now := time.Now()
		stamp(m, t.def.CreatedAt, now)
		stamp(m, t.def.UpdatedAt, now)
	}

	returnKey := t.def.KeyMode != KeyGenerated
	if t.def.KeyMode == KeyAutoIncrement {
		delete(m, t.def.Key)
	}
	key, err := t.insertValues(ctx, m, returnKey)
	if err != nil {
		return nil, err
	}
	if _, ok := m[t.def.Key]; (!ok || returnKey) && key != nil {
		m[t.def.Key] = key
	}
	return m, nil
}

// NewKey 生成一个当前不存在的主键，冲突时重新生成，直到 ctx 结束
func (t *Table) NewKey(ctx context.Context) (any, error) {
	pt, err := t.plain()
	if err != nil {
		return nil, err
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "generate key canceled")
		}
		key := pt.def.KeyGenerator.NewKey()
		exists, err := pt.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if !exists {
			return key, nil
		}
		t.orm.logger.DebugContext(ctx, "generated key collided", "table", t.name, "key", key)
	}
}

func (t *Table) columns(ctx context.Context) ([]string, error) {
	return t.orm.Columns(ctx, t.name)
}

// fetchExisting 按主键读取原始行，不经过 RowParser 和缓存
func (t *Table) fetchExisting(ctx context.Context, key any) (map[string]any, error) {
	qc, err := t.replay()
	if err != nil {
		return nil, err
	}
	b := query.From(t.name).
		Where(&query.TermQuery{Field: t.KeyColumn(), Value: key}).
		Limit(1)
	sql, args, err := b.SelectSQL(t.orm.engine.Dialect())
	if err != nil {
		return nil, err
	}
	rows, err := t.orm.query(ctx, t.executor(qc), sql, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// Save 主键不存在时创建，存在时只更新有变化的列
// 存在性检查和写入之间没有加锁，同一主键的并发 Save 可能重复创建或互相覆盖
func (t *Table) Save(ctx context.Context, m Model) (Model, error) {
	pt, err := t.plain()
	if err != nil {
		return nil, err
	}
	hooks := pt.def.Hooks

	m, err = hooks.BeforeSave.run(ctx, pt, m)
	if err != nil {
		return nil, err
	}

	var existing map[string]any
	if key, ok := m[pt.def.Key]; ok && key != nil {
		if existing, err = pt.fetchExisting(ctx, key); err != nil {
			return nil, err
		}
	}

	if existing != nil {
		m, err = pt.updateModel(ctx, m, existing)
	} else {
		m, err = pt.createModel(ctx, m)
	}
	if err != nil {
		return nil, err
	}

	return hooks.AfterSave.run(ctx, pt, m)
}

// SaveAll 并发保存，返回的结果与 models 一一对应
func (t *Table) SaveAll(ctx context.Context, models []Model) ([]Model, error) {
	saved := make([]Model, len(models))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range models {
		i, m := i, m
		g.Go(func() error {
			s, err := t.Save(gctx, m)
			if err != nil {
				return err
			}
			saved[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return saved, nil
}

func (t *Table) createModel(ctx context.Context, m Model) (Model, error) {
	m, err := t.def.Hooks.BeforeCreate.run(ctx, t, m)
	if err != nil {
		return nil, err
	}
	columns, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}

	if t.def.Timestamps {
		now := time.Now()
		stamp(m, t.def.CreatedAt, now)
		stamp(m, t.def.UpdatedAt, now)
	}

	values := map[string]any{}
	for _, c := range columns {
		if c == t.def.Key && t.def.KeyMode == KeyAutoIncrement {
			continue
		}
		if v, ok := m[c]; ok {
			values[c] = v
		}
	}

	switch t.def.KeyMode {
	case KeyAutoIncrement, KeyAutoUUID:
		key, err := t.insertValues(ctx, values, true)
		if err != nil {
			return nil, err
		}
		m[t.def.Key] = key
	default:
		key, ok := values[t.def.Key]
		if !ok || key == nil {
			if key, err = t.NewKey(ctx); err != nil {
				return nil, err
			}
			values[t.def.Key] = key
		}
		if _, err := t.insertValues(ctx, values, false); err != nil {
			return nil, err
		}
		m[t.def.Key] = key
	}

	return t.def.Hooks.AfterCreate.run(ctx, t, m)
}

// changed 两个值的 JSON 编码不同即视为有变化
func changed(oldValue any, newValue any) bool {
	oldJSON, err1 := json.Marshal(oldValue)
	newJSON, err2 := json.Marshal(newValue)
	if err1 != nil || err2 != nil {
		return true
	}
	return !bytes.Equal(oldJSON, newJSON)
}

func (t *Table) updateModel(ctx context.Context, m Model, existing map[string]any) (Model, error) {
	m, err := t.def.Hooks.BeforeUpdate.run(ctx, t, m)
	if err != nil {
		return nil, err
	}
	columns, err := t.columns(ctx)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	for _, c := range columns {
		if c == t.def.Key {
			continue
		}
		v, ok := m[c]
		if !ok {
			continue
		}
		if changed(existing[c], v) {
			values[c] = v
		}
	}

	if len(values) > 0 {
		if t.def.Timestamps {
			stamp(values, t.def.UpdatedAt, time.Now())
			m[t.def.UpdatedAt] = values[t.def.UpdatedAt]
		}
		if _, err := t.UpdateKey(ctx, m[t.def.Key], values); err != nil {
			return nil, err
		}
	}

	return t.def.Hooks.AfterUpdate.run(ctx, t, m)
}
