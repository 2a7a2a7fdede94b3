package orm

import (
	"context"
	"fmt"
	"strings"

	"github.com/hatlonely/ormx/rdb/query"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

func (t *Table) fetchRows(ctx context.Context, qc *QueryContext, b query.Builder) ([]map[string]any, error) {
	sql, args, err := b.SelectSQL(t.orm.engine.Dialect())
	if err != nil {
		return nil, errors.WithMessagef(err, "compile select on %s failed", t.name)
	}
	executor := t.executor(qc)
	payload, err := t.orm.remember(ctx, qc, sql, args, func() (any, error) {
		return t.orm.query(ctx, executor, sql, args)
	})
	if err != nil {
		return nil, err
	}
	return toRows(payload)
}

// processRow 去掉本表列名上的 "table." 前缀，其他表的列保持限定，随后交给 RowParser
func (t *Table) processRow(row map[string]any) Model {
	prefix := t.name + "."
	m := make(Model, len(row))
	for k, v := range row {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			m[rest] = v
		} else {
			m[k] = v
		}
	}
	if t.def != nil && t.def.RowParser != nil {
		m = t.def.RowParser(m)
	}
	return m
}

func (t *Table) processRows(rows []map[string]any) []Model {
	models := make([]Model, len(rows))
	for i, row := range rows {
		models[i] = t.processRow(row)
	}
	if t.def != nil && t.def.CollectionParser != nil {
		models = t.def.CollectionParser(models)
	}
	return models
}

// First 返回第一行，没有结果时返回 nil
func (t *Table) First(ctx context.Context) (Model, error) {
	qc, err := t.replay()
	if err != nil {
		return nil, err
	}
	rows, err := t.fetchRows(ctx, qc, qc.selectBuilder().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	m := t.processRow(rows[0])
	if err := t.loadRelations(ctx, []Model{m}, qc.eagerLoads); err != nil {
		return nil, err
	}
	return m, nil
}

// All 以 DISTINCT 查询全部结果
func (t *Table) All(ctx context.Context) ([]Model, error) {
	qc, err := t.replay()
	if err != nil {
		return nil, err
	}
	rows, err := t.fetchRows(ctx, qc, qc.selectBuilder().Distinct())
	if err != nil {
		return nil, err
	}
	models := t.processRows(rows)
	if err := t.loadRelations(ctx, models, qc.eagerLoads); err != nil {
		return nil, err
	}
	return models, nil
}

// Count 统计主键数量，缓存时只缓存数值
func (t *Table) Count(ctx context.Context) (int64, error) {
	qc, err := t.replay()
	if err != nil {
		return 0, err
	}
	sql, args, err := qc.builder.CountSQL(t.orm.engine.Dialect(), t.KeyColumn())
	if err != nil {
		return 0, errors.WithMessagef(err, "compile count on %s failed", t.name)
	}
	executor := t.executor(qc)
	payload, err := t.orm.remember(ctx, qc, sql, args, func() (any, error) {
		rows, err := t.orm.query(ctx, executor, sql, args)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return int64(0), nil
		}
		return toInt64(rows[0]["count"])
	})
	if err != nil {
		return 0, err
	}
	return toInt64(payload)
}

// Find 按主键查找
func (t *Table) Find(ctx context.Context, key any) (Model, error) {
	return t.Where(t.KeyName(), key).First(ctx)
}

func (t *Table) FindBy(ctx context.Context, field string, value any) (Model, error) {
	return t.Where(field, value).First(ctx)
}

// Exists value 为主键值或带主键的 Model
func (t *Table) Exists(ctx context.Context, value any) (bool, error) {
	switch m := value.(type) {
	case Model:
		value = m[t.KeyName()]
	case map[string]any:
		value = m[t.KeyName()]
	}
	found, err := t.Where(t.KeyName(), value).First(ctx)
	if err != nil {
		return false, err
	}
	return found != nil, nil
}

func dictKey(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case []byte:
		return string(k)
	}
	return fmt.Sprint(v)
}

// IDDict 以 key 列（默认主键）为键索引 models，键统一格式化为字符串
func (t *Table) IDDict(models []Model, key ...string) map[string]Model {
	k := t.KeyName()
	if len(key) > 0 && key[0] != "" {
		k = key[0]
	}
	dict := make(map[string]Model, len(models))
	for _, m := range models {
		dict[dictKey(m[k])] = m
	}
	return dict
}

// AllIDDict 以主键索引 All 的结果
func (t *Table) AllIDDict(ctx context.Context) (map[string]Model, error) {
	models, err := t.All(ctx)
	if err != nil {
		return nil, err
	}
	return t.IDDict(models), nil
}

// loadRelations 同一层的关联并发加载，全部完成后依次挂到 owners 上
func (t *Table) loadRelations(ctx context.Context, owners []Model, loads EagerLoads) error {
	if len(owners) == 0 || len(loads) == 0 {
		return nil
	}

	names := loads.TopLevel()
	relations := make([]Relation, len(names))
	for i, name := range names {
		rel, err := t.Relation(name)
		if err != nil {
			return err
		}
		relations[i] = rel.EagerLoad(SubEagerLoads(name, loads)).Constrain(loads[name])
	}

	results := make([][]any, len(names))
	g, gctx := errgroup.WithContext(ctx)
	for i := range relations {
		i := i
		g.Go(func() error {
			values, err := relations[i].Load(gctx, owners)
			if err != nil {
				return errors.WithMessagef(err, "load relation %s.%s failed", t.name, names[i])
			}
			if len(values) != len(owners) {
				return errors.Errorf("relation %s.%s returned %d values for %d owners", t.name, names[i], len(values), len(owners))
			}
			results[i] = values
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, name := range names {
		for j, owner := range owners {
			owner[name] = results[i][j]
		}
	}
	return nil
}
