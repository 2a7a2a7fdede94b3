package orm

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// MorphOneOrManyRelation 多态关联的正向：related.typeField = owner 表名，related.foreignKey = owner.key
// typeField 和 foreignKey 取自 related 上名为 inverse 的 MorphTo 关联
type MorphOneOrManyRelation struct {
	relationBase
	related    *Table
	typeField  string
	foreignKey string
	many       bool
	err        error
}

func MorphOne(t *Table, related string, inverse string) *MorphOneOrManyRelation {
	return newMorphOneOrMany(t, related, inverse, false)
}

func MorphMany(t *Table, related string, inverse string) *MorphOneOrManyRelation {
	return newMorphOneOrMany(t, related, inverse, true)
}

func newMorphOneOrMany(t *Table, related string, inverse string, many bool) *MorphOneOrManyRelation {
	r := &MorphOneOrManyRelation{
		relationBase: relationBase{owner: t.Fork()},
		related:      t.Table(related),
		many:         many,
	}
	rel, err := r.related.Relation(inverse)
	if err != nil {
		r.err = err
		return r
	}
	morphTo, ok := rel.(*MorphToRelation)
	if !ok {
		r.err = errors.Errorf("inverse relation %s.%s is %T, not morphTo", related, inverse, rel)
		return r
	}
	r.typeField = morphTo.typeField
	r.foreignKey = morphTo.foreignKey
	return r
}

func (r *MorphOneOrManyRelation) Constrain(c Constraint) Relation {
	nr := *r
	nr.relationBase = r.withConstraint(c)
	return &nr
}

func (r *MorphOneOrManyRelation) EagerLoad(loads EagerLoads) Relation {
	nr := *r
	nr.relationBase = r.withEagerLoads(loads)
	return &nr
}

func (r *MorphOneOrManyRelation) Load(ctx context.Context, owners []Model) ([]any, error) {
	if r.err != nil {
		return nil, r.err
	}
	ownerKey := r.owner.KeyName()
	q := r.related.
		Where(r.typeField, r.owner.Name()).
		WhereIn(r.foreignKey, distinctValues(owners, ownerKey))
	rows, err := r.prepare(q).All(ctx)
	if err != nil {
		return nil, err
	}
	return attach(owners, ownerKey, groupBy(rows, r.foreignKey), r.many), nil
}

func (r *MorphOneOrManyRelation) Join(t *Table) *Table {
	if r.err != nil {
		return t.withErr(r.err)
	}
	return t.Join(r.related.Name(), r.related.C(r.foreignKey), "=", t.KeyColumn()).
		Where(r.related.C(r.typeField), r.owner.Name())
}

func (r *MorphOneOrManyRelation) For(owner Model) *Table {
	if r.err != nil {
		return r.related.withErr(r.err)
	}
	return r.prepare(r.related.
		Where(r.typeField, r.owner.Name()).
		Where(r.foreignKey, owner[r.owner.KeyName()]))
}

// MorphToRelation 多态关联的反向：owner.typeField 为目标表名，owner.foreignKey 为目标主键
// 每张被引用的表一次批量查询，各表并发执行
type MorphToRelation struct {
	relationBase
	tables     []string
	typeField  string
	foreignKey string
}

func MorphTo(t *Table, tables []string, typeField string, foreignKey string) *MorphToRelation {
	return &MorphToRelation{
		relationBase: relationBase{owner: t.Fork()},
		tables:       append([]string(nil), tables...),
		typeField:    typeField,
		foreignKey:   foreignKey,
	}
}

func (r *MorphToRelation) Constrain(c Constraint) Relation {
	nr := *r
	nr.relationBase = r.withConstraint(c)
	return &nr
}

func (r *MorphToRelation) EagerLoad(loads EagerLoads) Relation {
	nr := *r
	nr.relationBase = r.withEagerLoads(loads)
	return &nr
}

func (r *MorphToRelation) Load(ctx context.Context, owners []Model) ([]any, error) {
	byType := groupBy(owners, r.typeField)

	var tables []string
	for _, name := range r.tables {
		if len(byType[name]) > 0 {
			tables = append(tables, name)
		}
	}

	results := make([]map[string][]Model, len(tables))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range tables {
		i, name := i, name
		g.Go(func() error {
			related := r.owner.Table(name)
			rows, err := r.prepare(related.WhereIn(related.KeyName(), distinctValues(byType[name], r.foreignKey))).All(gctx)
			if err != nil {
				return errors.WithMessagef(err, "morphTo %s failed", name)
			}
			results[i] = groupBy(rows, related.KeyName())
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	index := make(map[string]map[string][]Model, len(tables))
	for i, name := range tables {
		index[name] = results[i]
	}

	values := make([]any, len(owners))
	for i, owner := range owners {
		values[i] = Model(nil)
		groups, ok := index[dictKey(owner[r.typeField])]
		if !ok {
			continue
		}
		if group := groups[dictKey(owner[r.foreignKey])]; len(group) > 0 {
			values[i] = group[0]
		}
	}
	return values, nil
}

// Join 目标表不确定，无法表达为连接
func (r *MorphToRelation) Join(t *Table) *Table {
	return t.withErr(errors.Errorf("morphTo relation on %s cannot be joined", t.Name()))
}

func (r *MorphToRelation) For(owner Model) *Table {
	related := r.owner.Table(dictKey(owner[r.typeField]))
	return r.prepare(related.Where(related.KeyName(), owner[r.foreignKey]))
}
