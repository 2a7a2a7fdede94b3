package orm

import (
	"context"
)

// BelongsToRelation owner.foreignKey = related.otherKey
type BelongsToRelation struct {
	relationBase
	related    *Table
	foreignKey string
	otherKey   string
}

// BelongsTo otherKey 为空时使用 related 的主键
func BelongsTo(t *Table, related string, foreignKey string, otherKey string) *BelongsToRelation {
	rt := t.Table(related)
	if otherKey == "" {
		otherKey = rt.KeyName()
	}
	return &BelongsToRelation{
		relationBase: relationBase{owner: t.Fork()},
		related:      rt,
		foreignKey:   foreignKey,
		otherKey:     otherKey,
	}
}

func (r *BelongsToRelation) Constrain(c Constraint) Relation {
	nr := *r
	nr.relationBase = r.withConstraint(c)
	return &nr
}

func (r *BelongsToRelation) EagerLoad(loads EagerLoads) Relation {
	nr := *r
	nr.relationBase = r.withEagerLoads(loads)
	return &nr
}

func (r *BelongsToRelation) Load(ctx context.Context, owners []Model) ([]any, error) {
	keys := distinctValues(owners, r.foreignKey)
	rows, err := r.prepare(r.related.WhereIn(r.otherKey, keys)).All(ctx)
	if err != nil {
		return nil, err
	}
	return attach(owners, r.foreignKey, groupBy(rows, r.otherKey), false), nil
}

func (r *BelongsToRelation) Join(t *Table) *Table {
	return t.Join(r.related.Name(), r.related.C(r.otherKey), "=", t.C(r.foreignKey))
}

func (r *BelongsToRelation) For(owner Model) *Table {
	return r.prepare(r.related.Where(r.otherKey, owner[r.foreignKey]))
}

// BelongsToManyRelation 经中间表的多对多关联：pivot.foreignKey = owner.key，pivot.otherKey = related.key
// 只发起一次连接查询，中间表的列以 "pivot.col" 为别名保留在关联行上
type BelongsToManyRelation struct {
	relationBase
	related    *Table
	pivot      string
	foreignKey string
	otherKey   string
}

func BelongsToMany(t *Table, related string, pivot string, foreignKey string, otherKey string) *BelongsToManyRelation {
	return &BelongsToManyRelation{
		relationBase: relationBase{owner: t.Fork()},
		related:      t.Table(related),
		pivot:        pivot,
		foreignKey:   foreignKey,
		otherKey:     otherKey,
	}
}

func (r *BelongsToManyRelation) Constrain(c Constraint) Relation {
	nr := *r
	nr.relationBase = r.withConstraint(c)
	return &nr
}

func (r *BelongsToManyRelation) EagerLoad(loads EagerLoads) Relation {
	nr := *r
	nr.relationBase = r.withEagerLoads(loads)
	return &nr
}

func (r *BelongsToManyRelation) pivotColumn(column string) string {
	return r.pivot + "." + column
}

func (r *BelongsToManyRelation) PivotTable() string {
	return r.pivot
}

// pivotSelect 中间表列的投影，别名保留 pivot. 前缀
func (r *BelongsToManyRelation) pivotSelect(ctx context.Context) ([]string, error) {
	orm := r.owner.Orm()
	columns, err := orm.Columns(ctx, r.pivot)
	if err != nil {
		return nil, err
	}
	dialect := orm.engine.Dialect()
	projection := make([]string, len(columns))
	for i, c := range columns {
		projection[i] = r.pivotColumn(c) + " AS " + dialect.Quote(r.pivotColumn(c))
	}
	return projection, nil
}

func (r *BelongsToManyRelation) query(ctx context.Context, related *Table) (*Table, error) {
	projection, err := r.pivotSelect(ctx)
	if err != nil {
		return nil, err
	}
	q := related.Join(r.pivot, r.pivotColumn(r.otherKey), "=", related.KeyColumn())
	return r.prepare(q).AddSelect(projection...), nil
}

func (r *BelongsToManyRelation) Load(ctx context.Context, owners []Model) ([]any, error) {
	ownerKey := r.owner.KeyName()
	keys := distinctValues(owners, ownerKey)
	q, err := r.query(ctx, r.related.WhereIn(r.pivotColumn(r.foreignKey), keys))
	if err != nil {
		return nil, err
	}
	rows, err := q.All(ctx)
	if err != nil {
		return nil, err
	}
	return attach(owners, ownerKey, groupBy(rows, r.pivotColumn(r.foreignKey)), true), nil
}

func (r *BelongsToManyRelation) JoinPivot(t *Table) *Table {
	return t.Join(r.pivot, r.pivotColumn(r.foreignKey), "=", t.KeyColumn())
}

func (r *BelongsToManyRelation) Join(t *Table) *Table {
	return r.JoinPivot(t).Join(r.related.Name(), r.related.KeyColumn(), "=", r.pivotColumn(r.otherKey))
}

// For 连接中间表后按 owner 过滤，中间表列不投影，需要时在约束中 AddSelect
func (r *BelongsToManyRelation) For(owner Model) *Table {
	q := r.related.
		Join(r.pivot, r.pivotColumn(r.otherKey), "=", r.related.KeyColumn()).
		Where(r.pivotColumn(r.foreignKey), owner[r.owner.KeyName()])
	return r.prepare(q)
}
