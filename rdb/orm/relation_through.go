package orm

import (
	"context"
)

// HasManyThroughRelation 经过中间表的一对多：through.firstKey = owner.key，related.secondKey = through.key
// 先查中间表再查关联表，共两次批量查询
type HasManyThroughRelation struct {
	relationBase
	related   *Table
	through   *Table
	firstKey  string
	secondKey string
}

func HasManyThrough(t *Table, related string, through string, firstKey string, secondKey string) *HasManyThroughRelation {
	return &HasManyThroughRelation{
		relationBase: relationBase{owner: t.Fork()},
		related:      t.Table(related),
		through:      t.Table(through),
		firstKey:     firstKey,
		secondKey:    secondKey,
	}
}

func (r *HasManyThroughRelation) Constrain(c Constraint) Relation {
	nr := *r
	nr.relationBase = r.withConstraint(c)
	return &nr
}

func (r *HasManyThroughRelation) EagerLoad(loads EagerLoads) Relation {
	nr := *r
	nr.relationBase = r.withEagerLoads(loads)
	return &nr
}

func (r *HasManyThroughRelation) Load(ctx context.Context, owners []Model) ([]any, error) {
	ownerKey := r.owner.KeyName()
	throughKey := r.through.KeyName()

	pivots, err := r.through.
		WhereIn(r.firstKey, distinctValues(owners, ownerKey)).
		Select(throughKey, r.firstKey).
		All(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := r.prepare(r.related.WhereIn(r.secondKey, distinctValues(pivots, throughKey))).All(ctx)
	if err != nil {
		return nil, err
	}
	relatedByThrough := groupBy(rows, r.secondKey)

	groups := map[string][]Model{}
	for _, pivot := range pivots {
		k := dictKey(pivot[r.firstKey])
		groups[k] = append(groups[k], relatedByThrough[dictKey(pivot[throughKey])]...)
	}
	return attach(owners, ownerKey, groups, true), nil
}

func (r *HasManyThroughRelation) JoinPivot(t *Table) *Table {
	return t.Join(r.through.Name(), r.through.C(r.firstKey), "=", t.KeyColumn())
}

func (r *HasManyThroughRelation) Join(t *Table) *Table {
	return r.JoinPivot(t).Join(r.related.Name(), r.related.C(r.secondKey), "=", r.through.KeyColumn())
}

func (r *HasManyThroughRelation) For(owner Model) *Table {
	q := r.related.
		Join(r.through.Name(), r.through.KeyColumn(), "=", r.related.C(r.secondKey)).
		Where(r.through.C(r.firstKey), owner[r.owner.KeyName()])
	return r.prepare(q)
}
