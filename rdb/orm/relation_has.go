package orm

import (
	"context"
)

// HasOneOrManyRelation related.foreignKey = owner.key
type HasOneOrManyRelation struct {
	relationBase
	related    *Table
	foreignKey string
	key        string
	many       bool
}

// HasOne key 为空时使用 owner 的主键
func HasOne(t *Table, related string, foreignKey string, key string) *HasOneOrManyRelation {
	return newHasOneOrMany(t, related, foreignKey, key, false)
}

func HasMany(t *Table, related string, foreignKey string, key string) *HasOneOrManyRelation {
	return newHasOneOrMany(t, related, foreignKey, key, true)
}

func newHasOneOrMany(t *Table, related string, foreignKey string, key string, many bool) *HasOneOrManyRelation {
	if key == "" {
		key = t.KeyName()
	}
	return &HasOneOrManyRelation{
		relationBase: relationBase{owner: t.Fork()},
		related:      t.Table(related),
		foreignKey:   foreignKey,
		key:          key,
		many:         many,
	}
}

func (r *HasOneOrManyRelation) Constrain(c Constraint) Relation {
	nr := *r
	nr.relationBase = r.withConstraint(c)
	return &nr
}

func (r *HasOneOrManyRelation) EagerLoad(loads EagerLoads) Relation {
	nr := *r
	nr.relationBase = r.withEagerLoads(loads)
	return &nr
}

func (r *HasOneOrManyRelation) Load(ctx context.Context, owners []Model) ([]any, error) {
	keys := distinctValues(owners, r.key)
	rows, err := r.prepare(r.related.WhereIn(r.foreignKey, keys)).All(ctx)
	if err != nil {
		return nil, err
	}
	return attach(owners, r.key, groupBy(rows, r.foreignKey), r.many), nil
}

func (r *HasOneOrManyRelation) Join(t *Table) *Table {
	return t.Join(r.related.Name(), r.related.C(r.foreignKey), "=", t.C(r.key))
}

func (r *HasOneOrManyRelation) For(owner Model) *Table {
	return r.prepare(r.related.Where(r.foreignKey, owner[r.key]))
}
