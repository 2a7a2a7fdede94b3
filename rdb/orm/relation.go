package orm

import (
	"context"
	"maps"
)

// Relation 表之间的关联
// Load 对全部 owners 只发起一轮批量查询，按 owners 的顺序返回每个 owner 的关联数据：
// 单值关联为 Model 或 nil，多值关联为 []Model
type Relation interface {
	// Constrain 在批量查询执行前调整关联表的查询
	Constrain(c Constraint) Relation
	// EagerLoad 关联数据自身需要预加载的下一层关联
	EagerLoad(loads EagerLoads) Relation
	Load(ctx context.Context, owners []Model) ([]any, error)
	// Join 把关联表达为 t 上的连接
	Join(t *Table) *Table
	// For 单个 owner 的关联查询
	For(owner Model) *Table
}

// PivotJoiner 带中间表的关联，可以只连接中间表
type PivotJoiner interface {
	JoinPivot(t *Table) *Table
}

// PivotTabler 依赖中间表列信息的关联
type PivotTabler interface {
	PivotTable() string
}

type relationBase struct {
	owner      *Table
	constraint Constraint
	eagerLoads EagerLoads
}

func (b relationBase) withConstraint(c Constraint) relationBase {
	b.constraint = c
	return b
}

func (b relationBase) withEagerLoads(loads EagerLoads) relationBase {
	b.eagerLoads = maps.Clone(loads)
	return b
}

// prepare 在关联表的查询上应用下一层预加载和约束
func (b relationBase) prepare(q *Table) *Table {
	if len(b.eagerLoads) > 0 {
		q = q.EagerLoad(b.eagerLoads)
	}
	if b.constraint != nil {
		if c := b.constraint(q); c != nil {
			q = c
		}
	}
	return q
}

// distinctValues 按出现顺序收集 owners 中 field 的非空取值
func distinctValues(owners []Model, field string) []any {
	seen := map[string]bool{}
	var values []any
	for _, owner := range owners {
		v, ok := owner[field]
		if !ok || v == nil {
			continue
		}
		k := dictKey(v)
		if seen[k] {
			continue
		}
		seen[k] = true
		values = append(values, v)
	}
	return values
}

// groupBy 按 field 的取值分组
func groupBy(models []Model, field string) map[string][]Model {
	groups := map[string][]Model{}
	for _, m := range models {
		v, ok := m[field]
		if !ok || v == nil {
			continue
		}
		k := dictKey(v)
		groups[k] = append(groups[k], m)
	}
	return groups
}

// attach 为每个 owner 取出 field 对应的分组
func attach(owners []Model, field string, groups map[string][]Model, many bool) []any {
	values := make([]any, len(owners))
	for i, owner := range owners {
		var group []Model
		if v, ok := owner[field]; ok && v != nil {
			group = groups[dictKey(v)]
		}
		if many {
			if group == nil {
				group = []Model{}
			}
			values[i] = group
		} else if len(group) > 0 {
			values[i] = group[0]
		} else {
			values[i] = Model(nil)
		}
	}
	return values
}
