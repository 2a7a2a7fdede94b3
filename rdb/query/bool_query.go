package query

import (
	"fmt"
	"strings"
)

// BoolQuery 布尔组合查询，Must/Filter 以 AND 连接，Should 以 OR 连接，MustNot 逐个取反
type BoolQuery struct {
	Must           []Query `json:"must,omitempty"`
	Should         []Query `json:"should,omitempty"`
	MustNot        []Query `json:"must_not,omitempty"`
	Filter         []Query `json:"filter,omitempty"`
	MinShouldMatch *int    `json:"minimum_should_match,omitempty"`
}

// Not 对 q 取反
func Not(q Query) Query {
	return &BoolQuery{MustNot: []Query{q}}
}

// And 以 AND 连接多个条件
func And(queries ...Query) Query {
	return &BoolQuery{Must: queries}
}

// Or 以 OR 连接多个条件
func Or(queries ...Query) Query {
	return &BoolQuery{Should: queries}
}

func compileAll(queries []Query, wrap string) ([]string, []any, error) {
	conditions := make([]string, 0, len(queries))
	var args []any
	for _, query := range queries {
		sql, queryArgs, err := query.ToSQL()
		if err != nil {
			return nil, nil, err
		}
		conditions = append(conditions, fmt.Sprintf(wrap, sql))
		args = append(args, queryArgs...)
	}
	return conditions, args, nil
}

func (q *BoolQuery) ToSQL() (string, []any, error) {
	var conditions []string
	var args []any

	for _, group := range [][]Query{q.Must, q.Filter} {
		if len(group) == 0 {
			continue
		}
		parts, groupArgs, err := compileAll(group, "%s")
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "("+strings.Join(parts, " AND ")+")")
		args = append(args, groupArgs...)
	}

	if len(q.Should) > 0 {
		parts, groupArgs, err := compileAll(q.Should, "%s")
		if err != nil {
			return "", nil, err
		}
		if q.MinShouldMatch != nil && *q.MinShouldMatch != 1 {
			cases := make([]string, len(parts))
			for i, condition := range parts {
				cases[i] = fmt.Sprintf("CASE WHEN (%s) THEN 1 ELSE 0 END", condition)
			}
			conditions = append(conditions, fmt.Sprintf("(%s) >= %d", strings.Join(cases, " + "), *q.MinShouldMatch))
		} else {
			conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")
		}
		args = append(args, groupArgs...)
	}

	if len(q.MustNot) > 0 {
		parts, groupArgs, err := compileAll(q.MustNot, "NOT (%s)")
		if err != nil {
			return "", nil, err
		}
		conditions = append(conditions, "("+strings.Join(parts, " AND ")+")")
		args = append(args, groupArgs...)
	}

	if len(conditions) == 0 {
		return "1=1", nil, nil
	}

	return strings.Join(conditions, " AND "), args, nil
}
