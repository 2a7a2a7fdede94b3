package query

import (
	"strings"
)

// InQuery 集合查询，Values 为空时 IN 恒假、NOT IN 恒真
type InQuery struct {
	Field  string `json:"field"`
	Values []any  `json:"values"`
	Not    bool   `json:"not,omitempty"`
}

func (q *InQuery) ToSQL() (string, []any, error) {
	if len(q.Values) == 0 {
		if q.Not {
			return "1=1", nil, nil
		}
		return "1=0", nil, nil
	}

	placeholders := strings.Repeat("?, ", len(q.Values))
	placeholders = placeholders[:len(placeholders)-2]

	op := " IN ("
	if q.Not {
		op = " NOT IN ("
	}
	args := make([]any, len(q.Values))
	copy(args, q.Values)
	return q.Field + op + placeholders + ")", args, nil
}

// NullQuery 空值查询
type NullQuery struct {
	Field string `json:"field"`
	Not   bool   `json:"not,omitempty"`
}

func (q *NullQuery) ToSQL() (string, []any, error) {
	if q.Not {
		return q.Field + " IS NOT NULL", nil, nil
	}
	return q.Field + " IS NULL", nil, nil
}
