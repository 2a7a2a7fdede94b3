package query

// ILikeQuery 大小写不敏感的 LIKE，各方言统一使用 LOWER 实现
type ILikeQuery struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Not   bool   `json:"not,omitempty"`
}

func (q *ILikeQuery) ToSQL() (string, []any, error) {
	op := " LIKE "
	if q.Not {
		op = " NOT LIKE "
	}
	return "LOWER(" + q.Field + ")" + op + "LOWER(?)", []any{q.Value}, nil
}

// RawQuery 原样输出的 SQL 片段
type RawQuery struct {
	SQL  string `json:"sql"`
	Args []any  `json:"args,omitempty"`
}

func (q *RawQuery) ToSQL() (string, []any, error) {
	return q.SQL, q.Args, nil
}
