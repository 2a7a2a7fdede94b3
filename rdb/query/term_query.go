package query

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var termOperators = map[string]string{
	"=":        "=",
	"!=":       "!=",
	"<>":       "<>",
	"<":        "<",
	"<=":       "<=",
	">":        ">",
	">=":       ">=",
	"like":     "LIKE",
	"not like": "NOT LIKE",
}

// IsTermOperator 判断 op 是否为 TermQuery 支持的比较运算符
func IsTermOperator(op string) bool {
	_, ok := termOperators[strings.ToLower(strings.TrimSpace(op))]
	return ok
}

// TermQuery 比较查询，Op 为空时为等值比较，Value 为 nil 时编译为 IS [NOT] NULL
type TermQuery struct {
	Field string `json:"field"`
	Op    string `json:"op,omitempty"`
	Value any    `json:"value"`
}

func (q *TermQuery) ToSQL() (string, []any, error) {
	op := strings.ToLower(strings.TrimSpace(q.Op))
	if op == "" {
		op = "="
	}
	sqlOp, ok := termOperators[op]
	if !ok {
		return "", nil, errors.Errorf("unsupported operator %q on %s", q.Op, q.Field)
	}

	if q.Value == nil {
		switch sqlOp {
		case "=":
			return q.Field + " IS NULL", nil, nil
		case "!=", "<>":
			return q.Field + " IS NOT NULL", nil, nil
		}
	}

	return fmt.Sprintf("%s %s ?", q.Field, sqlOp), []any{q.Value}, nil
}
