package cli

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hatlonely/ormx/rdb/orm"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewColumnsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "columns <table>",
		Short: "列出表的列名",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrm(cmd, opts, func(ctx context.Context, o *orm.Orm, out *Formatter) error {
				columns, err := o.Columns(ctx, args[0])
				if err != nil {
					return err
				}
				return out.List(columns)
			})
		},
	}
}

// filterFlags count 和 query 共用的条件参数
type filterFlags struct {
	wheres []string
}

func (f *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&f.wheres, "where", "w", nil, "condition k=v, k!=v, k>v, k>=v, k<v, k<=v (repeatable)")
}

func (f *filterFlags) apply(t *orm.Table) (*orm.Table, error) {
	for _, w := range f.wheres {
		field, op, value, err := parseWhere(w)
		if err != nil {
			return nil, err
		}
		t = t.Where(field, op, value)
	}
	return t, nil
}

// 先匹配两个字符的运算符
var whereOperators = []string{"!=", ">=", "<=", "=", ">", "<"}

func parseWhere(expr string) (string, string, any, error) {
	for _, op := range whereOperators {
		if i := strings.Index(expr, op); i > 0 {
			return strings.TrimSpace(expr[:i]), op, parseValue(strings.TrimSpace(expr[i+len(op):])), nil
		}
	}
	return "", "", nil, errors.Errorf("invalid condition %q, expect field=value", expr)
}

// parseValue 整数按 int64 传给数据库，其余按字符串
func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	return s
}

func NewCountCommand(opts *RootOptions) *cobra.Command {
	filter := &filterFlags{}
	cmd := &cobra.Command{
		Use:   "count <table>",
		Short: "统计满足条件的行数",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrm(cmd, opts, func(ctx context.Context, o *orm.Orm, out *Formatter) error {
				t, err := filter.apply(o.Table(args[0]))
				if err != nil {
					return err
				}
				n, err := t.Count(ctx)
				if err != nil {
					return err
				}
				return out.Value(n)
			})
		},
	}
	filter.register(cmd)
	return cmd
}

type queryFlags struct {
	filterFlags
	with    []string
	page    int
	perPage int
	orders  []string
	cache   time.Duration
}

func (f *queryFlags) register(cmd *cobra.Command) {
	f.filterFlags.register(cmd)
	cmd.Flags().StringSliceVar(&f.with, "with", nil, "relations to eager load, e.g. posts.comments")
	cmd.Flags().IntVar(&f.page, "page", 0, "page number, starts from 1")
	cmd.Flags().IntVar(&f.perPage, "per-page", 0, "page size, defaults to the table's perPage")
	cmd.Flags().StringArrayVar(&f.orders, "order", nil, "order column[:desc] (repeatable)")
	cmd.Flags().DurationVar(&f.cache, "cache", 0, "cache results for the given lifetime")
}

func (f *queryFlags) apply(cmd *cobra.Command, t *orm.Table) (*orm.Table, error) {
	t, err := f.filterFlags.apply(t)
	if err != nil {
		return nil, err
	}
	for _, order := range f.orders {
		column, direction, _ := strings.Cut(order, ":")
		t = t.OrderBy(column, direction)
	}
	if f.page > 0 || f.perPage > 0 {
		t = t.ForPage(f.page, f.perPage)
	}
	if len(f.with) > 0 {
		t = t.EagerLoad(f.with)
	}
	if cmd.Flags().Changed("cache") {
		t = t.Cache(f.cache)
	}
	return t, nil
}

func NewQueryCommand(opts *RootOptions) *cobra.Command {
	flags := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query <table>",
		Short: "查询满足条件的行",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrm(cmd, opts, func(ctx context.Context, o *orm.Orm, out *Formatter) error {
				t, err := flags.apply(cmd, o.Table(args[0]))
				if err != nil {
					return err
				}
				rows, err := t.All(ctx)
				if err != nil {
					return err
				}
				return out.Rows(rows)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func NewFindCommand(opts *RootOptions) *cobra.Command {
	var with []string
	cmd := &cobra.Command{
		Use:   "find <table> <key>",
		Short: "按主键查找一行",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrm(cmd, opts, func(ctx context.Context, o *orm.Orm, out *Formatter) error {
				t := o.Table(args[0])
				if len(with) > 0 {
					t = t.EagerLoad(with)
				}
				m, err := t.Find(ctx, parseValue(args[1]))
				if err != nil {
					return err
				}
				if m == nil {
					return errors.Errorf("%s %s not found", args[0], args[1])
				}
				return out.Rows([]orm.Model{m})
			})
		},
	}
	cmd.Flags().StringSliceVar(&with, "with", nil, "relations to eager load, e.g. posts.comments")
	return cmd
}

func NewClearCacheCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache <table>",
		Short: "删除表的全部查询缓存",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrm(cmd, opts, func(ctx context.Context, o *orm.Orm, out *Formatter) error {
				if err := o.Table(args[0]).ClearCache(ctx); err != nil {
					return err
				}
				return out.Value(map[string]any{"table": args[0], "cleared": true})
			})
		},
	}
}
