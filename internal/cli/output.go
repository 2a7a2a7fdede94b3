package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/hatlonely/ormx/rdb/orm"
	"github.com/pkg/errors"
)

// Formatter 以 text 或 json 输出结果
type Formatter struct {
	Format string
	Writer io.Writer
}

func (f *Formatter) json(v any) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "encode output failed")
}

func (f *Formatter) Value(v any) error {
	if f.Format == "json" {
		return f.json(v)
	}
	_, err := fmt.Fprintln(f.Writer, cell(v))
	return err
}

func (f *Formatter) List(items []string) error {
	if f.Format == "json" {
		return f.json(items)
	}
	_, err := fmt.Fprintln(f.Writer, strings.Join(items, "\n"))
	return err
}

// Rows text 格式下按列名排序输出为对齐的表格，关联数据以 JSON 显示
func (f *Formatter) Rows(rows []orm.Model) error {
	if f.Format == "json" {
		if rows == nil {
			rows = []orm.Model{}
		}
		return f.json(rows)
	}

	seen := map[string]bool{}
	var header []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				header = append(header, k)
			}
		}
	}
	sort.Strings(header)

	w := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, row := range rows {
		cells := make([]string, len(header))
		for i, k := range header {
			cells[i] = cell(row[k])
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return errors.Wrap(w.Flush(), "write output failed")
}

func cell(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case time.Time:
		return val.Format(time.RFC3339)
	case orm.Model, []orm.Model, map[string]any, []any:
		buf, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(buf)
	}
	return fmt.Sprint(v)
}
