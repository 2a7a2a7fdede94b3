package orm

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Constraint 在关联的批量查询执行前调整查询，nil 表示不做任何调整
type Constraint func(t *Table) *Table

// EagerLoads 关联路径到约束的映射，路径的每个前缀都有对应的键
type EagerLoads map[string]Constraint

// ParseEagerLoads 展开关联路径
// specs 中的元素可以是路径字符串、map[string]Constraint 或 EagerLoads
// "a.b.c" 展开为 "a"、"a.b"、"a.b.c"，只有完整路径带上调用方的约束
// 已有的显式约束不会被之后的空约束覆盖，之后的显式约束会替换之前的
func ParseEagerLoads(specs ...any) (EagerLoads, error) {
	loads := EagerLoads{}
	for _, spec := range specs {
		switch v := spec.(type) {
		case string:
			loads.add(v, nil)
		case []string:
			for _, path := range v {
				loads.add(path, nil)
			}
		case map[string]Constraint:
			for _, path := range sortedPaths(v) {
				loads.add(path, v[path])
			}
		case EagerLoads:
			for _, path := range sortedPaths(v) {
				loads.add(path, v[path])
			}
		default:
			return nil, errors.Errorf("unsupported eager load spec %T", spec)
		}
	}
	return loads, nil
}

func sortedPaths[M ~map[string]Constraint](m M) []string {
	paths := make([]string, 0, len(m))
	for path := range m {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

func (e EagerLoads) add(path string, constraint Constraint) {
	path = strings.TrimSpace(path)
	if path == "" {
		return
	}
	parts := strings.Split(path, ".")
	for i := range parts {
		prefix := strings.Join(parts[:i+1], ".")
		var c Constraint
		if prefix == path {
			c = constraint
		}
		if _, ok := e[prefix]; ok && c == nil {
			continue
		}
		e[prefix] = c
	}
}

// SubEagerLoads 取出 relation 之下的路径并去掉 "relation." 前缀，交给该关联自身的加载
func SubEagerLoads(relation string, loads EagerLoads) EagerLoads {
	sub := EagerLoads{}
	prefix := relation + "."
	for path, constraint := range loads {
		if rest, ok := strings.CutPrefix(path, prefix); ok {
			sub[rest] = constraint
		}
	}
	return sub
}

// TopLevel 返回不含 . 的关联名，按名称排序
func (e EagerLoads) TopLevel() []string {
	var names []string
	for path := range e {
		if !strings.Contains(path, ".") {
			names = append(names, path)
		}
	}
	sort.Strings(names)
	return names
}
