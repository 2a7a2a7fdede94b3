package cfg

import (
	"os"
	"reflect"
	"strconv"

	"github.com/pkg/errors"
)

// Node 配置树上的一个节点，底层是解码得到的 map/slice/标量
// Node 实现了 ref.Convertable，可以直接作为 ref.TypeOptions.Options 传入构造函数
type Node struct {
	data any
}

func NewNode(data any) *Node {
	return &Node{data: data}
}

// Load 读取配置文件，按扩展名选择 yaml/json/toml/ini 解码
func Load(filename string) (*Node, error) {
	decoder, err := DecoderFor(filename)
	if err != nil {
		return nil, err
	}
	buf, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s failed", filename)
	}
	return Parse(buf, decoder)
}

func Parse(data []byte, decoder Decoder) (*Node, error) {
	v, err := decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	return NewNode(v), nil
}

// LoadInto 读取配置文件并转换到 object
func LoadInto(filename string, object any) error {
	node, err := Load(filename)
	if err != nil {
		return err
	}
	return node.ConvertTo(object)
}

func (n *Node) Data() any {
	return n.data
}

// Sub 获取子节点，key 支持 "database.connections[0].host" 形式
// 路径不存在时返回数据为 nil 的节点
func (n *Node) Sub(key string) *Node {
	current := n.data
	for _, k := range parseKey(key) {
		current = childOf(current, k)
		if current == nil {
			break
		}
	}
	return NewNode(current)
}

// ConvertTo 先填充 def 默认值再转换，配置中显式给出的零值（如 false）不会被默认值覆盖
// 转换过程中新建的嵌套结构体同样先填充默认值，最后校验 validate 标签
func (n *Node) ConvertTo(object any) error {
	rv := reflect.ValueOf(object)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("object must be a non-nil pointer")
	}
	if err := SetDefaults(object); err != nil {
		return err
	}
	if err := convertValue(n.data, rv); err != nil {
		return err
	}
	return Validate(object)
}

func parseKey(key string) []string {
	var keys []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			keys = append(keys, string(current))
			current = current[:0]
		}
	}
	for _, c := range key {
		switch c {
		case '.', '[', ']':
			flush()
		default:
			current = append(current, c)
		}
	}
	flush()
	return keys
}

func childOf(data any, key string) any {
	switch v := data.(type) {
	case map[string]any:
		return v[key]
	case map[any]any:
		return v[key]
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v) {
			return nil
		}
		return v[i]
	case *Node:
		return childOf(v.data, key)
	}
	return nil
}
