package uid

import (
	"github.com/hatlonely/ormx/ref"
	"github.com/hatlonely/ormx/uid/intgen"
	"github.com/hatlonely/ormx/uid/strgen"
	"github.com/pkg/errors"
)

// KeyGenerator 生成候选主键，返回 string 或 int64
type KeyGenerator interface {
	NewKey() any
}

type strKeyGenerator struct {
	g strgen.StrGenerator
}

func (k strKeyGenerator) NewKey() any {
	return k.g.Generate()
}

type intKeyGenerator struct {
	g intgen.IntGenerator
}

func (k intKeyGenerator) NewKey() any {
	return k.g.Generate()
}

// FromStrGenerator 把字符串生成器适配为主键生成器
func FromStrGenerator(g strgen.StrGenerator) KeyGenerator {
	return strKeyGenerator{g: g}
}

// FromIntGenerator 把整数生成器适配为主键生成器
func FromIntGenerator(g intgen.IntGenerator) KeyGenerator {
	return intKeyGenerator{g: g}
}

// KeyGeneratorFunc 函数形式的主键生成器
type KeyGeneratorFunc func() any

func (f KeyGeneratorFunc) NewKey() any {
	return f()
}

// DefaultKeyGenerator 带连字符的 UUID v4
func DefaultKeyGenerator() KeyGenerator {
	return FromStrGenerator(strgen.NewUUIDGenerator())
}

// NewKeyGeneratorWithOptions 按 Namespace 创建字符串或整数生成器
// Namespace 为空时依次在 strgen、intgen 中查找 Type，options 为 nil 时返回默认生成器
func NewKeyGeneratorWithOptions(options *ref.TypeOptions) (KeyGenerator, error) {
	if options == nil {
		return DefaultKeyGenerator(), nil
	}

	strNamespace, _ := ref.TypeName[*strgen.UUIDGenerator]()
	intNamespace, _ := ref.TypeName[*intgen.SnowflakeGenerator]()

	switch options.Namespace {
	case strNamespace:
		g, err := strgen.NewStrGeneratorWithOptions(options)
		if err != nil {
			return nil, err
		}
		return FromStrGenerator(g), nil
	case intNamespace:
		g, err := intgen.NewIntGeneratorWithOptions(options)
		if err != nil {
			return nil, err
		}
		return FromIntGenerator(g), nil
	case "":
	default:
		obj, err := ref.NewWithOptions(options)
		if err != nil {
			return nil, errors.WithMessage(err, "create key generator failed")
		}
		return adapt(obj)
	}

	if g, err := strgen.NewStrGeneratorWithOptions(options); err == nil {
		return FromStrGenerator(g), nil
	}
	g, err := intgen.NewIntGeneratorWithOptions(options)
	if err != nil {
		return nil, errors.Errorf("key generator %s not found in strgen or intgen", options.Type)
	}
	return FromIntGenerator(g), nil
}

func adapt(obj any) (KeyGenerator, error) {
	switch g := obj.(type) {
	case KeyGenerator:
		return g, nil
	case strgen.StrGenerator:
		return FromStrGenerator(g), nil
	case intgen.IntGenerator:
		return FromIntGenerator(g), nil
	}
	return nil, errors.Errorf("%T is not a key generator", obj)
}
