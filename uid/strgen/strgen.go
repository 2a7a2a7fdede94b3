package strgen

import (
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[*UUIDGenerator](NewUUIDGeneratorWithOptions)
}

// StrGenerator 生成字符串 UID 的接口
type StrGenerator interface {
	Generate() string
}

func NewStrGeneratorWithOptions(options *ref.TypeOptions) (StrGenerator, error) {
	namespace, _ := ref.TypeName[*UUIDGenerator]()
	g, err := ref.NewAs[StrGenerator](options, namespace)
	if err != nil {
		return nil, errors.WithMessage(err, "create str generator failed")
	}
	return g, nil
}
