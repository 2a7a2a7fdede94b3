package intgen

import (
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

func init() {
	ref.MustRegisterT[*TimestampSeqGenerator](NewTimestampSeqGeneratorWithOptions)
	ref.MustRegisterT[*SnowflakeGenerator](NewSnowflakeGeneratorWithOptions)
	ref.MustRegisterT[*RedisGenerator](NewRedisGeneratorWithOptions)
}

// IntGenerator 生成 64 位整数 UID 的接口
type IntGenerator interface {
	Generate() int64
}

func NewIntGeneratorWithOptions(options *ref.TypeOptions) (IntGenerator, error) {
	namespace, _ := ref.TypeName[*SnowflakeGenerator]()
	g, err := ref.NewAs[IntGenerator](options, namespace)
	if err != nil {
		return nil, errors.WithMessage(err, "create int generator failed")
	}
	return g, nil
}
