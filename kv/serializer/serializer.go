package serializer

import (
	"github.com/hatlonely/ormx/ref"
	"github.com/pkg/errors"
)

type Serializer[F, T any] interface {
	Serialize(from F) (T, error)
	Deserialize(to T) (F, error)
}

// NewByteSerializerWithOptions 创建 T 与 []byte 之间的序列化器，options 为 nil 时使用 json
func NewByteSerializerWithOptions[T any](options *ref.TypeOptions) (Serializer[T, []byte], error) {
	ref.RegisterT[*JSONSerializer[T]](NewJSONSerializer[T])
	ref.RegisterT[*MsgPackSerializer[T]](NewMsgPackSerializer[T])

	if options == nil {
		return NewJSONSerializer[T](), nil
	}

	// 短名称无需关心泛型参数
	switch options.Type {
	case "json":
		return NewJSONSerializer[T](), nil
	case "msgpack":
		return NewMsgPackSerializer[T](), nil
	}

	namespace, _ := ref.TypeName[*JSONSerializer[T]]()
	s, err := ref.NewAs[Serializer[T, []byte]](options, namespace)
	if err != nil {
		return nil, errors.WithMessage(err, "create serializer failed")
	}
	return s, nil
}
