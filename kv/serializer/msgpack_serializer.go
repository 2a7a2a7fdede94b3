package serializer

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

type MsgPackSerializer[T any] struct{}

func NewMsgPackSerializer[T any]() *MsgPackSerializer[T] {
	return &MsgPackSerializer[T]{}
}

func (s *MsgPackSerializer[T]) Serialize(from T) ([]byte, error) {
	return msgpack.Marshal(from)
}

// Deserialize 解码为 any 时 map 统一为 map[string]any，数字统一为 int64 / float64
func (s *MsgPackSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	if v, ok := any(&result).(*any); ok {
		decoded, err := msgpack.NewDecoder(bytes.NewReader(to)).DecodeInterfaceLoose()
		if err != nil {
			return result, err
		}
		*v = Normalize(stringKeys(decoded))
		return result, nil
	}
	err := msgpack.Unmarshal(to, &result)
	return result, err
}

func stringKeys(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, e := range val {
			val[k] = stringKeys(e)
		}
		return val
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			if s, ok := k.(string); ok {
				m[s] = stringKeys(e)
			}
		}
		return m
	case []any:
		for i, e := range val {
			val[i] = stringKeys(e)
		}
		return val
	}
	return v
}
