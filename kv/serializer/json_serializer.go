package serializer

import (
	"bytes"
	"encoding/json"
)

// JSONSerializer 反序列化时数字先解析为 json.Number，整数转为 int64，其他转为 float64
type JSONSerializer[T any] struct{}

func NewJSONSerializer[T any]() *JSONSerializer[T] {
	return &JSONSerializer[T]{}
}

func (s *JSONSerializer[T]) Serialize(from T) ([]byte, error) {
	return json.Marshal(from)
}

func (s *JSONSerializer[T]) Deserialize(to []byte) (T, error) {
	var result T
	decoder := json.NewDecoder(bytes.NewReader(to))
	decoder.UseNumber()
	if err := decoder.Decode(&result); err != nil {
		return result, err
	}
	if v, ok := any(&result).(*any); ok {
		*v = Normalize(*v)
	}
	return result, nil
}

// Normalize 把解码出的无类型数据中的数字统一成 int64 / float64
func Normalize(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, e := range val {
			val[k] = Normalize(e)
		}
		return val
	case []any:
		for i, e := range val {
			val[i] = Normalize(e)
		}
		return val
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	}
	return v
}
