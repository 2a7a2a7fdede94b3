package serializer

import (
	"testing"

	"github.com/hatlonely/ormx/ref"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNewByteSerializerWithOptions(t *testing.T) {
	Convey("创建序列化器", t, func() {
		Convey("nil 默认 json", func() {
			s, err := NewByteSerializerWithOptions[any](nil)
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &JSONSerializer[any]{})
		})

		Convey("短名称", func() {
			s, err := NewByteSerializerWithOptions[any](&ref.TypeOptions{Type: "msgpack"})
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &MsgPackSerializer[any]{})
		})

		Convey("注册的完整类型名", func() {
			_, type_ := ref.TypeName[*MsgPackSerializer[int]]()
			s, err := NewByteSerializerWithOptions[int](&ref.TypeOptions{Type: type_})
			So(err, ShouldBeNil)
			So(s, ShouldHaveSameTypeAs, &MsgPackSerializer[int]{})
		})

		Convey("未知类型", func() {
			_, err := NewByteSerializerWithOptions[any](&ref.TypeOptions{Type: "xml"})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSerializeRows(t *testing.T) {
	rows := []any{
		map[string]any{"id": int64(1), "name": "alice", "score": 1.5, "tags": []any{"a", "b"}},
		map[string]any{"id": int64(2), "name": "bob", "score": nil, "tags": []any{}},
	}

	for _, s := range []Serializer[any, []byte]{NewJSONSerializer[any](), NewMsgPackSerializer[any]()} {
		Convey("行数据序列化后数字统一为 int64 / float64", t, func() {
			buf, err := s.Serialize(rows)
			So(err, ShouldBeNil)
			out, err := s.Deserialize(buf)
			So(err, ShouldBeNil)
			So(out, ShouldResemble, any(rows))
		})

		Convey("标量", t, func() {
			buf, err := s.Serialize(int64(42))
			So(err, ShouldBeNil)
			out, err := s.Deserialize(buf)
			So(err, ShouldBeNil)
			So(out, ShouldEqual, int64(42))
		})
	}
}

func TestTypedSerializer(t *testing.T) {
	type user struct {
		ID   int64  `json:"id" msgpack:"id"`
		Name string `json:"name" msgpack:"name"`
	}

	Convey("具体类型直接反序列化", t, func() {
		for _, s := range []Serializer[user, []byte]{NewJSONSerializer[user](), NewMsgPackSerializer[user]()} {
			buf, err := s.Serialize(user{ID: 7, Name: "carol"})
			So(err, ShouldBeNil)
			u, err := s.Deserialize(buf)
			So(err, ShouldBeNil)
			So(u, ShouldResemble, user{ID: 7, Name: "carol"})
		}
	})

	Convey("非法数据返回错误", t, func() {
		_, err := NewJSONSerializer[user]().Deserialize([]byte("{"))
		So(err, ShouldNotBeNil)
	})
}

func TestNormalize(t *testing.T) {
	Convey("数字归一化", t, func() {
		So(Normalize(int32(3)), ShouldEqual, int64(3))
		So(Normalize(uint8(3)), ShouldEqual, int64(3))
		So(Normalize(float32(0.5)), ShouldEqual, 0.5)
		So(Normalize("x"), ShouldEqual, "x")
	})
}
