package ref

import (
	"reflect"
	"sync"

	"github.com/pkg/errors"
)

// TypeOptions 描述一个待构造的对象：命名空间 + 类型名 + 构造参数
// Namespace 为空时由各组件的工厂方法补全为组件自身的包路径
type TypeOptions struct {
	Namespace string `cfg:"namespace"`
	Type      string `cfg:"type" validate:"required"`
	Options   any    `cfg:"options"`
}

// Convertable 可以把自身转换成任意目标对象的配置数据，例如 *cfg.Node
// 构造函数的参数类型与 options 不一致时，通过 ConvertTo 完成转换
type Convertable interface {
	// ConvertTo object 为指向目标对象的指针
	ConvertTo(object any) error
}

type constructor struct {
	fn           reflect.Value
	paramType    reflect.Type
	returnsError bool
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func newConstructor(fn any) (*constructor, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, errors.New("constructor must be a function")
	}

	ft := fv.Type()
	if ft.NumIn() > 1 {
		return nil, errors.Errorf("constructor must have 0 or 1 input parameters, got %d", ft.NumIn())
	}
	if ft.NumOut() != 1 && ft.NumOut() != 2 {
		return nil, errors.Errorf("constructor must have 1 or 2 return values, got %d", ft.NumOut())
	}
	if ft.NumOut() == 2 && !ft.Out(1).Implements(errorType) {
		return nil, errors.New("second return value must be error")
	}

	c := &constructor{fn: fv, returnsError: ft.NumOut() == 2}
	if ft.NumIn() == 1 {
		c.paramType = ft.In(0)
	}
	return c, nil
}

// prepare 把 options 转换成构造函数期望的参数
// options 为 nil 时，指针参数传入零值对象，便于只依赖默认值的组件
func (c *constructor) prepare(options any) (reflect.Value, error) {
	pt := c.paramType

	if options == nil {
		if pt.Kind() == reflect.Ptr {
			return reflect.New(pt.Elem()), nil
		}
		return reflect.Zero(pt), nil
	}

	ov := reflect.ValueOf(options)
	if ov.Type().AssignableTo(pt) {
		return ov, nil
	}
	// 值类型参数，传入的是指针
	if ov.Kind() == reflect.Ptr && !ov.IsNil() && ov.Elem().Type().AssignableTo(pt) {
		return ov.Elem(), nil
	}
	// 指针参数，传入的是值
	if pt.Kind() == reflect.Ptr && reflect.PointerTo(ov.Type()).AssignableTo(pt) {
		ptr := reflect.New(ov.Type())
		ptr.Elem().Set(ov)
		return ptr, nil
	}

	convertable, ok := options.(Convertable)
	if !ok {
		return reflect.Value{}, errors.Errorf("cannot use options of type %T as %v", options, pt)
	}

	if pt.Kind() == reflect.Ptr {
		target := reflect.New(pt.Elem())
		if err := convertable.ConvertTo(target.Interface()); err != nil {
			return reflect.Value{}, errors.WithMessagef(err, "convert options to %v failed", pt)
		}
		return target, nil
	}

	target := reflect.New(pt)
	if err := convertable.ConvertTo(target.Interface()); err != nil {
		return reflect.Value{}, errors.WithMessagef(err, "convert options to %v failed", pt)
	}
	return target.Elem(), nil
}

func (c *constructor) new(options any) (any, error) {
	var args []reflect.Value
	if c.paramType != nil {
		arg, err := c.prepare(options)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	results := c.fn.Call(args)
	if c.returnsError && !results[1].IsNil() {
		return nil, results[1].Interface().(error)
	}
	return results[0].Interface(), nil
}

var constructors sync.Map

func key(namespace string, type_ string) string {
	return namespace + ":" + type_
}

// Register 注册构造函数，构造函数形如 func([options]) T 或 func([options]) (T, error)
// 重复注册同一个函数会被忽略，同名注册不同函数返回错误
func Register(namespace string, type_ string, fn any) error {
	k := key(namespace, type_)

	c, err := newConstructor(fn)
	if err != nil {
		return errors.WithMessagef(err, "register %s failed", k)
	}

	if existing, loaded := constructors.LoadOrStore(k, c); loaded {
		if existing.(*constructor).fn.Pointer() != c.fn.Pointer() {
			return errors.Errorf("constructor for %s already registered with different function", k)
		}
	}
	return nil
}

func MustRegister(namespace string, type_ string, fn any) {
	if err := Register(namespace, type_, fn); err != nil {
		panic(err)
	}
}

// TypeName 返回 T 的包路径和类型名，指针类型取其元素类型
func TypeName[T any]() (string, string) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath(), t.Name()
}

// RegisterT 以 T 的包路径和类型名作为 namespace 和 type 注册
func RegisterT[T any](fn any) error {
	namespace, type_ := TypeName[T]()
	if namespace == "" || type_ == "" {
		return errors.Errorf("cannot determine package path or type name for %v", reflect.TypeOf((*T)(nil)).Elem())
	}
	return Register(namespace, type_, fn)
}

func MustRegisterT[T any](fn any) {
	if err := RegisterT[T](fn); err != nil {
		panic(err)
	}
}

func New(namespace string, type_ string, options any) (any, error) {
	k := key(namespace, type_)
	v, ok := constructors.Load(k)
	if !ok {
		return nil, errors.Errorf("constructor not found for %s", k)
	}
	obj, err := v.(*constructor).new(options)
	if err != nil {
		return nil, errors.WithMessagef(err, "new %s failed", k)
	}
	return obj, nil
}

func NewWithOptions(options *TypeOptions) (any, error) {
	if options == nil {
		return nil, errors.New("type options is nil")
	}
	return New(options.Namespace, options.Type, options.Options)
}

// NewT 以 T 的包路径和类型名查找构造函数
func NewT[T any](options any) (T, error) {
	var zero T
	namespace, type_ := TypeName[T]()
	obj, err := New(namespace, type_, options)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, errors.Errorf("created object %T is not of type %T", obj, zero)
	}
	return t, nil
}

// NewAs 按 options 构造对象并断言为接口 I，namespace 为空时使用 defaultNamespace
func NewAs[I any](options *TypeOptions, defaultNamespace string) (I, error) {
	var zero I
	if options == nil {
		return zero, errors.New("type options is nil")
	}
	namespace := options.Namespace
	if namespace == "" {
		namespace = defaultNamespace
	}
	obj, err := New(namespace, options.Type, options.Options)
	if err != nil {
		return zero, err
	}
	if obj == nil {
		return zero, errors.Errorf("%s:%s constructed nil", namespace, options.Type)
	}
	i, ok := obj.(I)
	if !ok {
		return zero, errors.Errorf("%T does not implement %v", obj, reflect.TypeOf((*I)(nil)).Elem())
	}
	return i, nil
}
