package cfg

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
	nodeType     = reflect.TypeOf(&Node{})
)

func convertValue(src any, dst reflect.Value) error {
	if node, ok := src.(*Node); ok {
		src = node.data
	}
	if src == nil {
		return nil
	}

	if dst.Kind() == reflect.Ptr {
		if dst.Type() == nodeType {
			dst.Set(reflect.ValueOf(NewNode(src)))
			return nil
		}
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
			if err := setDefaults(dst.Elem()); err != nil {
				return err
			}
		}
		return convertValue(src, dst.Elem())
	}

	sv := reflect.ValueOf(src)

	switch dst.Type() {
	case durationType:
		return convertToDuration(sv, dst)
	case timeType:
		return convertToTime(sv, dst)
	}

	switch dst.Kind() {
	case reflect.Interface:
		// 未知类型的子配置保留为 *Node，由使用方（通常是 ref.New）按目标类型延迟转换
		if sv.Kind() == reflect.Map && dst.Type().NumMethod() == 0 {
			dst.Set(reflect.ValueOf(NewNode(src)))
			return nil
		}
		if sv.Type().AssignableTo(dst.Type()) {
			dst.Set(sv)
			return nil
		}
	case reflect.Struct:
		return convertToStruct(sv, dst)
	case reflect.Map:
		return convertToMap(sv, dst)
	case reflect.Slice:
		if sv.Kind() == reflect.String && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(sv.String()))
			return nil
		}
		return convertToSlice(sv, dst)
	case reflect.String:
		if sv.Kind() != reflect.String {
			dst.SetString(fmt.Sprint(src))
			return nil
		}
	case reflect.Bool:
		if sv.Kind() == reflect.String {
			b, err := strconv.ParseBool(sv.String())
			if err != nil {
				return errors.Wrapf(err, "parse bool %q failed", sv.String())
			}
			dst.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if sv.Kind() == reflect.String {
			i, err := strconv.ParseInt(sv.String(), 0, dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "parse int %q failed", sv.String())
			}
			dst.SetInt(i)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		if sv.Kind() == reflect.String {
			f, err := strconv.ParseFloat(sv.String(), dst.Type().Bits())
			if err != nil {
				return errors.Wrapf(err, "parse float %q failed", sv.String())
			}
			dst.SetFloat(f)
			return nil
		}
	}

	if sv.Type().AssignableTo(dst.Type()) {
		dst.Set(sv)
		return nil
	}
	if (sv.Kind() == dst.Kind() || isNumber(sv.Kind()) && isNumber(dst.Kind())) && sv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(sv.Convert(dst.Type()))
		return nil
	}

	return errors.Errorf("cannot convert %v to %v", sv.Type(), dst.Type())
}

func isNumber(k reflect.Kind) bool {
	return (k >= reflect.Int && k <= reflect.Float64) && k != reflect.Uintptr
}

// convertToDuration 字符串按 time.ParseDuration 解析，整数视为纳秒，浮点数视为秒
func convertToDuration(src, dst reflect.Value) error {
	switch src.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(src.String())
		if err != nil {
			return errors.Wrapf(err, "parse duration %q failed", src.String())
		}
		dst.SetInt(int64(d))
		return nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.SetInt(src.Int())
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		dst.SetInt(int64(src.Uint()))
		return nil
	case reflect.Float32, reflect.Float64:
		dst.SetInt(int64(src.Float() * float64(time.Second)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Duration", src.Type())
}

var timeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func convertToTime(src, dst reflect.Value) error {
	if src.Type() == timeType {
		dst.Set(src)
		return nil
	}
	switch src.Kind() {
	case reflect.String:
		for _, format := range timeFormats {
			if t, err := time.Parse(format, src.String()); err == nil {
				dst.Set(reflect.ValueOf(t))
				return nil
			}
		}
		return errors.Errorf("parse time %q failed", src.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		dst.Set(reflect.ValueOf(time.Unix(src.Int(), 0)))
		return nil
	}
	return errors.Errorf("cannot convert %v to time.Time", src.Type())
}

func convertToMap(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	if dst.IsNil() {
		dst.Set(reflect.MakeMap(dst.Type()))
	}
	keyType := dst.Type().Key()
	for _, k := range src.MapKeys() {
		item := reflect.New(dst.Type().Elem()).Elem()
		if err := setDefaults(item); err != nil {
			return err
		}
		if err := convertValue(src.MapIndex(k).Interface(), item); err != nil {
			return errors.WithMessagef(err, "key %v", k.Interface())
		}
		key := reflect.ValueOf(fmt.Sprint(k.Interface()))
		if keyType.Kind() != reflect.String {
			key = reflect.New(keyType).Elem()
			if err := convertValue(k.Interface(), key); err != nil {
				return err
			}
		}
		dst.SetMapIndex(key.Convert(keyType), item)
	}
	return nil
}

func convertToSlice(src, dst reflect.Value) error {
	if src.Kind() != reflect.Slice && src.Kind() != reflect.Array {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}
	slice := reflect.MakeSlice(dst.Type(), src.Len(), src.Len())
	for i := 0; i < src.Len(); i++ {
		if err := setDefaults(slice.Index(i)); err != nil {
			return err
		}
		if err := convertValue(src.Index(i).Interface(), slice.Index(i)); err != nil {
			return errors.WithMessagef(err, "index %d", i)
		}
	}
	dst.Set(slice)
	return nil
}

// fieldName 字段名优先取 cfg 标签，其次 json、yaml 标签，最后是字段名本身
func fieldName(field reflect.StructField) string {
	for _, tag := range []string{"cfg", "json", "yaml"} {
		if name := strings.Split(field.Tag.Get(tag), ",")[0]; name != "" {
			return name
		}
	}
	return field.Name
}

func convertToStruct(src, dst reflect.Value) error {
	if src.Kind() != reflect.Map {
		return errors.Errorf("cannot convert %v to %v", src.Type(), dst.Type())
	}

	values := map[string]reflect.Value{}
	for _, k := range src.MapKeys() {
		values[fmt.Sprint(k.Interface())] = src.MapIndex(k)
	}

	dt := dst.Type()
	for i := 0; i < dt.NumField(); i++ {
		field := dt.Field(i)
		if !field.IsExported() {
			continue
		}
		name := fieldName(field)
		if name == "-" {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if err := convertToStruct(src, dst.Field(i)); err != nil {
				return err
			}
			continue
		}
		v, ok := values[name]
		if !ok {
			v, ok = values[strings.ToLower(name)]
		}
		if !ok {
			continue
		}
		if err := convertValue(v.Interface(), dst.Field(i)); err != nil {
			return errors.WithMessagef(err, "field %s", name)
		}
	}
	return nil
}
