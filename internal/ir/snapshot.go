package ir

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
)

// Snapshot converts an arbitrary Go value into an IRValue.
//
// The conversion never fails:
//   - errors and fmt.Stringers become their text
//   - functions become "<func>"
//   - whole floats within int64 range become IRInt, other floats the
//     shortest decimal string
//   - maps with non-string keys use fmt's rendering of the key
//   - structs become objects of their exported fields
//   - pointers are followed; cycles are cut at depth 32
func Snapshot(v any) IRValue {
	return snapshot(v, 0)
}

const maxSnapshotDepth = 32

func snapshot(v any, depth int) IRValue {
	if depth > maxSnapshotDepth {
		return IRString("<max depth>")
	}
	switch val := v.(type) {
	case nil:
		return IRNull{}
	case IRValue:
		return val
	case error:
		if isNilPointer(v) {
			return IRNull{}
		}
		return IRString(val.Error())
	case fmt.Stringer:
		if isNilPointer(v) {
			return IRNull{}
		}
		return IRString(val.String())
	case string:
		return IRString(val)
	case bool:
		return IRBool(val)
	case []byte:
		return IRString(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IRInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return IRString(strconv.FormatUint(u, 10))
		}
		return IRInt(int64(u))
	case reflect.Float32, reflect.Float64:
		return snapshotFloat(rv.Float())
	case reflect.String:
		return IRString(rv.String())
	case reflect.Bool:
		return IRBool(rv.Bool())
	case reflect.Func:
		if rv.IsNil() {
			return IRNull{}
		}
		return IRString("<func>")
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return IRNull{}
		}
		return snapshot(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return IRNull{}
		}
		arr := make(IRArray, rv.Len())
		for i := range arr {
			arr[i] = snapshot(rv.Index(i).Interface(), depth+1)
		}
		return arr
	case reflect.Map:
		if rv.IsNil() {
			return IRNull{}
		}
		obj := make(IRObject, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			obj[mapKey(iter.Key())] = snapshot(iter.Value().Interface(), depth+1)
		}
		return obj
	case reflect.Struct:
		obj := make(IRObject)
		t := rv.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			obj[f.Name] = snapshot(rv.Field(i).Interface(), depth+1)
		}
		return obj
	}
	return IRString(fmt.Sprintf("%v", v))
}

func snapshotFloat(f float64) IRValue {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return IRInt(int64(f))
	}
	return IRString(strconv.FormatFloat(f, 'g', -1, 64))
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprintf("%v", k.Interface())
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

// SnapshotArgs snapshots an argument list. A nil list becomes an empty
// array so absent and empty argument lists compare equal.
func SnapshotArgs(args []any) IRArray {
	out := make(IRArray, len(args))
	for i, a := range args {
		out[i] = Snapshot(a)
	}
	return out
}
