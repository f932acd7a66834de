package node

import (
	"fmt"
	"reflect"
	"time"
)

// --------------------------------------------------------------------------
// Value Types
// --------------------------------------------------------------------------

// ValueType is the type tag of a stored value. The numeric values are part of
// the persisted record format.
type ValueType uint8

const (
	TypeObject    ValueType = 1
	TypeArray     ValueType = 2
	TypeNumber    ValueType = 3
	TypeBoolean   ValueType = 4
	TypeString    ValueType = 5
	TypeDateTime  ValueType = 6
	TypeBinary    ValueType = 8
	TypeReference ValueType = 9
)

func (t ValueType) String() string {
	switch t {
	case TypeObject:
		return "object"
	case TypeArray:
		return "array"
	case TypeNumber:
		return "number"
	case TypeBoolean:
		return "boolean"
	case TypeString:
		return "string"
	case TypeDateTime:
		return "datetime"
	case TypeBinary:
		return "binary"
	case TypeReference:
		return "reference"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Valid reports whether t is a known type tag.
func (t ValueType) Valid() bool {
	switch t {
	case TypeObject, TypeArray, TypeNumber, TypeBoolean, TypeString, TypeDateTime, TypeBinary, TypeReference:
		return true
	default:
		return false
	}
}

// IsContainer reports whether values of this type have children.
func (t ValueType) IsContainer() bool {
	return t == TypeObject || t == TypeArray
}

// PathReference is a typed reference to another path in the tree.
type PathReference struct {
	Path string
}

// UndefinedValue is the type of Undefined.
type UndefinedValue struct{}

// Undefined marks a property without a value. Writing it fails unless
// Config.RemoveVoidProperties is set, in which case the property is dropped.
var Undefined = UndefinedValue{}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

// classify determines the type of a native value and returns it in normalized form:
// map[string]any for objects, []any for arrays, float64 for numbers and
// time.Time (UTC, millisecond precision) for dates. nil and Undefined are not
// values and must be handled by the caller.
func classify(p string, v any) (ValueType, any, error) {
	switch val := v.(type) {
	case map[string]any:
		return TypeObject, val, nil
	case []any:
		return TypeArray, val, nil
	case string:
		return TypeString, val, nil
	case bool:
		return TypeBoolean, val, nil
	case float64:
		return TypeNumber, val, nil
	case int:
		return TypeNumber, float64(val), nil
	case int64:
		return TypeNumber, float64(val), nil
	case time.Time:
		return TypeDateTime, val.UTC().Truncate(time.Millisecond), nil
	case *time.Time:
		if val != nil {
			return TypeDateTime, val.UTC().Truncate(time.Millisecond), nil
		}
	case []byte:
		return TypeBinary, val, nil
	case PathReference:
		return TypeReference, val, nil
	case *PathReference:
		if val != nil {
			return TypeReference, *val, nil
		}
	case nil, UndefinedValue:
		// handled by the caller
	default:
		return classifyReflect(p, v)
	}
	return 0, nil, newError(RetCInvalidValue, p, "unsupported value %#v", v)
}

// classifyReflect handles the remaining number kinds, typed maps and slices.
func classifyReflect(p string, v any) (ValueType, any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return TypeNumber, float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return TypeNumber, float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return TypeNumber, rv.Float(), nil
	case reflect.String:
		return TypeString, rv.String(), nil
	case reflect.Bool:
		return TypeBoolean, rv.Bool(), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return TypeObject, m, nil
	case reflect.Slice, reflect.Array:
		s := make([]any, rv.Len())
		for i := range s {
			s[i] = rv.Index(i).Interface()
		}
		return TypeArray, s, nil
	default:
	}
	return 0, nil, newError(RetCInvalidValue, p, "unsupported value of type %T", v)
}

// isEmptyContainer reports whether a normalized value is an empty object or array.
func isEmptyContainer(t ValueType, v any) bool {
	switch t {
	case TypeObject:
		return len(v.(map[string]any)) == 0
	case TypeArray:
		return len(v.([]any)) == 0
	default:
		return false
	}
}

// fitsInline reports whether a normalized value can be stored inside its parent's record.
func (s *Storage) fitsInline(t ValueType, v any) bool {
	max := s.cfg.MaxInlineValueSize
	switch t {
	case TypeNumber, TypeBoolean, TypeDateTime:
		return true
	case TypeString:
		return len(v.(string)) <= max
	case TypeBinary:
		return len(v.([]byte)) < max
	case TypeReference:
		return len(v.(PathReference).Path) <= max
	case TypeObject, TypeArray:
		return isEmptyContainer(t, v)
	default:
		return false
	}
}
