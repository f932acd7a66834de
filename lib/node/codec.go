package node

import (
	"encoding/base64"
	"math"
	"time"
)

// --------------------------------------------------------------------------
// Encoding (native -> wire)
// --------------------------------------------------------------------------

// typedWrapper is the inline wire form of dates, binary values and references.
func typedWrapper(t ValueType, v any) map[string]any {
	return map[string]any{"type": uint8(t), "value": v}
}

// encodeRecord converts a decoded record into its wire form.
func encodeRecord(p string, r *record) (*Record, error) {
	rec := &Record{
		Type:       r.typ,
		Revision:   r.revision,
		RevisionNr: r.revisionNr,
		Created:    r.created,
		Modified:   r.modified,
	}
	if r.typ.IsContainer() {
		body := make(map[string]any, len(r.body))
		for k, v := range r.body {
			w, err := encodeInline(childPath(p, k, r.typ == TypeArray), v)
			if err != nil {
				return nil, err
			}
			body[k] = w
		}
		rec.Value = body
		return rec, nil
	}

	w, err := encodeScalar(p, r.typ, r.value)
	if err != nil {
		return nil, err
	}
	rec.Value = w
	return rec, nil
}

// encodeScalar returns the wire form of a scalar stored as its own record.
func encodeScalar(p string, t ValueType, v any) (any, error) {
	switch t {
	case TypeString, TypeNumber, TypeBoolean:
		return v, nil
	case TypeDateTime:
		return v.(time.Time).UnixMilli(), nil
	case TypeBinary:
		return base64.StdEncoding.EncodeToString(v.([]byte)), nil
	case TypeReference:
		return v.(PathReference).Path, nil
	default:
		return nil, newError(RetCInvalidValue, p, "type %s is not a scalar type", t)
	}
}

// encodeInline returns the wire form of a normalized inline value.
func encodeInline(p string, v any) (any, error) {
	switch val := v.(type) {
	case string, float64, bool:
		return val, nil
	case time.Time:
		return typedWrapper(TypeDateTime, val.UnixMilli()), nil
	case []byte:
		return typedWrapper(TypeBinary, base64.StdEncoding.EncodeToString(val)), nil
	case PathReference:
		return typedWrapper(TypeReference, val.Path), nil
	case map[string]any:
		if len(val) == 0 {
			return map[string]any{}, nil
		}
	case []any:
		if len(val) == 0 {
			return []any{}, nil
		}
	}
	return nil, newError(RetCInvalidValue, p, "value %#v can not be stored inline", v)
}

// --------------------------------------------------------------------------
// Decoding (wire -> native)
// --------------------------------------------------------------------------

// decodeRecord converts a wire record into a decoded record.
func decodeRecord(p string, rec *Record) (*record, error) {
	if !rec.Type.Valid() {
		return nil, newError(RetCDecodeError, p, "unknown record type %d", uint8(rec.Type))
	}
	r := &record{
		typ:        rec.Type,
		revision:   rec.Revision,
		revisionNr: rec.RevisionNr,
		created:    rec.Created,
		modified:   rec.Modified,
	}

	if rec.Type.IsContainer() {
		wire, err := wireMap(p, rec.Value)
		if err != nil {
			return nil, err
		}
		r.body = make(map[string]any, len(wire))
		for k, w := range wire {
			v, err := decodeInline(childPath(p, k, rec.Type == TypeArray), w)
			if err != nil {
				return nil, err
			}
			r.body[k] = v
		}
		return r, nil
	}

	v, err := decodeScalar(p, rec.Type, rec.Value)
	if err != nil {
		return nil, err
	}
	r.value = v
	return r, nil
}

// decodeScalar converts the wire value of a scalar record.
func decodeScalar(p string, t ValueType, w any) (any, error) {
	switch t {
	case TypeString:
		if s, ok := w.(string); ok {
			return s, nil
		}
	case TypeNumber:
		if f, ok := toFloat64(w); ok {
			return f, nil
		}
	case TypeBoolean:
		if b, ok := w.(bool); ok {
			return b, nil
		}
	case TypeDateTime:
		if ms, ok := toInt64(w); ok {
			return millisToTime(ms), nil
		}
	case TypeBinary:
		if s, ok := w.(string); ok {
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, &Error{Code: RetCDecodeError, Path: p, Msg: "invalid binary value", Err: err}
			}
			return b, nil
		}
	case TypeReference:
		if s, ok := w.(string); ok {
			return PathReference{Path: s}, nil
		}
	default:
	}
	return nil, newError(RetCDecodeError, p, "invalid wire value %#v for type %s", w, t)
}

// decodeInline reverses the inline wire form of a value inside a container body.
func decodeInline(p string, w any) (any, error) {
	switch val := w.(type) {
	case string, bool:
		return val, nil
	case []any:
		if len(val) == 0 {
			return []any{}, nil
		}
		return nil, newError(RetCDecodeError, p, "non-empty inline array")
	case map[string]any, map[any]any:
		m, err := wireMap(p, val)
		if err != nil {
			return nil, err
		}
		if len(m) == 0 {
			return map[string]any{}, nil
		}
		tag, ok := toInt64(m["type"])
		if !ok {
			return nil, newError(RetCDecodeError, p, "inline object without type tag")
		}
		t := ValueType(tag)
		switch t {
		case TypeDateTime, TypeBinary, TypeReference:
			return decodeScalar(p, t, m["value"])
		default:
			return nil, newError(RetCDecodeError, p, "unknown inline type %d", tag)
		}
	}
	if f, ok := toFloat64(w); ok {
		return f, nil
	}
	return nil, newError(RetCDecodeError, p, "invalid inline value %#v", w)
}

// wireMap returns the body of a container record. Missing bodies are empty.
func wireMap(p string, w any) (map[string]any, error) {
	switch val := w.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return val, nil
	case map[any]any:
		m := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, newError(RetCDecodeError, p, "non-string key %#v", k)
			}
			m[ks] = v
		}
		return m, nil
	case []any:
		if len(val) == 0 {
			return map[string]any{}, nil
		}
	}
	return nil, newError(RetCDecodeError, p, "invalid body %#v", w)
}

// toFloat64 converts every numeric wire representation (json float64, msgpack ints).
func toFloat64(w any) (float64, bool) {
	switch n := w.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt64(w any) (int64, bool) {
	f, ok := toFloat64(w)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}
