package node

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dTree/lib/backend/mbackend"
)

func equalValues(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func TestScalarRoundTrip(t *testing.T) {
	date := time.Date(2024, 5, 6, 7, 8, 9, 123000000, time.UTC)
	values := map[string]any{
		"string":        "hello",
		"longString":    strings.Repeat("s", 80),
		"number":        float64(42.5),
		"integer":       7,
		"boolean":       true,
		"date":          date,
		"binary":        []byte{1, 2, 3},
		"longBinary":    bytes.Repeat([]byte{7}, 80),
		"reference":     PathReference{Path: "users/ann"},
		"longReference": PathReference{Path: "users/" + strings.Repeat("r", 80)},
		"emptyObject":   map[string]any{},
		"emptyArray":    []any{},
	}
	want := map[string]any{
		"integer": float64(7),
	}

	for _, ser := range []IRecordSerializer{NewJSONSerializer(), NewMsgpackSerializer()} {
		t.Run(ser.Name(), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Serializer = ser
			s := openStorage(t, mbackend.NewMemoryBackend(), cfg)

			for name, v := range values {
				mustSet(t, s, "values/"+name, v)
			}
			for name, v := range values {
				expected := v
				if w, ok := want[name]; ok {
					expected = w
				}
				got := mustGet(t, s, "values/"+name, GetOptions{})
				if !equalValues(got, expected) {
					t.Errorf("%s: expected %#v, got %#v", name, expected, got)
				}
			}

			// long values get dedicated records, short ones are inline
			for name, dedicated := range map[string]bool{"string": false, "longString": true, "binary": false, "longBinary": true, "reference": false, "longReference": true, "date": false} {
				info := mustInfo(t, s, "values/"+name)
				if info.Inline == dedicated {
					t.Errorf("%s: expected inline=%v, got %+v", name, !dedicated, info)
				}
			}
		})
	}
}

func TestInlineThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInlineValueSize = 5
	s := openStorage(t, mbackend.NewMemoryBackend(), cfg)

	tests := []struct {
		value  any
		inline bool
	}{
		{"12345", true},
		{"123456", false},
		{[]byte("1234"), true},
		{[]byte("12345"), false},
		{PathReference{Path: "a/b/c"}, true},
		{PathReference{Path: "a/b/cd"}, false},
	}
	for i, tt := range tests {
		typ, v, err := classify("", tt.value)
		if err != nil {
			t.Fatalf("classify failed: %v", err)
		}
		if got := s.fitsInline(typ, v); got != tt.inline {
			t.Errorf("case %d: fitsInline(%#v) = %v, want %v", i, tt.value, got, tt.inline)
		}
	}
}

func TestRecordEncoding(t *testing.T) {
	r := &record{
		typ: TypeObject,
		body: map[string]any{
			"s": "str",
			"d": time.UnixMilli(1700000000000).UTC(),
			"b": []byte("bin"),
			"r": PathReference{Path: "x/y"},
			"o": map[string]any{},
		},
		revision:   "rev",
		revisionNr: 3,
		created:    1,
		modified:   2,
	}
	for _, ser := range []IRecordSerializer{NewJSONSerializer(), NewMsgpackSerializer()} {
		t.Run(ser.Name(), func(t *testing.T) {
			wire, err := encodeRecord("doc", r)
			if err != nil {
				t.Fatalf("encodeRecord failed: %v", err)
			}
			data, err := ser.Serialize(wire)
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}
			var back Record
			if err := ser.Deserialize(data, &back); err != nil {
				t.Fatalf("Deserialize failed: %v", err)
			}
			got, err := decodeRecord("doc", &back)
			if err != nil {
				t.Fatalf("decodeRecord failed: %v", err)
			}
			if got.typ != r.typ || got.revision != r.revision || got.revisionNr != r.revisionNr || got.created != r.created || got.modified != r.modified {
				t.Errorf("Metadata changed: %+v", got)
			}
			for k, v := range r.body {
				if !equalValues(got.body[k], v) {
					t.Errorf("%s: expected %#v, got %#v", k, v, got.body[k])
				}
			}
		})
	}
}

func TestJSONWireFormat(t *testing.T) {
	wire, err := encodeRecord("doc", &record{
		typ:  TypeObject,
		body: map[string]any{"d": time.UnixMilli(5).UTC()},
	})
	if err != nil {
		t.Fatalf("encodeRecord failed: %v", err)
	}
	data, err := NewJSONSerializer().Serialize(wire)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	want := `{"type":1,"value":{"d":{"type":6,"value":5}},"revision":"","revision_nr":0,"created":0,"modified":0}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

func TestNewSerializer(t *testing.T) {
	for _, name := range []string{"json", "msgpack"} {
		ser, err := NewSerializer(name)
		if err != nil || ser.Name() != name {
			t.Errorf("NewSerializer(%q) = %v, %v", name, ser, err)
		}
	}
	if _, err := NewSerializer("xml"); err == nil {
		t.Errorf("Expected an error for an unknown serializer")
	}
}

func TestDecodeNumbers(t *testing.T) {
	for _, w := range []any{int8(3), uint16(3), int64(3), float32(3), uint64(3)} {
		v, err := decodeInline("x", w)
		if err != nil || v != float64(3) {
			t.Errorf("decodeInline(%T) = %#v, %v", w, v, err)
		}
	}
	if _, err := decodeInline("x", struct{}{}); err == nil {
		t.Errorf("Expected an error for an invalid inline value")
	}
}

func TestClassifyReflect(t *testing.T) {
	typ, v, err := classify("", map[string]int{"a": 1})
	if err != nil || typ != TypeObject || !reflect.DeepEqual(v, map[string]any{"a": 1}) {
		t.Errorf("Unexpected classification: %v %#v %v", typ, v, err)
	}
	typ, v, err = classify("", []string{"x"})
	if err != nil || typ != TypeArray || !reflect.DeepEqual(v, []any{"x"}) {
		t.Errorf("Unexpected classification: %v %#v %v", typ, v, err)
	}
	if _, _, err := classify("", make(chan int)); err == nil {
		t.Errorf("Expected an error for a channel")
	}
	if _, _, err := classify("", nil); err == nil {
		t.Errorf("Expected an error for nil")
	}
}

func TestDeserializeMeta(t *testing.T) {
	wire := &Record{
		Type:       TypeObject,
		Value:      map[string]any{"a": "x", "b": float64(2)},
		Revision:   "rev",
		RevisionNr: 4,
		Created:    10,
		Modified:   20,
	}
	for _, ser := range []IRecordSerializer{NewJSONSerializer(), NewMsgpackSerializer()} {
		t.Run(ser.Name(), func(t *testing.T) {
			data, err := ser.Serialize(wire)
			if err != nil {
				t.Fatalf("Serialize failed: %v", err)
			}
			var meta RecordMeta
			if err := ser.DeserializeMeta(data, &meta); err != nil {
				t.Fatalf("DeserializeMeta failed: %v", err)
			}
			want := RecordMeta{Type: TypeObject, Revision: "rev", RevisionNr: 4, Created: 10, Modified: 20}
			if meta != want {
				t.Errorf("Expected %+v, got %+v", want, meta)
			}
		})
	}
}
