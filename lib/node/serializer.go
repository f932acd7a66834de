package node

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// IRecordSerializer is the interface for all record serializers. The serializer
// only changes the byte encoding, the record layout is the same for all of them.
type IRecordSerializer interface {
	// Name returns the name used in configuration files and flags.
	Name() string
	// Serialize serializes a Record into a byte array
	Serialize(rec *Record) ([]byte, error)
	// Deserialize deserializes a byte array into a Record
	Deserialize(b []byte, rec *Record) error
	// DeserializeMeta reads only the metadata of a serialized Record
	DeserializeMeta(b []byte, meta *RecordMeta) error
}

// NewSerializer returns the serializer with the given name ("json" or "msgpack").
func NewSerializer(name string) (IRecordSerializer, error) {
	switch name {
	case "json", "":
		return NewJSONSerializer(), nil
	case "msgpack":
		return NewMsgpackSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %q (expected json or msgpack)", name)
	}
}

// --------------------------------------------------------------------------
// JSON
// --------------------------------------------------------------------------

// NewJSONSerializer creates a new serializer using json encoding
func NewJSONSerializer() IRecordSerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the IRecordSerializer interface using json encoding
type jsonSerializerImpl struct{}

func (j *jsonSerializerImpl) Name() string { return "json" }

func (j *jsonSerializerImpl) Serialize(rec *Record) ([]byte, error) {
	return json.Marshal(rec)
}

func (j *jsonSerializerImpl) Deserialize(b []byte, rec *Record) error {
	return json.Unmarshal(b, rec)
}

func (j *jsonSerializerImpl) DeserializeMeta(b []byte, meta *RecordMeta) error {
	return json.Unmarshal(b, meta)
}

// --------------------------------------------------------------------------
// MessagePack
// --------------------------------------------------------------------------

// NewMsgpackSerializer creates a new serializer using MessagePack encoding
func NewMsgpackSerializer() IRecordSerializer {
	return &msgpackSerializerImpl{}
}

// msgpackSerializerImpl implements the IRecordSerializer interface using msgpack encoding
type msgpackSerializerImpl struct{}

func (m *msgpackSerializerImpl) Name() string { return "msgpack" }

func (m *msgpackSerializerImpl) Serialize(rec *Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	err := enc.Encode(rec)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record using MsgPack: %w", err)
	}
	return buf.Bytes(), nil
}

func (m *msgpackSerializerImpl) Deserialize(b []byte, rec *Record) error {
	return m.decode(b, rec)
}

func (m *msgpackSerializerImpl) DeserializeMeta(b []byte, meta *RecordMeta) error {
	return m.decode(b, meta)
}

// decode decodes b into v. Fields of the record that v has no field for are skipped.
func (m *msgpackSerializerImpl) decode(b []byte, v any) error {
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(b))
	err := dec.Decode(v)
	msgpack.PutDecoder(dec)
	if err != nil {
		return fmt.Errorf("failed to decode MsgPack record: %w", err)
	}
	return nil
}
