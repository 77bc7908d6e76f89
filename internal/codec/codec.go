// Package codec encodes tuple content for byte-oriented backends using CBOR.
package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeValue encodes a single column value.
func EncodeValue(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: encode value: %w", err)
	}
	return b, nil
}

// DecodeValue decodes a single column value. Unsigned integers decode as
// uint64, negative ones as int64.
func DecodeValue(b []byte) (any, error) {
	var v any
	if err := decMode.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("codec: decode value: %w", err)
	}
	return v, nil
}

// EncodeRecord encodes a whole record.
func EncodeRecord(m map[string]any) ([]byte, error) {
	b, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("codec: encode record: %w", err)
	}
	return b, nil
}

// DecodeRecord decodes a record written by EncodeRecord.
func DecodeRecord(b []byte) (map[string]any, error) {
	var m map[string]any
	if err := decMode.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("codec: decode record: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// EncodeRows encodes an ordered list of records.
func EncodeRows(rows []map[string]any) ([]byte, error) {
	b, err := encMode.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("codec: encode rows: %w", err)
	}
	return b, nil
}

// DecodeRows decodes a list written by EncodeRows.
func DecodeRows(b []byte) ([]map[string]any, error) {
	var rows []map[string]any
	if err := decMode.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("codec: decode rows: %w", err)
	}
	return rows, nil
}

// Marshal encodes any CBOR-compatible value, such as a struct with cbor tags.
func Marshal(v any) ([]byte, error) {
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec: marshal: %w", err)
	}
	return b, nil
}

// Unmarshal decodes b into v.
func Unmarshal(b []byte, v any) error {
	if err := decMode.Unmarshal(b, v); err != nil {
		return fmt.Errorf("codec: unmarshal: %w", err)
	}
	return nil
}
