package store

import (
	"fmt"

	"github.com/roach88/callchain/internal/ir"
)

// marshalValue converts an IRValue to canonical JSON TEXT for storage.
func marshalValue(v ir.IRValue) (string, error) {
	data, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal value: %w", err)
	}
	return string(data), nil
}

// unmarshalValue parses stored canonical JSON TEXT.
func unmarshalValue(data string) (ir.IRValue, error) {
	if data == "" {
		return ir.IRNull{}, nil
	}
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return v, nil
}

// unmarshalArray parses a stored argument list; "null" yields nil.
func unmarshalArray(data string) (ir.IRArray, error) {
	v, err := unmarshalValue(data)
	if err != nil {
		return nil, err
	}
	switch arr := v.(type) {
	case ir.IRArray:
		return arr, nil
	case ir.IRNull:
		return nil, nil
	}
	return nil, fmt.Errorf("unmarshal args: expected array, got %T", v)
}
