package list

import (
	"encoding/json"
	"fmt"
)

// Codec turns a list into the bytes kept in the store and back.
type Codec[T any] interface {
	Encode(list []T) ([]byte, error)
	Decode(data []byte) ([]T, error)
}

// JSONCodec encodes lists as JSON arrays.
type JSONCodec[T any] struct{}

// Encode implements Codec. A nil list is stored as an empty array.
func (JSONCodec[T]) Encode(list []T) ([]byte, error) {
	if list == nil {
		list = []T{}
	}

	data, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("json encode list: %w", err)
	}

	return data, nil
}

// Decode implements Codec.
func (JSONCodec[T]) Decode(data []byte) ([]T, error) {
	var list []T

	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("json decode list: %w", err)
	}

	return list, nil
}
