package loader

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

func encodePayload(v interface{}) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode cache payload: %w", err)
	}
	return data, nil
}

func decodePayload(data []byte, v interface{}) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode cache payload: %w", err)
	}
	return nil
}
