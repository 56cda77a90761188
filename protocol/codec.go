package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Encode serializes a message to its wire form.
func Encode(msg any) ([]byte, error) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode message: %w", err)
	}
	return data, nil
}

// DecodeType reads only the type discriminator of an incoming frame.
func DecodeType(data []byte) (MessageType, error) {
	var h Header
	if err := sonic.Unmarshal(data, &h); err != nil {
		return "", fmt.Errorf("protocol: decode frame: %w", err)
	}
	if h.Type == "" {
		return "", fmt.Errorf("protocol: frame missing type field")
	}
	return h.Type, nil
}

// DecodeAs decodes a full frame into a typed message.
func DecodeAs[T any](data []byte) (T, error) {
	var v T
	if err := sonic.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("protocol: decode frame: %w", err)
	}
	return v, nil
}
