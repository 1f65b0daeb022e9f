package stream

import (
	"encoding/base64"
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrPointerType = errors.New("pointer type is not allowed")
)

// EncodeEntry 將事件序列化成Redis Stream的entry欄位
// 先用msgpack壓縮，再以base64放進單一payload欄位，避免欄位名稱與內容互相干擾
func EncodeEntry[T any](data T) (map[string]any, error) {
	if reflect.TypeOf(data).Kind() == reflect.Ptr {
		return nil, ErrPointerType
	}

	raw, err := msgpack.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		"payload": base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// DecodeEntry 將Redis Stream的entry欄位還原成事件
func DecodeEntry[T any](entry map[string]any) (T, error) {
	var result T

	if reflect.TypeOf(result).Kind() == reflect.Ptr {
		return result, ErrPointerType
	}

	if len(entry) == 0 {
		return result, nil
	}

	payload, ok := entry["payload"].(string)
	if !ok {
		return result, fmt.Errorf("payload field not found or invalid type")
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return result, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("msgpack unmarshal error: %w", err)
	}

	return result, nil
}
