package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Payload is a decoded request body. Unknown fields are kept so they reach
// the backend unchanged.
type Payload map[string]any

// DecodePayload decodes a JSON object body.
func DecodePayload(data []byte) (Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("request body is empty")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}
	if p == nil {
		return nil, errors.New("request body must be a JSON object")
	}
	return p, nil
}

// Present reports whether key holds a usable value: not absent, not null,
// not a blank string.
func (p Payload) Present(key string) bool {
	v, ok := p[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns key as a string. Numbers are formatted; other types yield "".
func (p Payload) String(key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%v", v)
	default:
		return ""
	}
}

// Bool returns key as a bool. Absent or non-boolean values are false apart
// from the strings "true" and "1".
func (p Payload) Bool(key string) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return false
	}
}

// Pick returns a new payload holding only the listed keys that are set.
func (p Payload) Pick(keys ...string) Payload {
	out := make(Payload, len(keys))
	for _, k := range keys {
		if v, ok := p[k]; ok {
			out[k] = v
		}
	}
	return out
}

// DecodeList decodes a backend list response. Bare arrays and objects
// wrapping the array under "data" or "items" are accepted.
func DecodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, nil
	}
	if data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var wrapped struct {
		Data  *[]T `json:"data"`
		Items *[]T `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case wrapped.Data != nil:
		return *wrapped.Data, nil
	case wrapped.Items != nil:
		return *wrapped.Items, nil
	default:
		return nil, errors.New("list response has no data or items array")
	}
}
