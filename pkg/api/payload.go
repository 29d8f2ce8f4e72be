// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package api

import (
	"fmt"
	"strconv"
)

// Payload is a decoded JSON action request.
type Payload map[string]any

// missingKeyError reports a required payload key that is absent.
type missingKeyError struct {
	key string
}

func (e *missingKeyError) Error() string {
	return "missing key: " + e.key
}

// invalidValueError reports a payload value of the wrong type.
type invalidValueError struct {
	key string
}

func (e *invalidValueError) Error() string {
	return "invalid value for key: " + e.key
}

// Action returns the requested action name.
func (p Payload) Action() (string, error) {
	return p.String("action")
}

// String returns a required string value.
func (p Payload) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", &missingKeyError{key: key}
	}
	s, ok := v.(string)
	if !ok {
		return "", &invalidValueError{key: key}
	}
	return s, nil
}

// OptionalString returns an empty string when the key is absent or null.
func (p Payload) OptionalString(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &invalidValueError{key: key}
	}
	return s, nil
}

// Int returns a required integer value.
func (p Payload) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, &missingKeyError{key: key}
	}
	return toInt(key, v)
}

// OptionalInt returns nil when the key is absent or null.
func (p Payload) OptionalInt(key string) (*int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	n, err := toInt(key, v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// OptionalBool returns nil when the key is absent or null.
func (p Payload) OptionalBool(key string) (*bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	b, ok := v.(bool)
	if !ok {
		return nil, &invalidValueError{key: key}
	}
	return &b, nil
}

// Bool returns a required boolean value.
func (p Payload) Bool(key string) (bool, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return false, &missingKeyError{key: key}
	}
	b, ok := v.(bool)
	if !ok {
		return false, &invalidValueError{key: key}
	}
	return b, nil
}

// ID returns an optional user identity. Numeric identities are accepted.
func (p Payload) ID(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", nil
	}
	return toID(key, v)
}

// IDList returns a required list of user identities.
func (p Payload) IDList(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, &missingKeyError{key: key}
	}
	items, ok := v.([]any)
	if !ok {
		return nil, &invalidValueError{key: key}
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := toID(key, item)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// StringMap returns an optional object of string values.
func (p Payload) StringMap(key string) (map[string]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &invalidValueError{key: key}
	}
	m := make(map[string]string, len(obj))
	for k, item := range obj {
		m[k] = fmt.Sprint(item)
	}
	return m, nil
}

func toInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, &invalidValueError{key: key}
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, &invalidValueError{key: key}
		}
		return i, nil
	default:
		return 0, &invalidValueError{key: key}
	}
}

func toID(key string, v any) (string, error) {
	switch id := v.(type) {
	case string:
		return id, nil
	case float64:
		if id != float64(int64(id)) {
			return "", &invalidValueError{key: key}
		}
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", &invalidValueError{key: key}
	}
}
