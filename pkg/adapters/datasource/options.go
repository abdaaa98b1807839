package datasource

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Options is the backend section of the configuration as handed to an
// adapter's FromMap. Values may arrive as YAML scalars, JSON numbers or
// environment strings; the accessors convert them.
type Options map[string]any

// String returns the first non-empty value among keys.
func (o Options) String(keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(cast.ToString(o[k])); s != "" {
			return s
		}
	}
	return ""
}

// Required is String that fails with "<first key> is required" when every key is empty.
func (o Options) Required(keys ...string) (string, error) {
	if s := o.String(keys...); s != "" {
		return s, nil
	}
	return "", fmt.Errorf("%s is required", keys[0])
}

// Secret returns the value of key untrimmed. Passwords may carry spaces.
func (o Options) Secret(key string) string {
	s, _ := o[key].(string)
	return s
}

// Int returns key as an int, or def when the key is absent.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// Bool returns key as a bool, or def when the key is absent.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil || v == "" {
		return def, nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return b, nil
}

// Has reports whether key is set to a non-empty value.
func (o Options) Has(key string) bool {
	return o.String(key) != ""
}
