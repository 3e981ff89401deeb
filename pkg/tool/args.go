package tool

import (
	"encoding/json"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Args holds validated call arguments keyed by property name.
type Args map[string]any

// String returns the string value of key, or "" when absent or not a string.
func (a Args) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// Float returns the numeric value of key as float64.
func (a Args) Float(key string) (float64, bool) {
	return toFloat(a[key])
}

// Bind decodes validated arguments into T using the json field tags of T.
func Bind[T any](args Args) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &out,
	})
	if err != nil {
		return out, fmt.Errorf("failed to create argument decoder: %w", err)
	}
	if err := decoder.Decode(map[string]any(args)); err != nil {
		return out, fmt.Errorf("failed to bind arguments: %w", err)
	}
	return out, nil
}

// asObject returns raw as a string-keyed map when it is a JSON object.
func asObject(raw any) (map[string]any, bool) {
	switch v := raw.(type) {
	case Args:
		return v, v != nil
	case map[string]any:
		return v, v != nil
	case json.RawMessage:
		var obj map[string]any
		if err := json.Unmarshal(v, &obj); err != nil || obj == nil {
			return nil, false
		}
		return obj, true
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
