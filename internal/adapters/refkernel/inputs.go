package refkernel

import (
	"fmt"

	"go.trai.ch/zerr"
)

func missing(key string) error {
	return zerr.With(zerr.Wrap(ErrMissingInput, key), "input", key)
}

func invalid(key string, v any) error {
	return zerr.With(zerr.Wrap(ErrInvalidInput, fmt.Sprintf("%s: %T", key, v)), "input", key)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// floatInput reads a number, falling back to def when the key is absent.
func floatInput(inputs map[string]any, key string, def float64) (float64, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return def, nil
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, invalid(key, v)
	}
	return f, nil
}

func positiveInput(inputs map[string]any, key string) (float64, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return 0, missing(key)
	}
	f, ok := toFloat(v)
	if !ok || f <= 0 {
		return 0, invalid(key, v)
	}
	return f, nil
}

// vecInput accepts [x, y, z] arrays and {x, y, z} objects.
func vecInput(inputs map[string]any, key string, def vec) (vec, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return def, nil
	}
	var out vec
	switch p := v.(type) {
	case []any:
		if len(p) != 3 {
			return vec{}, invalid(key, v)
		}
		for i, c := range p {
			f, ok := toFloat(c)
			if !ok {
				return vec{}, invalid(key, v)
			}
			out[i] = f
		}
	case []float64:
		if len(p) != 3 {
			return vec{}, invalid(key, v)
		}
		copy(out[:], p)
	case map[string]any:
		for i, axis := range []string{"x", "y", "z"} {
			f, ok := toFloat(p[axis])
			if !ok {
				return vec{}, invalid(key, v)
			}
			out[i] = f
		}
	default:
		return vec{}, invalid(key, v)
	}
	return out, nil
}

func shapeInput(inputs map[string]any, key string) (*Shape, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return nil, missing(key)
	}
	s, ok := v.(*Shape)
	if !ok {
		return nil, invalid(key, v)
	}
	return s, nil
}

func shapesInput(inputs map[string]any, key string) ([]*Shape, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return nil, missing(key)
	}
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return nil, invalid(key, v)
	}
	out := make([]*Shape, len(list))
	for i, item := range list {
		s, ok := item.(*Shape)
		if !ok {
			return nil, zerr.With(invalid(key, item), "index", i)
		}
		out[i] = s
	}
	return out, nil
}

func stringInput(inputs map[string]any, key, def string) (string, error) {
	v, ok := inputs[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(key, v)
	}
	return s, nil
}
