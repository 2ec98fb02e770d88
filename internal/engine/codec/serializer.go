package codec

import (
	"fmt"
	"reflect"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/zerr"
)

// Serializer replaces live kernel objects with reference tokens.
type Serializer struct{}

// NewSerializer creates a serializer.
func NewSerializer() *Serializer {
	return &Serializer{}
}

// Serialize walks v and returns a copy in which every kernel object is
// replaced by a token carrying its stored key.
//
// An array whose first element is a shape is treated as an array of shapes;
// any later element that is not a shape fails with ErrMixedShapeArray.
func (s *Serializer) Serialize(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint32, uint64:
		return v, nil
	case []byte, []float32, []float64, []int32, []uint32, []int:
		return v, nil
	case domain.Token, *domain.Token:
		return v, nil
	case *domain.Composite:
		if t == nil {
			return nil, nil
		}
		return s.composite(t)
	case domain.Composite:
		return s.composite(&t)
	case []domain.Object:
		items := make([]any, len(t))
		for i, obj := range t {
			items[i] = obj
		}
		return s.Serialize(items)
	case []any:
		if len(t) > 0 && domain.KindOf(t[0]) == domain.KindShape {
			return s.shapes(len(t), func(i int) any { return t[i] })
		}
		out := make([]any, len(t))
		for i, el := range t {
			serialized, err := s.Serialize(el)
			if err != nil {
				return nil, err
			}
			out[i] = serialized
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			serialized, err := s.Serialize(el)
			if err != nil {
				return nil, zerr.With(err, "key", k)
			}
			out[k] = serialized
		}
		return out, nil
	}

	if kind := domain.KindOf(v); kind != domain.KindPlain {
		return token(v, kind), nil
	}
	return s.reflectValue(v)
}

// reflectValue handles typed slices and string-keyed maps the type switch does not name.
func (s *Serializer) reflectValue(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return v, nil
		}
		n := rv.Len()
		if n > 0 && domain.KindOf(rv.Index(0).Interface()) == domain.KindShape {
			return s.shapes(n, func(i int) any { return rv.Index(i).Interface() })
		}
		if !containsObjects(rv) {
			return v, nil
		}
		out := make([]any, n)
		for i := range n {
			serialized, err := s.Serialize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = serialized
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			serialized, err := s.Serialize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out[iter.Key().String()] = serialized
		}
		return out, nil
	default:
		return v, nil
	}
}

func (s *Serializer) shapes(n int, at func(int) any) ([]any, error) {
	out := make([]any, n)
	for i := range n {
		el := at(i)
		if domain.KindOf(el) != domain.KindShape {
			return nil, zerr.With(zerr.Wrap(domain.ErrMixedShapeArray, fmt.Sprintf("element %d is %T", i, el)), "index", i)
		}
		out[i] = token(el, domain.KindShape)
	}
	return out, nil
}

func (s *Serializer) composite(c *domain.Composite) (map[string]any, error) {
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = v
	}
	if c.Compound != nil {
		out["compound"] = token(c.Compound, domain.KindShape)
	} else {
		out["compound"] = nil
	}
	out["data"] = c.Data

	shapes := make([]any, len(c.Shapes))
	for i, child := range c.Shapes {
		var shape any
		if child.Shape != nil {
			shape = token(child.Shape, domain.KindShape)
		}
		shapes[i] = map[string]any{"id": child.ID, "shape": shape}
	}
	out["shapes"] = shapes
	return out, nil
}

func token(v any, kind domain.Kind) domain.Token {
	var key domain.Fingerprint
	if k, ok := v.(domain.Keyed); ok {
		key = k.Key()
	}
	return domain.NewToken(kind, key)
}

// containsObjects reports whether any element of a typed slice can hold a kernel object.
func containsObjects(rv reflect.Value) bool {
	switch rv.Type().Elem().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}
