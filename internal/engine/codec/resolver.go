// Package codec converts values between their wire form, where live kernel
// objects appear as reference tokens, and their live form.
package codec

import (
	"fmt"
	"io"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/zerr"
)

// Lookuper finds live values by fingerprint.
type Lookuper interface {
	Lookup(key domain.Fingerprint) (any, bool)
}

// Resolver replaces reference tokens with the live objects they name.
type Resolver struct {
	store Lookuper
}

// NewResolver creates a resolver reading from store.
func NewResolver(store Lookuper) *Resolver {
	return &Resolver{store: store}
}

// Resolve walks v and returns a copy in which every token is replaced by its
// live object. Containers are copied, never mutated in place.
func (r *Resolver) Resolve(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint32, uint64:
		return v, nil
	case []byte, []float32, []float64, []int32, []uint32, []int:
		return v, nil
	case domain.Token, *domain.Token:
		tok, ok, err := domain.TokenFromValue(t)
		if err != nil {
			return nil, err
		}
		if !ok {
			return v, nil
		}
		return r.lookup(tok)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			resolved, err := r.Resolve(el)
			if err != nil {
				return nil, zerr.With(err, "index", i)
			}
			out[i] = resolved
		}
		return out, nil
	case map[string]any:
		tok, ok, err := domain.TokenFromValue(t)
		if err != nil {
			return nil, err
		}
		if ok {
			return r.lookup(tok)
		}
		out := make(map[string]any, len(t))
		for k, el := range t {
			resolved, err := r.Resolve(el)
			if err != nil {
				return nil, zerr.With(err, "key", k)
			}
			out[k] = resolved
		}
		return out, nil
	case io.Reader:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnconvertedBlob, fmt.Sprintf("%T", v)), "type", fmt.Sprintf("%T", v))
	default:
		return v, nil
	}
}

// ResolveInputs resolves every value of an argument bag.
func (r *Resolver) ResolveInputs(inputs map[string]any) (map[string]any, error) {
	if inputs == nil {
		return map[string]any{}, nil
	}
	out, err := r.Resolve(inputs)
	if err != nil {
		return nil, err
	}
	if m, ok := out.(map[string]any); ok {
		return m, nil
	}
	// The bag itself was a token.
	return nil, zerr.Wrap(domain.ErrInvalidReference, "inputs must be an object")
}

// Object resolves a single reference that must name a kernel object.
func (r *Resolver) Object(v any) (domain.Object, error) {
	tok, ok, err := domain.TokenFromValue(v)
	if err != nil {
		return nil, err
	}
	if !ok {
		if obj, isObj := v.(domain.Object); isObj {
			return obj, nil
		}
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidReference, fmt.Sprintf("%v", v)), "value", v)
	}
	live, found := r.store.Lookup(tok.Hash)
	if !found {
		return nil, shapeNotFound(tok)
	}
	obj, isObj := live.(domain.Object)
	if !isObj {
		return nil, shapeNotFound(tok)
	}
	return obj, nil
}

func (r *Resolver) lookup(tok domain.Token) (any, error) {
	live, ok := r.store.Lookup(tok.Hash)
	if !ok {
		kind := tok.Kind().String()
		return nil, zerr.With(
			zerr.With(zerr.Wrap(domain.ErrReferenceNotFound, fmt.Sprintf("%s with hash %s", kind, tok.Hash)), "kind", kind),
			"hash", tok.Hash.String(),
		)
	}
	return live, nil
}

func shapeNotFound(tok domain.Token) error {
	return zerr.With(zerr.Wrap(domain.ErrShapeNotInCache, fmt.Sprintf("%s with hash %s", tok.Kind(), tok.Hash)), "hash", tok.Hash.String())
}
