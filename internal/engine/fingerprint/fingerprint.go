// Package fingerprint computes the cache identity of an operation request.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf16"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	functionNameKey = "functionName"
	indexKey        = "index"
	hashKey         = "hash"
	ptrKey          = "ptr"
)

var (
	ptrField = regexp.MustCompile(`"ptr":-?\d+(?:\.\d+)?(?:[eE][+-]?\d+)?,?`)
	ptrLeak  = regexp.MustCompile(`"ptr":`)
)

// Engine derives fingerprints from requests.
type Engine struct {
	algorithm domain.FingerprintAlgorithm
	logger    ports.Logger
}

// NewEngine creates an engine using the given algorithm. An empty algorithm
// selects the rolling hash.
func NewEngine(algorithm domain.FingerprintAlgorithm, logger ports.Logger) *Engine {
	if algorithm == "" {
		algorithm = domain.FingerprintRolling
	}
	return &Engine{algorithm: algorithm, logger: logger}
}

// Algorithm returns the folding algorithm in use.
func (e *Engine) Algorithm() domain.FingerprintAlgorithm {
	return e.algorithm
}

// Fingerprint returns the 32-bit identity of action.
func (e *Engine) Fingerprint(action domain.Action) (domain.Fingerprint, error) {
	canonical, err := e.Canonical(action)
	if err != nil {
		return 0, err
	}
	return e.fold(canonical), nil
}

// Derived returns the identity of a member of the result of action: an array
// element (index is an int) or the compound of a composite (index is "compound").
func (e *Engine) Derived(action domain.Action, index any) (domain.Fingerprint, error) {
	inputs := make(map[string]any, len(action.Inputs)+1)
	for k, v := range action.Inputs {
		inputs[k] = v
	}
	inputs[indexKey] = index
	return e.Fingerprint(domain.Action{FunctionName: action.FunctionName, Inputs: inputs})
}

// Canonical returns the string the fingerprint is folded from, with every
// ptr field removed.
func (e *Engine) Canonical(action domain.Action) (string, error) {
	doc := make(map[string]any, len(action.Inputs)+1)
	for k, v := range action.Inputs {
		doc[k] = canonicalValue(v)
	}
	doc[functionNameKey] = action.FunctionName

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return "", zerr.With(zerr.Wrap(domain.ErrCanonicalizeFailed, err.Error()), "function", action.FunctionName)
	}

	canonical := ptrField.ReplaceAllString(strings.TrimSuffix(buf.String(), "\n"), "")
	if ptrLeak.MatchString(canonical) && e.logger != nil {
		e.logger.Error(zerr.With(zerr.Wrap(domain.ErrPointerFieldLeak, action.FunctionName), "canonical", canonical))
	}
	return canonical, nil
}

func (e *Engine) fold(s string) domain.Fingerprint {
	if e.algorithm == domain.FingerprintXXHash {
		if s == "" {
			return 0
		}
		sum := xxhash.Sum64String(s)
		//nolint:gosec // G115: truncation to 32 bits is the point
		return domain.Fingerprint(int32(uint32(sum ^ (sum >> 32))))
	}
	return domain.Fingerprint(RollingHash(s))
}

// RollingHash folds s with h = h*31 + c over its UTF-16 code units, wrapping at 32 bits.
func RollingHash(s string) int32 {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}
	return h
}

// canonicalValue replaces live objects with their identifying fields so the
// encoder sees plain data.
func canonicalValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case domain.Object:
		return map[string]any{hashKey: t.Key(), ptrKey: t.Pointer()}
	case *domain.Composite:
		return canonicalComposite(t)
	case domain.Composite:
		return canonicalComposite(&t)
	case []byte, string, bool, float64, float32, int, int32, int64, uint32, uint64, json.Number:
		return t
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = canonicalValue(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = canonicalValue(el)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		out := make([]any, rv.Len())
		for i := range rv.Len() {
			out[i] = canonicalValue(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = canonicalValue(iter.Value().Interface())
		}
		return out
	default:
		return v
	}
}

func canonicalComposite(c *domain.Composite) map[string]any {
	shapes := make([]any, len(c.Shapes))
	for i, child := range c.Shapes {
		shapes[i] = map[string]any{"id": child.ID, "shape": canonicalValue(child.Shape)}
	}
	out := make(map[string]any, len(c.Extra)+3)
	for k, v := range c.Extra {
		out[k] = canonicalValue(v)
	}
	out["compound"] = canonicalValue(c.Compound)
	out["data"] = canonicalValue(c.Data)
	out["shapes"] = shapes
	return out
}
