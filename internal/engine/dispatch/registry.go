// Package dispatch maps dotted operation names to kernel operations.
package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
)

// Registry is the flattened operation table of a kernel surface.
type Registry struct {
	root ports.Namespace
	ops  map[string]ports.Operation
}

// NewRegistry enumerates root once and records every operation under its dotted path.
func NewRegistry(root ports.Namespace) *Registry {
	r := &Registry{root: root, ops: make(map[string]ports.Operation)}
	r.collect("", root)
	return r
}

func (r *Registry) collect(prefix string, ns map[string]any) {
	for name, v := range ns {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		if op, ok := asOperation(v); ok {
			r.ops[path] = op
			continue
		}
		if child, ok := asNamespace(v); ok {
			r.collect(path, child)
		}
	}
}

// Len returns the number of registered operations.
func (r *Registry) Len() int {
	return len(r.ops)
}

// Names returns every registered path in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Lookup returns the operation registered under path.
func (r *Registry) Lookup(path string) (ports.Operation, error) {
	if op, ok := r.ops[path]; ok {
		return op, nil
	}
	return nil, r.explain(path)
}

// Invoke runs the operation at path with inputs as its sole argument. Panics
// raised by the kernel are returned as ErrKernelPanic.
func (r *Registry) Invoke(ctx context.Context, path string, inputs map[string]any) (result any, err error) {
	op, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = zerr.With(
				zerr.With(zerr.Wrap(domain.ErrKernelPanic, fmt.Sprintf("%v", rec)), "path", path),
				"stack", string(debug.Stack()),
			)
		}
	}()
	return op(ctx, inputs)
}

// explain walks the surface to say why path did not resolve.
func (r *Registry) explain(path string) error {
	segments := strings.Split(path, ".")
	var current any = map[string]any(r.root)

	for i, segment := range segments {
		ns, ok := asNamespace(current)
		if !ok {
			return pathError(path, segments[i-1])
		}
		next, found := ns[segment]
		if !found {
			if i == len(segments)-1 {
				return notAFunction(path)
			}
			return pathError(path, segment)
		}
		current = next
	}
	return notAFunction(path)
}

func pathError(path, segment string) error {
	return zerr.With(
		zerr.With(zerr.Wrap(domain.ErrPathNotResolved, fmt.Sprintf("%q at segment %q", path, segment)), "path", path),
		"segment", segment,
	)
}

func notAFunction(path string) error {
	return zerr.With(zerr.Wrap(domain.ErrNotAFunction, fmt.Sprintf("%q", path)), "path", path)
}

func asOperation(v any) (ports.Operation, bool) {
	switch f := v.(type) {
	case ports.Operation:
		return f, f != nil
	case func(context.Context, map[string]any) (any, error):
		return f, f != nil
	default:
		return nil, false
	}
}

func asNamespace(v any) (map[string]any, bool) {
	switch ns := v.(type) {
	case ports.Namespace:
		return ns, ns != nil
	case map[string]any:
		return ns, ns != nil
	default:
		return nil, false
	}
}
