// Package refkernel provides a small pure-Go geometry kernel. It exposes the
// same hierarchical operation surface a native kernel binding would, which
// lets the worker run end to end without a native toolchain.
package refkernel

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
)

const pointerBase = 0x10000

// Kernel is the reference kernel facade.
type Kernel struct {
	nextPtr atomic.Uintptr
	live    atomic.Int64

	mu   sync.Mutex
	deps map[string]any
}

// New creates an empty reference kernel.
func New() *Kernel {
	k := &Kernel{deps: make(map[string]any)}
	k.nextPtr.Store(pointerBase)
	return k
}

// Surface enumerates every operation of the kernel.
func (k *Kernel) Surface() ports.Namespace {
	return ports.Namespace{
		"shapes": ports.Namespace{
			"wire": ports.Namespace{
				"createCircleWire": ports.Operation(k.createCircleWire),
				"getWireLength":    ports.Operation(k.getWireLength),
			},
			"solid": ports.Namespace{
				"createBox":      ports.Operation(k.createBox),
				"getSolidVolume": ports.Operation(k.getSolidVolume),
			},
			"shape": ports.Namespace{
				"getShapeType": ports.Operation(k.getShapeType),
			},
			"face": ports.Namespace{
				"getFaces": ports.Operation(k.getFaces),
			},
			"compound": ports.Namespace{
				"makeCompound": ports.Operation(k.makeCompound),
			},
		},
		"transforms": ports.Namespace{
			"translate": ports.Operation(k.translate),
			"mirror":    ports.Operation(k.mirror),
		},
		"operations": ports.Namespace{
			"loft": ports.Operation(k.loft),
		},
		"assembly": ports.Namespace{
			"createAssembly": ports.Operation(k.createAssembly),
		},
		"io": ports.Namespace{
			"createDocument": ports.Operation(k.createDocument),
		},
	}
}

// Release frees an object created by this kernel.
func (k *Kernel) Release(obj domain.Object) error {
	var h *handle
	switch o := obj.(type) {
	case *Shape:
		h = &o.handle
	case *Document:
		h = &o.handle
	default:
		return zerr.With(zerr.Wrap(ErrForeignObject, typeName(obj)), "type", typeName(obj))
	}
	if !h.released.CompareAndSwap(false, true) {
		return zerr.With(zerr.Wrap(ErrDoubleRelease, "hash "+h.key.String()), "hash", h.key)
	}
	k.live.Add(-1)
	return nil
}

// InjectDependencies merges deps into the plugin-dependency registry.
func (k *Kernel) InjectDependencies(deps map[string]any) {
	k.mu.Lock()
	defer k.mu.Unlock()
	maps.Copy(k.deps, deps)
}

// Dependencies returns a copy of the plugin-dependency registry.
func (k *Kernel) Dependencies() map[string]any {
	k.mu.Lock()
	defer k.mu.Unlock()
	return maps.Clone(k.deps)
}

// Live returns the number of objects created and not yet released.
func (k *Kernel) Live() int {
	return int(k.live.Load())
}

// Mesh tessellates shape.
func (k *Kernel) Mesh(_ context.Context, obj domain.Object, opts domain.MeshOptions) (any, error) {
	s, err := k.own(obj)
	if err != nil {
		return nil, err
	}
	return tessellate(s, opts), nil
}

// ExportSTEP writes shape as an ISO-10303-21 exchange file.
func (k *Kernel) ExportSTEP(_ context.Context, obj domain.Object, opts domain.StepOptions) ([]byte, error) {
	s, err := k.own(obj)
	if err != nil {
		return nil, err
	}
	return writeSTEP(s, opts), nil
}

func (k *Kernel) own(obj domain.Object) (*Shape, error) {
	s, ok := obj.(*Shape)
	if !ok {
		return nil, zerr.With(zerr.Wrap(ErrForeignObject, typeName(obj)), "type", typeName(obj))
	}
	if err := s.Probe(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "hash "+s.key.String()), "hash", s.key)
	}
	return s, nil
}

func (k *Kernel) alloc(h *handle) {
	h.ptr = k.nextPtr.Add(16)
	k.live.Add(1)
}

func (k *Kernel) shape(s *Shape) *Shape {
	k.alloc(&s.handle)
	return s
}
