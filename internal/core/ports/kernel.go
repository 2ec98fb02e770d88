// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

// Operation is one invocable entry of the kernel surface. It receives the
// resolved argument bag and returns the raw kernel result.
type Operation func(ctx context.Context, inputs map[string]any) (any, error)

// Namespace is one level of the hierarchical kernel surface, for example the
// "wire" namespace inside "shapes". Values are Operation or nested Namespace.
type Namespace map[string]any

// Kernel is the geometry kernel facade the worker drives.
//
//go:generate mockgen -source=kernel.go -destination=mocks/mock_kernel.go -package=mocks
type Kernel interface {
	// Surface enumerates every operation the kernel exposes.
	Surface() Namespace

	// Mesh tessellates a shape and returns a plain numeric mesh payload.
	Mesh(ctx context.Context, shape domain.Object, opts domain.MeshOptions) (any, error)

	// ExportSTEP writes a shape in the STEP interchange format.
	ExportSTEP(ctx context.Context, shape domain.Object, opts domain.StepOptions) ([]byte, error)

	// Release frees the native resources of an object. Failures are advisory.
	Release(obj domain.Object) error

	// InjectDependencies merges entries into the kernel's plugin-dependency registry.
	InjectDependencies(deps map[string]any)
}
