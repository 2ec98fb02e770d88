package worker

import (
	"context"
	"fmt"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
)

// Input keys of the reserved operations.
const (
	inputShape      = "shape"
	inputShapes     = "shapes"
	inputPrecision  = "precision"
	inputAdjustYtoZ = "adjustYtoZ"
	inputFileName   = "fileName"
)

func (w *Worker) reservedHandlers() map[string]reservedHandler {
	return map[string]reservedHandler{
		domain.OpShapeToMesh:    w.shapeToMesh,
		domain.OpShapesToMeshes: w.shapesToMeshes,
		domain.OpDeleteShape:    w.deleteShape,
		domain.OpDeleteShapes:   w.deleteShapes,
		domain.OpStartedTheRun:  w.startedTheRun,
		domain.OpCleanAllCache:  w.cleanAllCache,
		domain.OpAddDependency:  w.addDependency,
		domain.OpSaveShapeSTEP:  w.saveShapeSTEP,
	}
}

func (w *Worker) attachedKernel() (ports.Kernel, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.kernel == nil {
		return nil, domain.ErrKernelNotAttached
	}
	return w.kernel, nil
}

func (w *Worker) shapeToMesh(ctx context.Context, inputs map[string]any) (any, error) {
	k, err := w.attachedKernel()
	if err != nil {
		return nil, err
	}
	shape, err := w.resolver.Object(inputs[inputShape])
	if err != nil {
		return nil, err
	}
	return k.Mesh(ctx, shape, meshOptions(inputs))
}

func (w *Worker) shapesToMeshes(ctx context.Context, inputs map[string]any) (any, error) {
	k, err := w.attachedKernel()
	if err != nil {
		return nil, err
	}
	refs, _ := inputs[inputShapes].([]any)
	if len(refs) == 0 {
		return nil, domain.ErrNoShapesProvided
	}

	opts := meshOptions(inputs)
	meshes := make([]any, len(refs))
	for i, ref := range refs {
		shape, err := w.resolver.Object(ref)
		if err != nil {
			return nil, zerr.With(err, "index", i)
		}
		mesh, err := k.Mesh(ctx, shape, opts)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, fmt.Sprintf("mesh %d", i)), "index", i)
		}
		meshes[i] = mesh
	}
	return meshes, nil
}

func (w *Worker) deleteShape(_ context.Context, inputs map[string]any) (any, error) {
	hash, err := referenceHash(inputs[inputShape])
	if err != nil {
		return nil, err
	}
	w.store.Evict(hash)
	return map[string]any{}, nil
}

func (w *Worker) deleteShapes(_ context.Context, inputs map[string]any) (any, error) {
	refs, _ := inputs[inputShapes].([]any)
	hashes := make([]domain.Fingerprint, 0, len(refs))
	for i, ref := range refs {
		hash, err := referenceHash(ref)
		if err != nil {
			return nil, zerr.With(err, "index", i)
		}
		hashes = append(hashes, hash)
	}
	for _, hash := range hashes {
		w.store.Evict(hash)
	}
	return map[string]any{}, nil
}

func (w *Worker) startedTheRun(_ context.Context, _ map[string]any) (any, error) {
	if w.store.RunStarted(w.EvictionThreshold()) {
		w.logger.Info("store cleared at run start")
	}
	return map[string]any{}, nil
}

func (w *Worker) cleanAllCache(_ context.Context, _ map[string]any) (any, error) {
	w.store.EvictAll()
	return map[string]any{}, nil
}

func (w *Worker) addDependency(_ context.Context, inputs map[string]any) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.kernel != nil {
		w.kernel.InjectDependencies(inputs)
		return nil, nil
	}
	for k, v := range inputs {
		w.pending[k] = v
	}
	w.logger.Debug(fmt.Sprintf("buffered %d dependencies until the kernel is attached", len(inputs)))
	return nil, nil
}

func (w *Worker) saveShapeSTEP(ctx context.Context, inputs map[string]any) (any, error) {
	k, err := w.attachedKernel()
	if err != nil {
		return nil, err
	}
	shape, err := w.resolver.Object(inputs[inputShape])
	if err != nil {
		return nil, err
	}
	fileName, _ := inputs[inputFileName].(string)
	adjust, _ := inputs[inputAdjustYtoZ].(bool)
	return k.ExportSTEP(ctx, shape, domain.StepOptions{FileName: fileName, AdjustYtoZ: adjust})
}

// referenceHash extracts the hash of a reference token without resolving it.
func referenceHash(v any) (domain.Fingerprint, error) {
	tok, ok, err := domain.TokenFromValue(v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, zerr.With(zerr.Wrap(domain.ErrInvalidReference, fmt.Sprintf("%v", v)), "value", v)
	}
	return tok.Hash, nil
}

func meshOptions(inputs map[string]any) domain.MeshOptions {
	opts := domain.MeshOptions{Precision: domain.DefaultMeshPrecision}
	if p, ok := number(inputs[inputPrecision]); ok && p > 0 {
		opts.Precision = p
	}
	opts.AdjustYtoZ, _ = inputs[inputAdjustYtoZ].(bool)
	return opts
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
