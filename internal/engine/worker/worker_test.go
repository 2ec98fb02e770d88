package worker_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kernelproxy/internal/adapters/refkernel"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports/mocks"
	"go.trai.ch/kernelproxy/internal/engine/worker"
	"go.uber.org/mock/gomock"
)

func newWorker(t *testing.T, opts ...worker.Option) (*worker.Worker, *refkernel.Kernel) {
	t.Helper()
	k := refkernel.New()
	w, err := worker.New(domain.DefaultConfig().Cache, append([]worker.Option{worker.WithKernel(k)}, opts...)...)
	require.NoError(t, err)
	return w, k
}

// handle runs one request and returns the reply after checking the busy frame.
func handle(t *testing.T, w *worker.Worker, fn string, inputs map[string]any) domain.Message {
	t.Helper()
	var msgs []domain.Message
	w.Handle(context.Background(), domain.Request{
		UID:    "req-" + fn,
		Action: domain.Action{FunctionName: fn, Inputs: inputs},
	}, func(m domain.Message) { msgs = append(msgs, m) })

	require.Len(t, msgs, 2)
	require.True(t, msgs[0].Busy, "first frame must be the busy notification")
	assert.Equal(t, "req-"+fn, msgs[1].UID)
	return msgs[1]
}

func ok(t *testing.T, w *worker.Worker, fn string, inputs map[string]any) any {
	t.Helper()
	reply := handle(t, w, fn, inputs)
	require.False(t, reply.Failed(), reply.Error)
	return reply.Result
}

func token(t *testing.T, v any) domain.Token {
	t.Helper()
	tok, isToken := v.(domain.Token)
	require.True(t, isToken, "expected a reference token, got %T", v)
	return tok
}

func wireRef(tok domain.Token) map[string]any {
	return map[string]any{"type": tok.Type, "hash": float64(tok.Hash)}
}

func TestCircleWireLifecycle(t *testing.T) {
	w, k := newWorker(t)

	wire := token(t, ok(t, w, "shapes.wire.createCircleWire", map[string]any{
		"radius":    1.0,
		"center":    []any{0.0, 0.0, 0.0},
		"direction": []any{0.0, 0.0, 1.0},
	}))
	assert.Equal(t, domain.TokenShape, wire.Type)

	length := ok(t, w, "shapes.wire.getWireLength", map[string]any{"shape": wireRef(wire)})
	assert.InDelta(t, 2*math.Pi, length, 1e-12)

	assert.Equal(t, map[string]any{}, ok(t, w, domain.OpDeleteShape, map[string]any{"shape": wireRef(wire)}))
	assert.Equal(t, 0, k.Live())

	// References are resolved before the memoized length is consulted.
	reply := handle(t, w, "shapes.wire.getWireLength", map[string]any{"shape": wireRef(wire)})
	require.True(t, reply.Failed())
	assert.Nil(t, reply.Result)
	assert.Contains(t, reply.Error, "shape with hash "+wire.Hash.String())
	assert.Contains(t, reply.Error, "regenerate")
}

func TestBatchMeshKeepsInputOrder(t *testing.T) {
	w, k := newWorker(t)

	small := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))
	large := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 4.0, "length": 2.0, "height": 3.0}))
	require.NotEqual(t, small.Hash, large.Hash)

	out := ok(t, w, domain.OpShapesToMeshes, map[string]any{"shapes": []any{wireRef(large), wireRef(small)}})
	meshes, isSlice := out.([]any)
	require.True(t, isSlice)
	require.Len(t, meshes, 2)

	for i, tok := range []domain.Token{large, small} {
		obj, found := w.Store().Lookup(tok.Hash)
		require.True(t, found)
		want, err := k.Mesh(context.Background(), obj.(domain.Object), domain.MeshOptions{Precision: domain.DefaultMeshPrecision})
		require.NoError(t, err)
		assert.Equal(t, want, meshes[i])
	}
}

func TestShapeToMesh(t *testing.T) {
	w, _ := newWorker(t)
	box := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))

	out := ok(t, w, domain.OpShapeToMesh, map[string]any{"shape": wireRef(box), "precision": 0.1, "adjustYtoZ": true})
	mesh, isMesh := out.(refkernel.Mesh)
	require.True(t, isMesh)
	assert.Len(t, mesh.Faces.Groups, 6)

	reply := handle(t, w, domain.OpShapeToMesh, map[string]any{"shape": map[string]any{"type": domain.TokenShape, "hash": 77.0}})
	require.True(t, reply.Failed())
	assert.Contains(t, reply.Error, "shape not found in cache")
	assert.Contains(t, reply.Error, "hash 77")
}

func TestShapesToMeshes_Empty(t *testing.T) {
	w, _ := newWorker(t)

	reply := handle(t, w, domain.OpShapesToMeshes, map[string]any{"shapes": []any{}})
	require.True(t, reply.Failed())
	assert.Contains(t, reply.Error, "no shapes provided")
}

func TestMemoization(t *testing.T) {
	w, k := newWorker(t)
	inputs := map[string]any{"width": 1.0, "length": 2.0, "height": 3.0}

	first := token(t, ok(t, w, "shapes.solid.createBox", inputs))
	second := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"height": 3.0, "length": 2.0, "width": 1.0}))

	assert.Equal(t, first, second)
	assert.Equal(t, 1, k.Live())
	stats := w.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestErrorReplyFormat(t *testing.T) {
	w, _ := newWorker(t)

	reply := handle(t, w, "shapes.nope.createThing", map[string]any{"radius": 1.0, "name": "a"})
	require.True(t, reply.Failed())
	assert.Equal(t,
		`kernelproxy: operation failed: "shapes.nope.createThing" at segment "nope": cannot resolve path. `+
			`Operation: shapes.nope.createThing. Inputs: name: "a", radius: 1`,
		reply.Error)
}

func TestKernelError(t *testing.T) {
	w, _ := newWorker(t)

	reply := handle(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0})
	require.True(t, reply.Failed())
	assert.Contains(t, reply.Error, "missing input")
	assert.Equal(t, 0, w.Stats().Entries, "failed operations are not stored")
}

func TestCompositeResult(t *testing.T) {
	w, _ := newWorker(t)
	lid := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))

	out := ok(t, w, "assembly.createAssembly", map[string]any{
		"name":  "jar",
		"parts": []any{map[string]any{"id": "lid", "shape": wireRef(lid)}},
	})
	asm, isMap := out.(map[string]any)
	require.True(t, isMap)
	assert.Equal(t, map[string]any{"name": "jar", "parts": 1.0}, asm["data"])
	compound := token(t, asm["compound"])

	shapes := asm["shapes"].([]any)
	require.Len(t, shapes, 1)
	child := shapes[0].(map[string]any)
	assert.Equal(t, "lid", child["id"])
	childTok := token(t, child["shape"])
	assert.NotEqual(t, lid.Hash, childTok.Hash)

	volume := ok(t, w, "shapes.solid.getSolidVolume", map[string]any{"shape": wireRef(compound)})
	assert.InDelta(t, 1.0, volume, 1e-12)
}

func TestArrayResult(t *testing.T) {
	w, _ := newWorker(t)
	box := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))

	out := ok(t, w, "shapes.face.getFaces", map[string]any{"shape": wireRef(box)})
	faces, isSlice := out.([]any)
	require.True(t, isSlice)
	require.Len(t, faces, 6)

	kind := ok(t, w, "shapes.shape.getShapeType", map[string]any{"shape": wireRef(token(t, faces[3]))})
	assert.Equal(t, refkernel.TypeFace, kind)
}

func TestRepeatedArrayResultReleasesPrevious(t *testing.T) {
	w, k := newWorker(t)
	box := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))

	ok(t, w, "shapes.face.getFaces", map[string]any{"shape": wireRef(box)})
	require.Equal(t, 7, k.Live())
	ok(t, w, "shapes.face.getFaces", map[string]any{"shape": wireRef(box)})
	assert.Equal(t, 7, k.Live(), "the faces of the first call are released")
	assert.Equal(t, 7, w.Stats().Entries)

	ok(t, w, domain.OpCleanAllCache, nil)
	assert.Equal(t, 0, k.Live())
}

func TestRecomputedCompositeReleasesPrevious(t *testing.T) {
	w, k := newWorker(t)
	lid := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))
	inputs := map[string]any{
		"name": "jar",
		"parts": []any{
			map[string]any{"id": "p0", "shape": wireRef(lid)},
			map[string]any{"id": "p1", "shape": wireRef(lid)},
		},
	}

	asm := ok(t, w, "assembly.createAssembly", inputs).(map[string]any)
	require.Equal(t, 4, k.Live())
	p0 := token(t, asm["shapes"].([]any)[0].(map[string]any)["shape"])

	ok(t, w, domain.OpDeleteShape, map[string]any{"shape": wireRef(p0)})
	require.Equal(t, 3, k.Live())

	ok(t, w, "assembly.createAssembly", inputs)
	assert.Equal(t, 4, k.Live(), "the old compound and surviving child are released")

	ok(t, w, domain.OpCleanAllCache, nil)
	assert.Equal(t, 0, k.Live())
}

func TestEntityResult(t *testing.T) {
	w, _ := newWorker(t)

	doc := token(t, ok(t, w, "io.createDocument", map[string]any{"name": "part"}))
	assert.Equal(t, domain.TokenEntity, doc.Type)
}

func TestDeleteShapes(t *testing.T) {
	w, k := newWorker(t)
	a := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))
	b := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 2.0, "length": 1.0, "height": 1.0}))
	require.Equal(t, 2, k.Live())

	assert.Equal(t, map[string]any{}, ok(t, w, domain.OpDeleteShapes, map[string]any{"shapes": []any{wireRef(a), wireRef(b)}}))
	assert.Equal(t, 0, k.Live())

	reply := handle(t, w, domain.OpDeleteShapes, map[string]any{"shapes": []any{"box"}})
	assert.True(t, reply.Failed())
}

func TestDeleteShapes_UnknownHashIsSkipped(t *testing.T) {
	w, k := newWorker(t)
	a := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))
	b := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 2.0, "length": 1.0, "height": 1.0}))
	unknown := domain.Token{Type: domain.TokenShape, Hash: a.Hash + b.Hash + 1}

	assert.Equal(t, map[string]any{}, ok(t, w, domain.OpDeleteShapes, map[string]any{"shapes": []any{wireRef(a), wireRef(unknown)}}))
	assert.Equal(t, 1, k.Live())

	_, found := w.Store().Lookup(a.Hash)
	assert.False(t, found)
	_, found = w.Store().Lookup(b.Hash)
	assert.True(t, found)
}

func TestStartedTheRun(t *testing.T) {
	w, k := newWorker(t)
	w.SetEvictionThreshold(1)
	assert.Equal(t, 1, w.EvictionThreshold())

	ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})
	ok(t, w, domain.OpStartedTheRun, nil)
	assert.Equal(t, 1, k.Live(), "one used hash does not exceed the threshold")

	ok(t, w, "shapes.solid.createBox", map[string]any{"width": 2.0, "length": 1.0, "height": 1.0})
	ok(t, w, domain.OpStartedTheRun, nil)
	assert.Equal(t, 0, k.Live())
	assert.Zero(t, w.Stats().Entries)

	w.SetEvictionThreshold(0)
	assert.Equal(t, domain.DefaultEvictionThreshold, w.EvictionThreshold())
}

func TestCleanAllCache(t *testing.T) {
	w, k := newWorker(t)
	ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})
	ok(t, w, "io.createDocument", map[string]any{"name": "doc"})
	require.Equal(t, 2, k.Live())

	assert.Equal(t, map[string]any{}, ok(t, w, domain.OpCleanAllCache, nil))
	assert.Equal(t, 0, k.Live())
	assert.Zero(t, w.Stats().Used)
}

func TestSaveShapeSTEP(t *testing.T) {
	w, _ := newWorker(t)
	box := token(t, ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0}))

	out := ok(t, w, domain.OpSaveShapeSTEP, map[string]any{"shape": wireRef(box), "fileName": "box.step"})
	payload, isBytes := out.([]byte)
	require.True(t, isBytes)
	assert.Contains(t, string(payload), "FILE_NAME('box.step'")
}

func TestAddDependency(t *testing.T) {
	w, err := worker.New(domain.DefaultConfig().Cache)
	require.NoError(t, err)

	assert.Nil(t, ok(t, w, domain.OpAddDependency, map[string]any{"fonts": "roboto"}))

	reply := handle(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0})
	require.True(t, reply.Failed())
	assert.Contains(t, reply.Error, "kernel is not initialized")

	k := refkernel.New()
	w.Attach(k)
	assert.Equal(t, map[string]any{"fonts": "roboto"}, k.Dependencies())

	ok(t, w, domain.OpAddDependency, map[string]any{"sketch": 1.0})
	assert.Equal(t, map[string]any{"fonts": "roboto", "sketch": 1.0}, k.Dependencies())
}

func TestSubmit_FIFO(t *testing.T) {
	w, _ := newWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	var uids []string
	for _, uid := range []string{"a", "b", "c"} {
		req := domain.Request{UID: uid, Action: domain.Action{FunctionName: "shapes.solid.createBox", Inputs: map[string]any{
			"width": 1.0, "length": 1.0, "height": 1.0,
		}}}
		err := w.Submit(ctx, req, func(m domain.Message) {
			if !m.Busy {
				uids = append(uids, m.UID)
			}
		})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a", "b", "c"}, uids)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}

	err := w.Submit(context.Background(), domain.Request{UID: "late"}, func(domain.Message) {})
	assert.ErrorIs(t, err, domain.ErrWorkerStopped)
	assert.Error(t, w.Run(context.Background()))
}

func TestHandle_Tracing(t *testing.T) {
	ctrl := gomock.NewController(t)
	tracer := mocks.NewMockTracer(ctrl)
	span := mocks.NewMockSpan(ctrl)

	tracer.EXPECT().Start(gomock.Any(), "shapes.solid.createBox").Return(context.Background(), span)
	span.EXPECT().SetAttribute("request.uid", "req-shapes.solid.createBox")
	span.EXPECT().SetAttribute("cache.fingerprint", gomock.Any())
	span.EXPECT().SetAttribute("cache.hit", false)
	span.EXPECT().RecordError(gomock.Any())
	span.EXPECT().End()

	w, _ := newWorker(t, worker.WithTracer(tracer))
	reply := handle(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0})
	assert.True(t, reply.Failed())
}

func TestHandle_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	w, _ := newWorker(t, worker.WithRegisterer(reg))

	ok(t, w, "shapes.solid.createBox", map[string]any{"width": 1.0, "length": 1.0, "height": 1.0})
	ok(t, w, domain.OpCleanAllCache, nil)
	handle(t, w, "missing.op", nil)

	count, err := testutil.GatherAndCount(reg, "kernelproxy_worker_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = testutil.GatherAndCount(reg, "kernelproxy_store_misses_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
