package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports/mocks"
	"go.trai.ch/kernelproxy/internal/engine/fingerprint"
	"go.trai.ch/kernelproxy/internal/engine/store"
	"go.uber.org/mock/gomock"
)

type shape struct {
	key      domain.Fingerprint
	ptr      uintptr
	released bool
	panics   bool
}

func (s *shape) Kind() domain.Kind { return domain.KindShape }
func (s *shape) Key() domain.Fingerprint { return s.key }
func (s *shape) Stamp(k domain.Fingerprint) { s.key = k }
func (s *shape) Pointer() uintptr { return s.ptr }

func (s *shape) Probe() error {
	if s.panics {
		panic("null pointer")
	}
	if s.released {
		return domain.ErrObjectReleased
	}
	return nil
}

type releaser struct {
	released []domain.Object
	err      error
}

func (r *releaser) Release(obj domain.Object) error {
	r.released = append(r.released, obj)
	if s, ok := obj.(*shape); ok {
		s.released = true
	}
	return r.err
}

func newStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.New(fingerprint.NewEngine(domain.FingerprintRolling, nil), opts...)
	require.NoError(t, err)
	return s
}

func action(fn string, inputs map[string]any) domain.Action {
	return domain.Action{FunctionName: fn, Inputs: inputs}
}

func counting(counter *int, result func() any) store.ComputeFunc {
	return func(context.Context) (any, error) {
		*counter++
		return result(), nil
	}
}

func TestRunOperation_Memoizes(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	calls := 0
	compute := counting(&calls, func() any { return &shape{} })

	first, err := s.RunOperation(ctx, action("shapes.solid.createBox", map[string]any{"width": 1.0}), compute)
	require.NoError(t, err)
	assert.False(t, first.Hit)

	second, err := s.RunOperation(ctx, action("shapes.solid.createBox", map[string]any{"width": 1.0}), compute)
	require.NoError(t, err)
	assert.True(t, second.Hit)
	assert.Equal(t, 1, calls)
	assert.Same(t, first.Value, second.Value)
	assert.Equal(t, first.Key, second.Key)
	assert.Equal(t, first.Key, first.Value.(*shape).Key())

	_, err = s.RunOperation(ctx, action("shapes.solid.createBox", map[string]any{"width": 2.0}), compute)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRunOperation_RecordsUsageOnHit(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	calls := 0
	compute := counting(&calls, func() any { return 42.0 })

	for range 3 {
		_, err := s.RunOperation(ctx, action("f", nil), compute)
		require.NoError(t, err)
	}

	stats := s.Stats()
	assert.Equal(t, 1, stats.Used)
	assert.Equal(t, 1, stats.LastRun)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestRunOperation_PlainValues(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "nil", value: nil},
		{name: "false", value: false},
		{name: "zero", value: 0.0},
		{name: "empty string", value: ""},
		{name: "object", value: map[string]any{"volume": 8.0}},
		{name: "empty array", value: []any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			calls := 0
			compute := counting(&calls, func() any { return tt.value })

			_, err := s.RunOperation(context.Background(), action("f", nil), compute)
			require.NoError(t, err)
			out, err := s.RunOperation(context.Background(), action("f", nil), compute)
			require.NoError(t, err)

			assert.True(t, out.Hit)
			assert.Equal(t, tt.value, out.Value)
			assert.Equal(t, 1, calls)
		})
	}
}

func TestRunOperation_ComputeErrorIsNotStored(t *testing.T) {
	s := newStore(t)
	boom := errors.New("invalid geometry")
	calls := 0

	compute := func(context.Context) (any, error) {
		calls++
		return nil, boom
	}

	_, err := s.RunOperation(context.Background(), action("f", nil), compute)
	require.ErrorIs(t, err, boom)
	_, err = s.RunOperation(context.Background(), action("f", nil), compute)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, s.Stats().Entries)
	assert.Equal(t, 1, s.UsedCount())
}

func TestRunOperation_RecomputesAfterExternalRelease(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	calls := 0
	var last *shape
	compute := counting(&calls, func() any {
		last = &shape{}
		return last
	})

	out, err := s.RunOperation(ctx, action("f", nil), compute)
	require.NoError(t, err)

	// Released by the kernel behind the store's back.
	last.released = true

	_, ok := s.Lookup(out.Key)
	assert.False(t, ok)

	again, err := s.RunOperation(ctx, action("f", nil), compute)
	require.NoError(t, err)
	assert.False(t, again.Hit)
	assert.Equal(t, 2, calls)

	third, err := s.RunOperation(ctx, action("f", nil), compute)
	require.NoError(t, err)
	assert.True(t, third.Hit)
	assert.Equal(t, 2, calls)
}

func TestLookup_ProbePanicIsMiss(t *testing.T) {
	s := newStore(t)
	key := s.Put(7, &shape{panics: true})

	v, ok := s.Lookup(key)
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestPut_StampsObjectsAndSlices(t *testing.T) {
	s := newStore(t)
	a, b := &shape{}, &shape{}

	s.Put(11, a)
	s.Put(12, []domain.Object{b})

	assert.Equal(t, domain.Fingerprint(11), a.Key())
	assert.Equal(t, domain.Fingerprint(12), b.Key())

	b.released = true
	_, ok := s.Lookup(12)
	assert.False(t, ok, "any dead element invalidates an array entry")
}

func TestRunOperation_ArrayResults(t *testing.T) {
	s := newStore(t)
	engine := fingerprint.NewEngine(domain.FingerprintRolling, nil)
	req := action("shapes.face.getFaces", map[string]any{"shape": 1})
	faces := []any{&shape{}, &shape{}, &shape{}}
	calls := 0

	out, err := s.RunOperation(context.Background(), req, counting(&calls, func() any { return faces }))
	require.NoError(t, err)
	assert.Equal(t, faces, out.Value)

	_, ok := s.Lookup(out.Key)
	assert.False(t, ok, "arrays are not stored under the request key")

	for i, face := range faces {
		k, err := engine.Derived(req, i)
		require.NoError(t, err)
		got, ok := s.Lookup(k)
		require.True(t, ok)
		assert.Same(t, face, got)
		assert.Equal(t, k, face.(*shape).Key())
	}
}

func TestRunOperation_RepeatedArrayReleasesPrevious(t *testing.T) {
	rel := &releaser{}
	s := newStore(t, store.WithReleaser(rel))
	req := action("shapes.face.getFaces", map[string]any{"shape": 1})

	first := []any{&shape{}, &shape{}}
	_, err := s.RunOperation(context.Background(), req, func(context.Context) (any, error) { return first, nil })
	require.NoError(t, err)
	second := []any{&shape{}, &shape{}}
	_, err = s.RunOperation(context.Background(), req, func(context.Context) (any, error) { return second, nil })
	require.NoError(t, err)

	assert.ElementsMatch(t, []domain.Object{first[0].(*shape), first[1].(*shape)}, rel.released)
	assert.Equal(t, 2, s.Stats().Entries)
	assert.Equal(t, uint64(2), s.Stats().Evictions)

	s.EvictAll()
	assert.Len(t, rel.released, 4)
	for _, face := range second {
		assert.True(t, face.(*shape).released)
	}
}

func TestPut_SameObjectIsKept(t *testing.T) {
	rel := &releaser{}
	s := newStore(t, store.WithReleaser(rel))
	obj := &shape{}

	s.Put(5, obj)
	s.Put(5, obj)

	assert.Empty(t, rel.released)
	got, ok := s.Lookup(5)
	require.True(t, ok)
	assert.Same(t, obj, got)
}

func TestRunOperation_NestedObjectsGetKeys(t *testing.T) {
	rel := &releaser{}
	s := newStore(t, store.WithReleaser(rel))
	engine := fingerprint.NewEngine(domain.FingerprintRolling, nil)
	req := action("measure", map[string]any{"n": 1.0})
	part := &shape{}
	result := map[string]any{"count": 1.0, "part": part}

	out, err := s.RunOperation(context.Background(), req, func(context.Context) (any, error) { return result, nil })
	require.NoError(t, err)

	k, err := engine.Derived(req, "nested-0")
	require.NoError(t, err)
	assert.Equal(t, k, part.Key())
	got, ok := s.Lookup(k)
	require.True(t, ok)
	assert.Same(t, part, got)

	s.Evict(k)
	_, ok = s.Lookup(out.Key)
	assert.False(t, ok, "the plain result is dead once a nested object is released")

	s.EvictAll()
	assert.Equal(t, []domain.Object{part}, rel.released)
}

func TestRunOperation_CompositeAddressing(t *testing.T) {
	s := newStore(t)
	engine := fingerprint.NewEngine(domain.FingerprintRolling, nil)
	req := action("assembly.createAssembly", map[string]any{"name": "asm"})

	compound := &shape{}
	left, right := &shape{}, &shape{}
	composite := &domain.Composite{
		Compound: compound,
		Data:     map[string]any{"name": "asm"},
		Shapes:   []domain.Child{{ID: "left", Shape: left}, {ID: "right", Shape: right}},
	}
	calls := 0
	compute := counting(&calls, func() any { return composite })

	out, err := s.RunOperation(context.Background(), req, compute)
	require.NoError(t, err)
	assert.Same(t, composite, out.Value)

	compoundKey, err := engine.Derived(req, "compound")
	require.NoError(t, err)
	got, ok := s.Lookup(compoundKey)
	require.True(t, ok)
	assert.Same(t, compound, got)

	for i, child := range []*shape{left, right} {
		k, err := engine.Derived(req, i)
		require.NoError(t, err)
		got, ok := s.Lookup(k)
		require.True(t, ok)
		assert.Same(t, child, got)
	}

	repeat, err := s.RunOperation(context.Background(), req, compute)
	require.NoError(t, err)
	assert.True(t, repeat.Hit)
	assert.Same(t, composite, repeat.Value)
	assert.Equal(t, 1, calls)
}

func TestEvict_ChildInvalidatesComposite(t *testing.T) {
	rel := &releaser{}
	s := newStore(t, store.WithReleaser(rel))
	engine := fingerprint.NewEngine(domain.FingerprintRolling, nil)
	req := action("assembly.createAssembly", nil)
	calls := 0
	compute := counting(&calls, func() any {
		return &domain.Composite{
			Compound: &shape{},
			Shapes:   []domain.Child{{ID: "a", Shape: &shape{}}},
		}
	})

	_, err := s.RunOperation(context.Background(), req, compute)
	require.NoError(t, err)

	childKey, err := engine.Derived(req, 0)
	require.NoError(t, err)
	s.Evict(childKey)
	assert.Len(t, rel.released, 1)

	out, err := s.RunOperation(context.Background(), req, compute)
	require.NoError(t, err)
	assert.False(t, out.Hit)
	assert.Equal(t, 2, calls)
}

func TestEvict(t *testing.T) {
	rel := &releaser{}
	s := newStore(t, store.WithReleaser(rel))
	a, b := &shape{}, &shape{}
	s.Put(1, a)
	s.Put(2, b)

	s.Evict(1)
	s.Evict(99)

	_, ok := s.Lookup(1)
	assert.False(t, ok)
	got, ok := s.Lookup(2)
	require.True(t, ok)
	assert.Same(t, b, got)
	assert.Equal(t, []domain.Object{a}, rel.released)

	s.Evict(1)
	assert.Len(t, rel.released, 1, "a second eviction must not release again")
}

func TestEvict_ReleaseFailureIsSwallowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn(gomock.Any()).Times(1)

	rel := &releaser{err: errors.New("already deleted")}
	s := newStore(t, store.WithReleaser(rel), store.WithLogger(logger))
	s.Put(1, &shape{})

	s.Evict(1)

	_, ok := s.Lookup(1)
	assert.False(t, ok)
}

func TestEvictAll(t *testing.T) {
	rel := &releaser{}
	s := newStore(t, store.WithReleaser(rel))
	ctx := context.Background()
	calls := 0

	gone := &shape{released: true}
	s.Put(1, gone)
	s.Put(2, &shape{})
	_, err := s.RunOperation(ctx, action("f", nil), counting(&calls, func() any { return &shape{} }))
	require.NoError(t, err)

	s.EvictAll()

	stats := s.Stats()
	assert.Equal(t, 0, stats.Entries)
	assert.Equal(t, 0, stats.Used)
	assert.Equal(t, 0, stats.LastRun)
	assert.Len(t, rel.released, 3)
}

func TestRunStarted_Threshold(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	calls := 0
	compute := counting(&calls, func() any { return 1.0 })

	for i := range domain.DefaultEvictionThreshold {
		_, err := s.RunOperation(ctx, action("f", map[string]any{"i": i}), compute)
		require.NoError(t, err)
	}
	require.Equal(t, domain.DefaultEvictionThreshold, s.UsedCount())

	assert.False(t, s.RunStarted(domain.DefaultEvictionThreshold))
	assert.Equal(t, domain.DefaultEvictionThreshold, s.Stats().Entries)

	_, err := s.RunOperation(ctx, action("f", map[string]any{"i": -1}), compute)
	require.NoError(t, err)

	assert.True(t, s.RunStarted(domain.DefaultEvictionThreshold))
	assert.Equal(t, 0, s.UsedCount())
	assert.Equal(t, 0, s.Stats().Entries)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newStore(t, store.WithRegisterer(reg))
	ctx := context.Background()
	calls := 0
	compute := counting(&calls, func() any { return &shape{} })

	out, err := s.RunOperation(ctx, action("f", nil), compute)
	require.NoError(t, err)
	_, err = s.RunOperation(ctx, action("f", nil), compute)
	require.NoError(t, err)
	s.Evict(out.Key)

	count, err := testutil.GatherAndCount(reg,
		"kernelproxy_store_hits_total",
		"kernelproxy_store_misses_total",
		"kernelproxy_store_evictions_total",
	)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = store.New(fingerprint.NewEngine(domain.FingerprintRolling, nil), store.WithRegisterer(reg))
	assert.Error(t, err, "registering twice must fail")
}
