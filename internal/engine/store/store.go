// Package store implements the fingerprint-keyed memoization store for live kernel objects.
package store

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/kernelproxy/internal/engine/fingerprint"
	"go.trai.ch/zerr"
)

// Releaser frees the native resources behind a kernel object.
type Releaser interface {
	Release(obj domain.Object) error
}

// ComputeFunc produces the result of an operation on a store miss.
type ComputeFunc func(ctx context.Context) (any, error)

// Outcome describes a memoized operation.
type Outcome struct {
	// Key is the fingerprint of the request.
	Key domain.Fingerprint
	// Hit is true when the result came from the store.
	Hit bool
	// Value is the unwrapped result.
	Value any
}

// Stats is a snapshot of the store bookkeeping.
type Stats = domain.CacheStats

type entryKind uint8

const (
	entryValue entryKind = iota
	entryObject
	entryObjects
	entryComposite
)

// handle is the store-owned liveness flag of one kernel object. Entries that
// share an object share its handle.
type handle struct {
	obj   domain.Object
	valid bool
}

type entry struct {
	kind    entryKind
	value   any
	handles []*handle
	// owned is true when eviction of this entry releases its objects.
	owned bool
}

// Store maps fingerprints to computed results.
type Store struct {
	mu       sync.Mutex
	engine   *fingerprint.Engine
	releaser Releaser
	logger   ports.Logger
	metrics  *storeMetrics

	entries map[domain.Fingerprint]*entry
	used    map[domain.Fingerprint]struct{}
	lastRun map[domain.Fingerprint]struct{}

	hits      uint64
	misses    uint64
	evictions uint64
}

// Option configures a Store.
type Option func(*Store) error

// WithLogger sets the logger used for advisory failures.
func WithLogger(logger ports.Logger) Option {
	return func(s *Store) error {
		s.logger = logger
		return nil
	}
}

// WithReleaser sets the kernel-side cleanup used on eviction.
func WithReleaser(r Releaser) Option {
	return func(s *Store) error {
		s.releaser = r
		return nil
	}
}

// WithRegisterer registers store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(s *Store) error {
		m, err := newStoreMetrics(reg)
		if err != nil {
			return zerr.Wrap(err, "failed to register store metrics")
		}
		s.metrics = m
		return nil
	}
}

// New creates an empty store keyed by engine.
func New(engine *fingerprint.Engine, opts ...Option) (*Store, error) {
	s := &Store{
		engine:  engine,
		entries: make(map[domain.Fingerprint]*entry),
		used:    make(map[domain.Fingerprint]struct{}),
		lastRun: make(map[domain.Fingerprint]struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetReleaser replaces the kernel-side cleanup. It is used once the kernel is attached.
func (s *Store) SetReleaser(r Releaser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaser = r
}

// Lookup returns the live value stored under key. Entries whose objects were
// released are purged and reported as absent.
func (s *Store) Lookup(key domain.Fingerprint) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookupLocked(key)
}

func (s *Store) lookupLocked(key domain.Fingerprint) (any, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	for _, h := range e.handles {
		if !s.alive(h) {
			delete(s.entries, key)
			s.evictions++
			s.metrics.evicted("invalid")
			s.metrics.size(len(s.entries), len(s.used))
			if e.owned {
				s.releaseValid(key, e)
			}
			return nil, false
		}
	}
	if e.kind == entryObject {
		e.handles[0].obj.Stamp(key)
	}
	return e.value, true
}

// alive checks the validity flag first and falls back to the native probe.
func (s *Store) alive(h *handle) (ok bool) {
	if !h.valid {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			h.valid = false
			ok = false
		}
	}()
	if err := h.obj.Probe(); err != nil {
		h.valid = false
		return false
	}
	return true
}

// Put stamps value with key and stores it. Objects and slices of objects are
// tracked for liveness; anything else is stored as a plain value.
func (s *Store) Put(key domain.Fingerprint, value any) domain.Fingerprint {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, value)
	return key
}

func (s *Store) putLocked(key domain.Fingerprint, value any) *entry {
	var e *entry
	switch v := value.(type) {
	case domain.Object:
		v.Stamp(key)
		e = &entry{kind: entryObject, value: v, handles: []*handle{{obj: v, valid: true}}, owned: true}
	case *domain.Composite:
		e = &entry{kind: entryComposite, value: v}
	default:
		if objs, ok := objectSlice(value); ok && len(objs) > 0 {
			hs := make([]*handle, len(objs))
			for i, obj := range objs {
				obj.Stamp(key)
				hs[i] = &handle{obj: obj, valid: true}
			}
			e = &entry{kind: entryObjects, value: value, handles: hs, owned: true}
		} else {
			e = &entry{kind: entryValue, value: value}
		}
	}
	s.replaceLocked(key, e)
	s.entries[key] = e
	s.metrics.size(len(s.entries), len(s.used))
	return e
}

// replaceLocked releases the objects of the owned entry at key that the
// incoming entry does not carry over.
func (s *Store) replaceLocked(key domain.Fingerprint, next *entry) {
	prev, ok := s.entries[key]
	if !ok || !prev.owned {
		return
	}
	released := false
	for _, h := range prev.handles {
		if !h.valid || carries(next, h.obj) {
			continue
		}
		h.valid = false
		s.release(key, h.obj)
		released = true
	}
	if released {
		s.evictions++
		s.metrics.evicted("replace")
	}
}

func carries(e *entry, obj domain.Object) bool {
	return slices.ContainsFunc(e.handles, func(h *handle) bool { return sameObject(h.obj, obj) })
}

func sameObject(a, b domain.Object) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}

// Evict releases the objects held by key and forgets it. Release failures are
// logged and otherwise ignored. Evicting an unknown key is a no-op.
func (s *Store) Evict(key domain.Fingerprint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictLocked(key, "delete")
	s.metrics.size(len(s.entries), len(s.used))
}

func (s *Store) evictLocked(key domain.Fingerprint, reason string) {
	e, ok := s.entries[key]
	delete(s.used, key)
	delete(s.lastRun, key)
	if !ok {
		return
	}
	delete(s.entries, key)
	s.evictions++
	s.metrics.evicted(reason)

	if !e.owned {
		return
	}
	s.releaseValid(key, e)
}

func (s *Store) releaseValid(key domain.Fingerprint, e *entry) {
	for _, h := range e.handles {
		if !h.valid {
			continue
		}
		h.valid = false
		s.release(key, h.obj)
	}
}

func (s *Store) release(key domain.Fingerprint, obj domain.Object) {
	if s.releaser == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.warn(zerr.With(zerr.Wrap(domain.ErrKernelPanic, fmt.Sprintf("release of %s: %v", key, r)), "hash", key))
		}
	}()
	if err := s.releaser.Release(obj); err != nil {
		s.warn(zerr.With(zerr.Wrap(err, fmt.Sprintf("failed to release %s", key)), "hash", key))
	}
}

func (s *Store) warn(err error) {
	if s.logger != nil {
		s.logger.Warn(err.Error())
	}
}

// EvictAll evicts every tracked key and clears the used and last-run sets.
func (s *Store) EvictAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.evictAllLocked()
}

func (s *Store) evictAllLocked() {
	keys := make([]domain.Fingerprint, 0, len(s.entries)+len(s.used))
	for k := range s.entries {
		keys = append(keys, k)
	}
	for k := range s.used {
		if _, ok := s.entries[k]; !ok {
			keys = append(keys, k)
		}
	}
	for _, k := range keys {
		s.evictLocked(k, "clear")
	}
	clear(s.entries)
	clear(s.used)
	clear(s.lastRun)
	s.metrics.size(0, 0)
}

// UsedCount returns the number of distinct fingerprints requested in the current run.
func (s *Store) UsedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.used)
}

// RunStarted clears the whole store when more than threshold distinct
// fingerprints were used. It reports whether it cleared.
func (s *Store) RunStarted(threshold int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.used) <= threshold {
		return false
	}
	if s.logger != nil {
		s.logger.Info(fmt.Sprintf("used hashes %d exceed threshold %d, clearing store", len(s.used), threshold))
	}
	s.evictAllLocked()
	return true
}

// Stats returns a snapshot of the store bookkeeping.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Entries:   len(s.entries),
		Used:      len(s.used),
		LastRun:   len(s.lastRun),
		Hits:      s.hits,
		Misses:    s.misses,
		Evictions: s.evictions,
	}
}

// RunOperation memoizes compute under the fingerprint of action.
//
// Arrays of objects are stored element-wise under derived keys and are not
// stored under the request key. Composites store the compound and every
// child under derived keys and the whole composite under the request key.
// Any other result is stored as a plain value, with nested objects under
// derived keys.
func (s *Store) RunOperation(ctx context.Context, action domain.Action, compute ComputeFunc) (Outcome, error) {
	key, err := s.engine.Fingerprint(action)
	if err != nil {
		return Outcome{}, err
	}

	s.mu.Lock()
	s.used[key] = struct{}{}
	s.lastRun[key] = struct{}{}
	if v, ok := s.lookupLocked(key); ok {
		s.hits++
		s.metrics.hit()
		s.metrics.size(len(s.entries), len(s.used))
		s.mu.Unlock()
		return Outcome{Key: key, Hit: true, Value: v}, nil
	}
	s.misses++
	s.metrics.miss()
	s.mu.Unlock()

	result, err := compute(ctx)
	if err != nil {
		return Outcome{Key: key}, err
	}

	if err := s.storeResult(action, key, result); err != nil {
		return Outcome{Key: key}, err
	}
	return Outcome{Key: key, Value: result}, nil
}

func (s *Store) storeResult(action domain.Action, key domain.Fingerprint, result any) error {
	switch v := result.(type) {
	case domain.Object:
		s.Put(key, v)
		return nil
	case *domain.Composite:
		return s.storeComposite(action, key, v)
	}

	if objs, ok := objectSlice(result); ok && len(objs) > 0 {
		derived := make([]domain.Fingerprint, len(objs))
		for i := range objs {
			k, err := s.engine.Derived(action, i)
			if err != nil {
				return err
			}
			derived[i] = k
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, obj := range objs {
			s.putLocked(derived[i], obj)
		}
		return nil
	}

	return s.storeValue(action, key, result)
}

// storeValue stores a plain result. Kernel objects nested in it are stored
// under derived keys so they carry a key of their own and are released with
// the store; the plain entry shares their handles for liveness.
func (s *Store) storeValue(action domain.Action, key domain.Fingerprint, result any) error {
	nested := nestedObjects(result, nil)
	keys := make([]domain.Fingerprint, len(nested))
	for i := range nested {
		k, err := s.engine.Derived(action, fmt.Sprintf("nested-%d", i))
		if err != nil {
			return err
		}
		keys[i] = k
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var shared []*handle
	for i, obj := range nested {
		shared = append(shared, s.putLocked(keys[i], obj).handles...)
	}
	e := s.putLocked(key, result)
	e.handles = shared
	return nil
}

func (s *Store) storeComposite(action domain.Action, key domain.Fingerprint, c *domain.Composite) error {
	compoundKey, err := s.engine.Derived(action, "compound")
	if err != nil {
		return err
	}
	childKeys := make([]domain.Fingerprint, len(c.Shapes))
	for i := range c.Shapes {
		if childKeys[i], err = s.engine.Derived(action, i); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var shared []*handle
	if c.Compound != nil {
		shared = append(shared, s.putLocked(compoundKey, c.Compound).handles...)
	}
	for i, child := range c.Shapes {
		if child.Shape == nil {
			continue
		}
		shared = append(shared, s.putLocked(childKeys[i], child.Shape).handles...)
	}

	e := s.putLocked(key, c)
	e.handles = shared
	return nil
}

// objectSlice reports whether v is a slice whose every element is a live object.
func objectSlice(v any) ([]domain.Object, bool) {
	switch t := v.(type) {
	case []domain.Object:
		return t, true
	case []any:
		objs := make([]domain.Object, len(t))
		for i, el := range t {
			obj, ok := el.(domain.Object)
			if !ok {
				return nil, false
			}
			objs[i] = obj
		}
		return objs, true
	case []byte:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	objs := make([]domain.Object, rv.Len())
	for i := range rv.Len() {
		obj, ok := rv.Index(i).Interface().(domain.Object)
		if !ok {
			return nil, false
		}
		objs[i] = obj
	}
	return objs, true
}

// nestedObjects collects the kernel objects inside a plain value in a stable
// order: slices by index, maps by sorted key.
func nestedObjects(v any, out []domain.Object) []domain.Object {
	switch t := v.(type) {
	case nil, []byte:
		return out
	case domain.Object:
		return append(out, t)
	case *domain.Composite:
		if t == nil {
			return out
		}
		if t.Compound != nil {
			out = append(out, t.Compound)
		}
		for _, child := range t.Shapes {
			if child.Shape != nil {
				out = append(out, child.Shape)
			}
		}
		return nestedObjects(t.Data, out)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if !containsObjects(rv) {
			return out
		}
		for i := range rv.Len() {
			out = nestedObjects(rv.Index(i).Interface(), out)
		}
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return out
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		slices.Sort(keys)
		for _, k := range keys {
			out = nestedObjects(rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface(), out)
		}
	}
	return out
}

func containsObjects(rv reflect.Value) bool {
	switch rv.Type().Elem().Kind() {
	case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Array, reflect.Struct:
		return true
	default:
		return false
	}
}
