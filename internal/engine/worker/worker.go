// Package worker implements the request protocol of a kernel worker: it
// resolves references, memoizes kernel operations and serializes results.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/kernelproxy/internal/engine/codec"
	"go.trai.ch/kernelproxy/internal/engine/dispatch"
	"go.trai.ch/kernelproxy/internal/engine/fingerprint"
	"go.trai.ch/kernelproxy/internal/engine/store"
	"go.trai.ch/zerr"
)

// EmitFunc delivers one outgoing message to the caller.
type EmitFunc = func(domain.Message)

type job struct {
	ctx  context.Context
	req  domain.Request
	emit EmitFunc
	done chan struct{}
}

type reservedHandler func(ctx context.Context, inputs map[string]any) (any, error)

// Worker owns one kernel, its object store and the pending plugin
// dependencies. Requests are processed one at a time in arrival order.
type Worker struct {
	engine     *fingerprint.Engine
	store      *store.Store
	resolver   *codec.Resolver
	serializer *codec.Serializer
	logger     ports.Logger
	tracer     ports.Tracer
	metrics    *workerMetrics
	threshold  atomic.Int64
	reserved   map[string]reservedHandler

	mu       sync.RWMutex
	kernel   ports.Kernel
	registry *dispatch.Registry
	pending  map[string]any

	inbox   chan job
	stopped chan struct{}
	runOnce sync.Once
}

var (
	_ ports.RequestHandler = (*Worker)(nil)
	_ ports.StatsReporter  = (*Worker)(nil)
)

// Option configures a Worker.
type Option func(*options)

type options struct {
	logger     ports.Logger
	tracer     ports.Tracer
	registerer prometheus.Registerer
	kernel     ports.Kernel
}

// WithLogger sets the logger.
func WithLogger(logger ports.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTracer sets the tracer used for per-request spans.
func WithTracer(tracer ports.Tracer) Option {
	return func(o *options) { o.tracer = tracer }
}

// WithRegisterer registers worker and store metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithKernel attaches k at construction time.
func WithKernel(k ports.Kernel) Option {
	return func(o *options) { o.kernel = k }
}

// New creates a worker configured by cfg.
func New(cfg domain.CacheConfig, opts ...Option) (*Worker, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = nopLogger{}
	}
	if o.tracer == nil {
		o.tracer = nopTracer{}
	}

	engine := fingerprint.NewEngine(cfg.Fingerprint, o.logger)
	st, err := store.New(engine, store.WithLogger(o.logger), store.WithRegisterer(o.registerer))
	if err != nil {
		return nil, err
	}
	metrics, err := newWorkerMetrics(o.registerer)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to register worker metrics")
	}

	w := &Worker{
		engine:     engine,
		store:      st,
		resolver:   codec.NewResolver(st),
		serializer: codec.NewSerializer(),
		logger:     o.logger,
		tracer:     o.tracer,
		metrics:    metrics,
		pending:    make(map[string]any),
		inbox:      make(chan job),
		stopped:    make(chan struct{}),
	}
	w.SetEvictionThreshold(cfg.EvictionThreshold)
	w.reserved = w.reservedHandlers()

	if o.kernel != nil {
		w.Attach(o.kernel)
	}
	return w, nil
}

// Attach installs the kernel, builds its operation registry and applies any
// dependencies buffered before it existed.
func (w *Worker) Attach(k ports.Kernel) {
	registry := dispatch.NewRegistry(k.Surface())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.kernel = k
	w.registry = registry
	w.store.SetReleaser(k)
	if len(w.pending) > 0 {
		k.InjectDependencies(w.pending)
		w.pending = make(map[string]any)
	}
	w.logger.Debug("kernel attached")
}

// SetEvictionThreshold changes the run-started auto clean trigger. Values
// below one select the default.
func (w *Worker) SetEvictionThreshold(n int) {
	if n < 1 {
		n = domain.DefaultEvictionThreshold
	}
	w.threshold.Store(int64(n))
}

// EvictionThreshold returns the current run-started auto clean trigger.
func (w *Worker) EvictionThreshold() int {
	return int(w.threshold.Load())
}

// Stats returns a snapshot of the object store.
func (w *Worker) Stats() store.Stats {
	return w.store.Stats()
}

// Store exposes the object store.
func (w *Worker) Store() *store.Store {
	return w.store
}

// Engine exposes the fingerprint engine.
func (w *Worker) Engine() *fingerprint.Engine {
	return w.engine
}

// Run processes submitted requests until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	started := false
	w.runOnce.Do(func() { started = true })
	if !started {
		return zerr.New("worker is already running")
	}
	defer close(w.stopped)

	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-w.inbox:
			w.Handle(j.ctx, j.req, j.emit)
			close(j.done)
		}
	}
}

// Submit queues req and blocks until its reply has been emitted. A request
// that was accepted runs to completion even if ctx is cancelled meanwhile.
func (w *Worker) Submit(ctx context.Context, req domain.Request, emit EmitFunc) error {
	j := job{ctx: context.WithoutCancel(ctx), req: req, emit: emit, done: make(chan struct{})}
	select {
	case w.inbox <- j:
	case <-ctx.Done():
		return ctx.Err()
	case <-w.stopped:
		return domain.ErrWorkerStopped
	}
	<-j.done
	return nil
}

// Handle runs one request to completion: it emits the busy notification,
// then exactly one reply.
func (w *Worker) Handle(ctx context.Context, req domain.Request, emit EmitFunc) {
	emit(domain.Busy())

	fn := req.Action.FunctionName
	ctx, span := w.tracer.Start(ctx, fn)
	defer span.End()
	span.SetAttribute("request.uid", req.UID)

	start := time.Now()
	result, err := w.execute(ctx, req.Action, span)
	kind := requestKind(fn)
	if err != nil {
		span.RecordError(err)
		w.metrics.observe(kind, "error", time.Since(start))
		w.logger.Debug(zerr.Wrap(err, "operation "+fn+" failed").Error())
		emit(domain.Failure(req.UID, FailureMessage(err, req.Action)))
		return
	}
	w.metrics.observe(kind, "ok", time.Since(start))
	emit(domain.Reply(req.UID, result))
}

func (w *Worker) execute(ctx context.Context, action domain.Action, span ports.Span) (any, error) {
	if handler, ok := w.reserved[action.FunctionName]; ok {
		span.SetAttribute("operation.reserved", true)
		return handler(ctx, action.Inputs)
	}

	w.mu.RLock()
	registry := w.registry
	w.mu.RUnlock()
	if registry == nil {
		return nil, domain.ErrKernelNotAttached
	}

	inputs, err := w.resolver.ResolveInputs(action.Inputs)
	if err != nil {
		return nil, err
	}
	resolved := domain.Action{FunctionName: action.FunctionName, Inputs: inputs}

	outcome, err := w.store.RunOperation(ctx, resolved, func(ctx context.Context) (any, error) {
		return registry.Invoke(ctx, action.FunctionName, inputs)
	})
	span.SetAttribute("cache.fingerprint", outcome.Key.String())
	span.SetAttribute("cache.hit", outcome.Hit)
	if err != nil {
		return nil, err
	}
	return w.serializer.Serialize(outcome.Value)
}

func requestKind(fn string) string {
	if domain.IsReserved(fn) {
		return "reserved"
	}
	return "kernel"
}
