package worker

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/prometheus/client_golang/prometheus"
	"go.trai.ch/kernelproxy/internal/adapters/logger"    //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kernelproxy/internal/adapters/refkernel" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kernelproxy/internal/adapters/telemetry" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
)

// NodeID is the unique identifier for the worker factory Graft node.
const NodeID graft.ID = "engine.worker"

func init() {
	graft.Register(graft.Node[*Factory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			logger.NodeID,
			telemetry.TracerNodeID,
			refkernel.NodeID,
		},
		Run: func(ctx context.Context) (*Factory, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			tracer, err := graft.Dep[ports.Tracer](ctx)
			if err != nil {
				return nil, err
			}

			kernel, err := graft.Dep[ports.Kernel](ctx)
			if err != nil {
				return nil, err
			}

			return NewFactory(log, tracer, kernel), nil
		},
	})
}

// Factory builds workers bound to the shared logger, tracer and kernel.
type Factory struct {
	logger ports.Logger
	tracer ports.Tracer
	kernel ports.Kernel
}

// NewFactory creates a worker factory.
func NewFactory(log ports.Logger, tracer ports.Tracer, kernel ports.Kernel) *Factory {
	return &Factory{logger: log, tracer: tracer, kernel: kernel}
}

// New builds a worker for cfg with the factory's collaborators attached.
// A nil registerer disables metrics.
func (f *Factory) New(cfg domain.CacheConfig, reg prometheus.Registerer) (*Worker, error) {
	return New(cfg,
		WithLogger(f.logger),
		WithTracer(f.tracer),
		WithKernel(f.kernel),
		WithRegisterer(reg),
	)
}
