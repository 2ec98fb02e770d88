package ports

import (
	"context"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

// RequestHandler is the worker as seen by transports.
//
//go:generate mockgen -source=worker.go -destination=mocks/mock_worker.go -package=mocks
type RequestHandler interface {
	// Run processes submitted requests until ctx is done.
	Run(ctx context.Context) error
	// Submit queues req and blocks until its reply has been emitted. emit
	// receives the busy notification first and the reply second.
	Submit(ctx context.Context, req domain.Request, emit func(domain.Message)) error
}

// StatsReporter exposes the object store counters of a worker.
type StatsReporter interface {
	Stats() domain.CacheStats
}
