package metrics

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/prometheus/client_golang/prometheus"
)

// NodeID is the unique identifier for the metrics registry Graft node.
const NodeID graft.ID = "adapter.metrics"

func init() {
	graft.Register(graft.Node[*prometheus.Registry]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*prometheus.Registry, error) {
			return NewRegistry(), nil
		},
	})
}
