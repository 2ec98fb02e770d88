package refkernel

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kernelproxy/internal/core/ports"
)

// NodeID is the unique identifier for the reference kernel Graft node.
const NodeID graft.ID = "adapter.refkernel"

func init() {
	graft.Register(graft.Node[ports.Kernel]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.Kernel, error) {
			return New(), nil
		},
	})
}
