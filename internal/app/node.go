package app

import (
	"context"

	"github.com/grindlemire/graft"
	"github.com/prometheus/client_golang/prometheus"
	"go.trai.ch/kernelproxy/internal/adapters/config"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kernelproxy/internal/adapters/daemon"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kernelproxy/internal/adapters/logger"  //nolint:depguard // Wired in app layer
	"go.trai.ch/kernelproxy/internal/adapters/metrics" //nolint:depguard // Wired in app layer
	"go.trai.ch/kernelproxy/internal/adapters/watcher" //nolint:depguard // Wired in app layer
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/kernelproxy/internal/engine/worker"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			worker.NodeID,
			daemon.NodeID,
			watcher.NodeID,
			metrics.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return &Components{App: app, Logger: log}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}

	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}

	factory, err := graft.Dep[*worker.Factory](ctx)
	if err != nil {
		return nil, err
	}

	connector, err := graft.Dep[ports.DaemonConnector](ctx)
	if err != nil {
		return nil, err
	}

	w, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}

	registry, err := graft.Dep[*prometheus.Registry](ctx)
	if err != nil {
		return nil, err
	}

	return New(loader, log, factory, connector, w, registry), nil
}
