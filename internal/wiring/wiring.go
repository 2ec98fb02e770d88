// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/kernelproxy/internal/adapters/config"
	_ "go.trai.ch/kernelproxy/internal/adapters/daemon"
	_ "go.trai.ch/kernelproxy/internal/adapters/logger"
	_ "go.trai.ch/kernelproxy/internal/adapters/metrics"
	_ "go.trai.ch/kernelproxy/internal/adapters/refkernel"
	_ "go.trai.ch/kernelproxy/internal/adapters/telemetry"
	_ "go.trai.ch/kernelproxy/internal/adapters/watcher"
	// Register app and engine nodes.
	_ "go.trai.ch/kernelproxy/internal/app"
	_ "go.trai.ch/kernelproxy/internal/engine/worker"
)
