package ports

import "go.trai.ch/kernelproxy/internal/core/domain"

// ConfigLoader defines the interface for loading the worker configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration from the given file path.
	// A missing file yields the default configuration.
	Load(path string) (domain.Config, error)
}
