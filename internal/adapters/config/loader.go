// Package config provides the configuration loader for kernelproxy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// supportedVersions lists the accepted values of the version field.
var supportedVersions = []string{"", "1"}

// Codecs lists the transport codec names the daemon understands.
var Codecs = []string{"json", "cbor"}

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the configuration at path. A missing file yields the defaults.
func (l *Loader) Load(path string) (domain.Config, error) {
	cfg := domain.DefaultConfig()

	var file Configfile
	err := readAndUnmarshalYAML(path, &file)
	if errors.Is(err, fs.ErrNotExist) {
		l.Logger.Debug(fmt.Sprintf("no config at %s, using defaults", path))
		return cfg, nil
	}
	if err != nil {
		return domain.Config{}, err
	}

	if !slices.Contains(supportedVersions, file.Version) {
		return domain.Config{}, invalid("version", file.Version)
	}
	if err := applyCache(&cfg.Cache, file.Cache); err != nil {
		return domain.Config{}, err
	}
	if err := applyDaemon(&cfg.Daemon, file.Daemon); err != nil {
		return domain.Config{}, err
	}
	if err := applyLog(&cfg.Log, file.Log); err != nil {
		return domain.Config{}, err
	}
	return cfg, nil
}

// Find walks up from dir looking for the config file. It returns the path
// in dir when none of the parents has one.
func Find(dir string) string {
	current := dir
	for {
		candidate := filepath.Join(current, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(current)
		if parent == current {
			return filepath.Join(dir, domain.ConfigFileName)
		}
		current = parent
	}
}

func applyCache(dst *domain.CacheConfig, dto *CacheDTO) error {
	if dto == nil {
		return nil
	}
	if dto.EvictionThreshold != nil {
		if *dto.EvictionThreshold < 1 {
			return invalid("cache.evictionThreshold", *dto.EvictionThreshold)
		}
		dst.EvictionThreshold = *dto.EvictionThreshold
	}
	switch alg := domain.FingerprintAlgorithm(dto.Fingerprint); alg {
	case "":
	case domain.FingerprintRolling, domain.FingerprintXXHash:
		dst.Fingerprint = alg
	default:
		return invalid("cache.fingerprint", dto.Fingerprint)
	}
	return nil
}

func applyDaemon(dst *domain.DaemonConfig, dto *DaemonDTO) error {
	if dto == nil {
		return nil
	}
	if dto.Socket != "" {
		dst.Socket = dto.Socket
	}
	if dto.IdleTimeout != "" {
		d, err := time.ParseDuration(dto.IdleTimeout)
		if err != nil || d < 0 {
			return invalid("daemon.idleTimeout", dto.IdleTimeout)
		}
		dst.IdleTimeout = d
	}
	if dto.Codec != "" {
		if !slices.Contains(Codecs, dto.Codec) {
			return zerr.With(zerr.Wrap(domain.ErrUnknownCodec, dto.Codec), "field", "daemon.codec")
		}
		dst.Codec = dto.Codec
	}
	if dto.MetricsAddr != nil {
		dst.MetricsAddr = *dto.MetricsAddr
	}
	return nil
}

func applyLog(dst *domain.LogConfig, dto *LogDTO) error {
	if dto == nil {
		return nil
	}
	switch dto.Level {
	case "":
	case "debug", "info", "warn", "error":
		dst.Level = dto.Level
	default:
		return invalid("log.level", dto.Level)
	}
	if dto.JSON != nil {
		dst.JSON = *dto.JSON
	}
	return nil
}

func invalid(field string, value any) error {
	err := zerr.Wrap(domain.ErrInvalidConfig, fmt.Sprintf("%s: %v", field, value))
	return zerr.With(zerr.With(err, "field", field), "value", value)
}

func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is chosen by the operator
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return zerr.With(zerr.Wrap(domain.ErrConfigReadFailed, err.Error()), "path", configPath)
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.With(zerr.Wrap(domain.ErrConfigParseFailed, parseErr.Error()), "path", configPath)
	}
	return nil
}
