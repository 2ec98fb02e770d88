package domain

import (
	"path/filepath"
	"time"
)

// FingerprintAlgorithm selects how canonical request strings are folded to 32 bits.
type FingerprintAlgorithm string

const (
	// FingerprintRolling is the bit-exact polynomial rolling hash h = h*31 + c.
	FingerprintRolling FingerprintAlgorithm = "rolling"
	// FingerprintXXHash folds xxhash64 of the canonical string to 32 bits.
	FingerprintXXHash FingerprintAlgorithm = "xxhash"
)

// DefaultEvictionThreshold is the number of distinct fingerprints in a run
// above which the run-started pulse clears the whole cache.
const DefaultEvictionThreshold = 10000

// DefaultIdleTimeout is how long the daemon stays up without requests.
const DefaultIdleTimeout = 30 * time.Minute

// Config is the runtime configuration of the worker and its transports.
type Config struct {
	Cache  CacheConfig
	Daemon DaemonConfig
	Log    LogConfig
}

// CacheConfig configures the object store.
type CacheConfig struct {
	EvictionThreshold int
	Fingerprint       FingerprintAlgorithm
}

// DaemonConfig configures the gRPC daemon.
type DaemonConfig struct {
	Socket      string
	IdleTimeout time.Duration
	Codec       string
	MetricsAddr string
}

// SocketPath resolves the socket against root unless it is absolute.
func (c DaemonConfig) SocketPath(root string) string {
	socket := c.Socket
	if socket == "" {
		socket = DefaultDaemonSocketPath()
	}
	if filepath.IsAbs(socket) {
		return socket
	}
	return filepath.Join(root, socket)
}

// PIDPath returns the PID file that sits next to the socket.
func (c DaemonConfig) PIDPath(root string) string {
	return filepath.Join(filepath.Dir(c.SocketPath(root)), DaemonPIDName)
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string
	JSON  bool
}

// DefaultConfig returns the configuration used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			EvictionThreshold: DefaultEvictionThreshold,
			Fingerprint:       FingerprintRolling,
		},
		Daemon: DaemonConfig{
			Socket:      DefaultDaemonSocketPath(),
			IdleTimeout: DefaultIdleTimeout,
			Codec:       "json",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
