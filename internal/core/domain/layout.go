package domain

import "path/filepath"

const (
	// DirName is the name of the per-project runtime directory.
	DirName = ".kernelproxy"

	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "kernelproxy.yaml"

	// DaemonSocketName is the name of the daemon Unix socket.
	DaemonSocketName = "daemon.sock"

	// DaemonPIDName is the name of the daemon PID file.
	DaemonPIDName = "daemon.pid"

	// DaemonLogName is the name of the daemon log file.
	DaemonLogName = "daemon.log"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600

	// SocketPerm restricts the daemon socket to its owner.
	SocketPerm = 0o600
)

// DefaultDaemonSocketPath returns the daemon socket path relative to the project root.
func DefaultDaemonSocketPath() string {
	return filepath.Join(DirName, DaemonSocketName)
}
