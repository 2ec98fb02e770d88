package ports

import (
	"context"
	"time"

	"go.trai.ch/kernelproxy/internal/core/domain"
)

//go:generate mockgen -source=daemon.go -destination=mocks/mock_daemon.go -package=mocks

// DaemonStatus represents the current state of the daemon.
type DaemonStatus struct {
	Running       bool
	PID           int
	Uptime        time.Duration
	LastActivity  time.Time
	IdleRemaining time.Duration
	Codec         string
	Cache         domain.CacheStats
}

// DaemonClient defines the interface for communicating with the daemon.
type DaemonClient interface {
	// Ping checks if the daemon is alive and resets the inactivity timer.
	Ping(ctx context.Context) error

	// Status returns the current daemon status.
	Status(ctx context.Context) (*DaemonStatus, error)

	// Call sends an operation request and waits for its reply.
	// onBusy is invoked when the worker acknowledges the request.
	Call(ctx context.Context, action domain.Action, onBusy func()) (domain.Message, error)

	// Shutdown requests a graceful daemon shutdown.
	Shutdown(ctx context.Context) error

	// Close releases client resources.
	Close() error
}

// DaemonConnector manages daemon lifecycle from the CLI perspective.
// Relative socket paths in cfg are resolved against root.
type DaemonConnector interface {
	// Connect returns a client to the daemon, spawning it if necessary.
	Connect(ctx context.Context, root string, cfg domain.DaemonConfig) (DaemonClient, error)

	// Dial returns a client to an already running daemon.
	Dial(ctx context.Context, root string, cfg domain.DaemonConfig) (DaemonClient, error)

	// IsRunning checks if the daemon process is currently running.
	IsRunning(root string, cfg domain.DaemonConfig) bool

	// Spawn starts a new daemon process in the background.
	Spawn(ctx context.Context, root string, cfg domain.DaemonConfig) error
}
