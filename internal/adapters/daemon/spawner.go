package daemon

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	pollInterval    = 100 * time.Millisecond
	maxPollDuration = 5 * time.Second
	pingTimeout     = time.Second
)

// Connector implements ports.DaemonConnector by re-executing the current
// binary as "daemon serve".
type Connector struct {
	executablePath string
}

var _ ports.DaemonConnector = (*Connector)(nil)

// NewConnector creates a connector for the running executable.
func NewConnector() (*Connector, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to determine executable path")
	}
	return &Connector{executablePath: exe}, nil
}

// Dial returns a client for a daemon that already answers health checks.
func (c *Connector) Dial(ctx context.Context, root string, cfg domain.DaemonConfig) (ports.DaemonClient, error) {
	client, err := Dial(cfg.SocketPath(root), cfg.Codec)
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Connect returns a client, spawning the daemon if it does not answer.
func (c *Connector) Connect(ctx context.Context, root string, cfg domain.DaemonConfig) (ports.DaemonClient, error) {
	if client, err := c.Dial(ctx, root, cfg); err == nil {
		return client, nil
	}

	if err := c.Spawn(ctx, root, cfg); err != nil {
		return nil, err
	}

	client, err := c.Dial(ctx, root, cfg)
	if err != nil {
		return nil, zerr.Wrap(err, "daemon started but is not responsive")
	}
	return client, nil
}

// IsRunning reports whether a daemon answers on the configured socket.
func (c *Connector) IsRunning(root string, cfg domain.DaemonConfig) bool {
	if root == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.isRunning(ctx, root, cfg)
}

func (c *Connector) isRunning(ctx context.Context, root string, cfg domain.DaemonConfig) bool {
	if _, err := os.Stat(cfg.SocketPath(root)); err != nil {
		return false
	}
	client, err := c.Dial(ctx, root, cfg)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// Spawn starts the daemon in its own session with output appended to the
// daemon log, then waits until it answers.
func (c *Connector) Spawn(ctx context.Context, root string, cfg domain.DaemonConfig) error {
	if root == "" {
		return zerr.New("root cannot be empty")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return zerr.Wrap(err, "failed to resolve absolute root path")
	}

	dir := filepath.Dir(cfg.SocketPath(absRoot))
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.Wrap(err, "failed to create daemon directory")
	}

	logPath := filepath.Join(dir, domain.DaemonLogName)
	//nolint:gosec // G304: logPath is derived from the configured socket directory
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, domain.PrivateFilePerm)
	if err != nil {
		return zerr.Wrap(err, "failed to open daemon log")
	}

	//nolint:gosec // G204: executablePath is our own binary, args are fixed literals
	cmd := exec.Command(c.executablePath, "daemon", "serve")
	cmd.Dir = absRoot
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		_ = logFile.Close()
		return zerr.Wrap(err, domain.ErrDaemonSpawnFailed.Error())
	}

	go func() {
		_ = cmd.Wait()
		_ = logFile.Close()
	}()

	return c.waitForStartup(ctx, absRoot, cfg)
}

func (c *Connector) waitForStartup(ctx context.Context, root string, cfg domain.DaemonConfig) error {
	ctx, cancel := context.WithTimeout(ctx, maxPollDuration)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if c.isRunning(ctx, root, cfg) {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				socket := cfg.SocketPath(root)
				return zerr.With(zerr.Wrap(domain.ErrDaemonStartTimeout, socket), "socket", socket)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
