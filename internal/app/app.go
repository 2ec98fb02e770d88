// Package app implements the application layer for kernelproxy.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"go.trai.ch/kernelproxy/internal/adapters/config"
	"go.trai.ch/kernelproxy/internal/adapters/daemon"
	"go.trai.ch/kernelproxy/internal/adapters/metrics"
	"go.trai.ch/kernelproxy/internal/adapters/stdio"
	"go.trai.ch/kernelproxy/internal/adapters/telemetry"
	"go.trai.ch/kernelproxy/internal/adapters/watcher"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/kernelproxy/internal/engine/fingerprint"
	"go.trai.ch/kernelproxy/internal/engine/worker"
	"go.trai.ch/kernelproxy/internal/ui/output"
	"go.trai.ch/kernelproxy/internal/ui/style"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// reloadWindow coalesces the bursts of events editors produce when saving.
const reloadWindow = 200 * time.Millisecond

// logConfigurer is implemented by loggers whose level can change at runtime.
type logConfigurer interface {
	Configure(cfg domain.LogConfig) error
}

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	factory      *worker.Factory
	connector    ports.DaemonConnector
	watcher      ports.Watcher
	registry     *prometheus.Registry

	root   string
	stdin  io.Reader
	stdout io.Writer
}

// New creates a new App instance rooted at the working directory.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	factory *worker.Factory,
	connector ports.DaemonConnector,
	w ports.Watcher,
	registry *prometheus.Registry,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		factory:      factory,
		connector:    connector,
		watcher:      w,
		registry:     registry,
		root:         ".",
		stdin:        os.Stdin,
		stdout:       os.Stdout,
	}
}

// WithRoot sets the project directory the config file and daemon socket are
// resolved against.
func (a *App) WithRoot(root string) *App {
	a.root = root
	return a
}

// WithIO replaces the standard streams. Used by tests.
func (a *App) WithIO(in io.Reader, out io.Writer) *App {
	a.stdin = in
	a.stdout = out
	return a
}

// configPath returns the config file that applies to the project root.
func (a *App) configPath() string {
	return config.Find(a.root)
}

func (a *App) loadConfig() (domain.Config, error) {
	cfg, err := a.configLoader.Load(a.configPath())
	if err != nil {
		return domain.Config{}, zerr.Wrap(err, "failed to load configuration")
	}
	a.applyLogConfig(cfg.Log)
	return cfg, nil
}

func (a *App) applyLogConfig(cfg domain.LogConfig) {
	lc, ok := a.logger.(logConfigurer)
	if !ok {
		return
	}
	if err := lc.Configure(cfg); err != nil {
		a.logger.Warn("ignoring log configuration: " + err.Error())
	}
}

// Serve runs a worker that reads requests from stdin and writes messages to
// stdout until the input ends or ctx is done.
func (a *App) Serve(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	shutdown := telemetry.Setup(a.logger)
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	w, err := a.factory.New(cfg.Cache, a.registry)
	if err != nil {
		return zerr.Wrap(err, "failed to create worker")
	}
	return stdio.NewServer(w, a.logger).Serve(ctx, a.stdin, a.stdout)
}

// ServeDaemon runs the worker behind the gRPC daemon. The config file is
// watched and the eviction threshold and log level are reloaded on change.
// A metrics endpoint is served when configured.
func (a *App) ServeDaemon(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	shutdown := telemetry.Setup(a.logger)
	defer func() { _ = shutdown(context.WithoutCancel(ctx)) }()

	w, err := a.factory.New(cfg.Cache, a.registry)
	if err != nil {
		return zerr.Wrap(err, "failed to create worker")
	}

	lifecycle := daemon.NewLifecycle(cfg.Daemon.IdleTimeout)
	srv := daemon.NewServer(w, lifecycle, cfg.Daemon.SocketPath(a.root),
		daemon.WithStats(w),
		daemon.WithLogger(a.logger),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return srv.Serve(gctx)
	})
	g.Go(func() error {
		return a.watchConfig(gctx, w)
	})
	if cfg.Daemon.MetricsAddr != "" && a.registry != nil {
		g.Go(func() error {
			a.logger.Info("serving metrics on " + cfg.Daemon.MetricsAddr + metrics.Path)
			return metrics.Serve(gctx, cfg.Daemon.MetricsAddr, a.registry)
		})
	}
	return g.Wait()
}

func (a *App) watchConfig(ctx context.Context, w *worker.Worker) error {
	if a.watcher == nil {
		return nil
	}
	path := a.configPath()
	if err := a.watcher.Start(ctx, path); err != nil {
		a.logger.Warn("config reload disabled: " + err.Error())
		return nil
	}
	defer func() { _ = a.watcher.Stop() }()

	debouncer := watcher.NewDebouncer(reloadWindow, func() { a.reload(path, w) })
	defer debouncer.Stop()

	for range a.watcher.Events() {
		debouncer.Trigger()
	}
	return nil
}

func (a *App) reload(path string, w *worker.Worker) {
	cfg, err := a.configLoader.Load(path)
	if err != nil {
		a.logger.Warn("config reload failed: " + err.Error())
		return
	}
	w.SetEvictionThreshold(cfg.Cache.EvictionThreshold)
	a.applyLogConfig(cfg.Log)
	a.logger.Info(fmt.Sprintf("config reloaded, eviction threshold %d", w.EvictionThreshold()))
}

// CallOptions configures Call.
type CallOptions struct {
	// Local runs the operation in a fresh in-process worker instead of the daemon.
	Local bool
}

// Call runs one operation and prints the reply frame as JSON. An error frame
// yields ErrCallFailed after it was printed.
func (a *App) Call(ctx context.Context, functionName string, inputs map[string]any, opts CallOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	action := domain.Action{FunctionName: functionName, Inputs: inputs}

	var reply domain.Message
	if opts.Local {
		reply, err = a.callLocal(ctx, cfg, action)
	} else {
		reply, err = a.callDaemon(ctx, cfg, action)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(reply); err != nil {
		return zerr.Wrap(err, "failed to write reply")
	}
	if reply.Failed() {
		return zerr.With(zerr.Wrap(domain.ErrCallFailed, functionName), "uid", reply.UID)
	}
	return nil
}

func (a *App) callLocal(ctx context.Context, cfg domain.Config, action domain.Action) (domain.Message, error) {
	w, err := a.factory.New(cfg.Cache, nil)
	if err != nil {
		return domain.Message{}, zerr.Wrap(err, "failed to create worker")
	}
	var reply domain.Message
	w.Handle(ctx, domain.Request{Action: action, UID: "local"}, func(m domain.Message) {
		if !m.Busy {
			reply = m
		}
	})
	return reply, nil
}

func (a *App) callDaemon(ctx context.Context, cfg domain.Config, action domain.Action) (domain.Message, error) {
	client, err := a.connector.Connect(ctx, a.root, cfg.Daemon)
	if err != nil {
		return domain.Message{}, zerr.Wrap(err, "failed to connect to daemon")
	}
	defer func() { _ = client.Close() }()

	return client.Call(ctx, action, func() {
		a.logger.Debug(action.FunctionName + " accepted")
	})
}

// DaemonStatus prints the state of the daemon serving the project root.
func (a *App) DaemonStatus(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	out := output.New(a.stdout)
	label := lipgloss.NewStyle().Foreground(style.Muted)

	if !a.connector.IsRunning(a.root, cfg.Daemon) {
		_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(style.Caution).Render(style.Warning+" daemon is not running"))
		return nil
	}
	client, err := a.connector.Dial(ctx, a.root, cfg.Daemon)
	if err != nil {
		return zerr.Wrap(err, "failed to connect to daemon")
	}
	defer func() { _ = client.Close() }()

	status, err := client.Status(ctx)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintln(out, lipgloss.NewStyle().Foreground(style.Success).Render(style.Check+" daemon is running"))
	rows := [][2]string{
		{"pid", fmt.Sprint(status.PID)},
		{"socket", cfg.Daemon.SocketPath(a.root)},
		{"uptime", status.Uptime.String()},
		{"idle shutdown in", status.IdleRemaining.String()},
		{"cached objects", fmt.Sprint(status.Cache.Entries)},
		{"used hashes", fmt.Sprint(status.Cache.Used)},
		{"hits / misses", fmt.Sprintf("%d / %d", status.Cache.Hits, status.Cache.Misses)},
		{"evictions", fmt.Sprint(status.Cache.Evictions)},
	}
	for _, row := range rows {
		_, _ = fmt.Fprintf(out, "  %s %s\n", label.Render(fmt.Sprintf("%-17s", row[0])), row[1])
	}
	return nil
}

// StopDaemon asks the daemon to shut down. It is not an error when no daemon runs.
func (a *App) StopDaemon(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if !a.connector.IsRunning(a.root, cfg.Daemon) {
		a.logger.Info("daemon is not running")
		return nil
	}
	client, err := a.connector.Dial(ctx, a.root, cfg.Daemon)
	if err != nil {
		return zerr.Wrap(err, "failed to connect to daemon")
	}
	defer func() { _ = client.Close() }()

	if err := client.Shutdown(ctx); err != nil {
		return err
	}
	a.logger.Info("daemon stopped")
	return nil
}

// FingerprintOptions configures Fingerprint.
type FingerprintOptions struct {
	// Raw prints the canonical string instead of the folded hash.
	Raw bool
}

// Fingerprint prints the fingerprint of an operation request.
func (a *App) Fingerprint(_ context.Context, functionName string, inputs map[string]any, opts FingerprintOptions) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	engine := fingerprint.NewEngine(cfg.Cache.Fingerprint, a.logger)
	action := domain.Action{FunctionName: functionName, Inputs: inputs}

	if opts.Raw {
		canonical, err := engine.Canonical(action)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(a.stdout, canonical)
		return err
	}
	key, err := engine.Fingerprint(action)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, key)
	return err
}

// ParseInputs decodes a JSON object given on the command line. An empty
// string yields an empty bag.
func ParseInputs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var inputs map[string]any
	if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidInputs, err.Error()), "inputs", raw)
	}
	if inputs == nil {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidInputs, "null"), "inputs", raw)
	}
	return inputs, nil
}
