package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.trai.ch/kernelproxy/internal/adapters/refkernel"
	"go.trai.ch/kernelproxy/internal/adapters/telemetry"
	"go.trai.ch/kernelproxy/internal/app"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports/mocks"
	"go.trai.ch/kernelproxy/internal/engine/worker"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	loader *mocks.MockConfigLoader
	logger *mocks.MockLogger
	app    *app.App
	root   string
	stdout *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		loader: mocks.NewMockConfigLoader(ctrl),
		logger: mocks.NewMockLogger(ctrl),
		root:   t.TempDir(),
		stdout: new(bytes.Buffer),
	}
	f.logger.EXPECT().Debug(gomock.Any()).AnyTimes()
	factory := worker.NewFactory(f.logger, telemetry.NewOTelTracer("test"), refkernel.New())
	f.app = app.New(
		f.loader,
		f.logger,
		factory,
		mocks.NewMockDaemonConnector(ctrl),
		mocks.NewMockWatcher(ctrl),
		prometheus.NewRegistry(),
	).WithRoot(f.root).WithIO(strings.NewReader(""), f.stdout)
	return f
}

func (f *fixture) provider(_ context.Context) (*app.Components, func(), error) {
	return &app.Components{App: f.app, Logger: f.logger}, func() {}, nil
}

func (f *fixture) configPath() string {
	return filepath.Join(f.root, domain.ConfigFileName)
}

// TestRun_Success verifies that run returns 0 when the command succeeds.
func TestRun_Success(t *testing.T) {
	f := newFixture(t)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)

	exitCode := run(context.Background(), []string{"version"}, stdout, stderr, f.provider)
	assert.Equal(t, 0, exitCode)
	assert.Contains(t, stdout.String(), "kernelproxy version")
}

// TestRun_InitializationError verifies that run returns 1 when component initialization fails.
func TestRun_InitializationError(t *testing.T) {
	provider := func(_ context.Context) (*app.Components, func(), error) {
		return nil, nil, errors.New("init failed")
	}

	stderr := new(bytes.Buffer)
	exitCode := run(context.Background(), []string{"version"}, new(bytes.Buffer), stderr, provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, stderr.String(), "Error: init failed")
}

// TestRun_ExecutionError verifies that run logs the error and returns 1 when a command fails.
func TestRun_ExecutionError(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(f.configPath()).Return(domain.Config{}, errors.New("load failed"))
	f.logger.EXPECT().Error(gomock.Any()).Times(1)

	exitCode := run(context.Background(), []string{"call", "cleanAllCache", "--local"}, new(bytes.Buffer), new(bytes.Buffer), f.provider)
	assert.Equal(t, 1, exitCode)
}

// TestRun_FailureReply verifies that a failure reply exits 1 without logging twice.
func TestRun_FailureReply(t *testing.T) {
	f := newFixture(t)
	f.loader.EXPECT().Load(f.configPath()).Return(domain.DefaultConfig(), nil)

	exitCode := run(context.Background(),
		[]string{"call", "shapes.wire.getWireLength", "--local", "--inputs", `{"shape":{"ref":"missing"}}`},
		new(bytes.Buffer), new(bytes.Buffer), f.provider)

	assert.Equal(t, 1, exitCode)
	assert.Contains(t, f.stdout.String(), `"error"`)
}
