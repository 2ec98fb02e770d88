package daemon

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Server exposes a worker over gRPC on a Unix socket.
type Server struct {
	handler   ports.RequestHandler
	stats     ports.StatsReporter
	logger    ports.Logger
	lifecycle *Lifecycle
	socket    string
	pidFile   string

	grpcServer *grpc.Server
	health     *health.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStats reports the counters of r in Status responses.
func WithStats(r ports.StatsReporter) ServerOption {
	return func(s *Server) { s.stats = r }
}

// WithLogger sets the server logger.
func WithLogger(l ports.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a server that listens on socket and writes its PID next
// to it. The handler is run by Serve.
func NewServer(handler ports.RequestHandler, lifecycle *Lifecycle, socket string, opts ...ServerOption) *Server {
	s := &Server{
		handler:   handler,
		lifecycle: lifecycle,
		socket:    socket,
		pidFile:   filepath.Join(filepath.Dir(socket), domain.DaemonPIDName),
		health:    health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = discard{}
	}

	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.touchUnary),
		grpc.ChainStreamInterceptor(s.touchStream),
	)
	s.grpcServer.RegisterService(&serviceDesc, s)
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve runs the worker and the gRPC server until ctx is done, the idle
// timer fires or a Shutdown request arrives. In-flight calls finish first.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := s.listen()
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener is Serve on an existing listener. The socket and PID files
// are removed on return.
func (s *Server) ServeListener(ctx context.Context, lis net.Listener) error {
	if err := s.writePIDFile(); err != nil {
		_ = lis.Close()
		return err
	}
	defer s.cleanup()

	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.handler.Run(workerCtx)
	})
	g.Go(func() error {
		defer stopWorker()
		return s.grpcServer.Serve(lis)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.lifecycle.Done():
			s.logger.Info("daemon shutting down")
		}
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return nil
	})

	s.logger.Info("daemon listening on " + s.socket)
	return g.Wait()
}

func (s *Server) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.socket), domain.DirPerm); err != nil {
		return nil, zerr.Wrap(err, "failed to create daemon directory")
	}
	if err := os.Remove(s.socket); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, zerr.With(zerr.Wrap(err, "failed to remove stale socket"), "socket", s.socket)
	}

	lis, err := net.Listen("unix", s.socket)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "failed to listen on socket"), "socket", s.socket)
	}
	if err := os.Chmod(s.socket, domain.SocketPerm); err != nil {
		_ = lis.Close()
		return nil, zerr.Wrap(err, "failed to set socket permissions")
	}
	return lis, nil
}

func (s *Server) writePIDFile() error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(s.pidFile, []byte(pid), domain.PrivateFilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write PID file"), "path", s.pidFile)
	}
	return nil
}

func (s *Server) cleanup() {
	_ = os.Remove(s.socket)
	_ = os.Remove(s.pidFile)
}

// Call submits one request to the worker and streams its frames back.
func (s *Server) Call(req *domain.Request, stream grpc.ServerStream) error {
	defer s.lifecycle.Touch()
	s.logger.Debug("call " + req.Action.FunctionName + " uid=" + req.UID)

	var sendErr error
	err := s.handler.Submit(stream.Context(), *req, func(msg domain.Message) {
		if sendErr == nil {
			sendErr = stream.SendMsg(&msg)
		}
	})
	switch {
	case errors.Is(err, domain.ErrWorkerStopped):
		return status.Error(codes.Unavailable, err.Error())
	case err != nil:
		return status.FromContextError(err).Err()
	}
	return sendErr
}

// Status reports the daemon state.
func (s *Server) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	resp := &StatusResponse{
		Running:              true,
		PID:                  os.Getpid(),
		UptimeSeconds:        int64(s.lifecycle.Uptime().Seconds()),
		LastActivityUnix:     s.lifecycle.LastActivity().Unix(),
		IdleRemainingSeconds: int64(s.lifecycle.IdleRemaining().Seconds()),
	}
	if s.stats != nil {
		resp.Cache = s.stats.Stats()
	}
	return resp, nil
}

// Shutdown triggers a graceful stop once the current calls complete.
func (s *Server) Shutdown(context.Context, *ShutdownRequest) (*ShutdownResponse, error) {
	s.lifecycle.Shutdown()
	return &ShutdownResponse{Success: true}, nil
}

func (s *Server) touchUnary(
	ctx context.Context,
	req any,
	_ *grpc.UnaryServerInfo,
	next grpc.UnaryHandler,
) (any, error) {
	s.lifecycle.Touch()
	return next(ctx, req)
}

func (s *Server) touchStream(
	srv any,
	ss grpc.ServerStream,
	_ *grpc.StreamServerInfo,
	next grpc.StreamHandler,
) error {
	s.lifecycle.Touch()
	return next(srv, ss)
}

type discard struct{}

func (discard) Debug(string) {}
func (discard) Info(string)  {}
func (discard) Warn(string)  {}
func (discard) Error(error)  {}
