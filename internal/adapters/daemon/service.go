package daemon

import (
	"context"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"google.golang.org/grpc"
)

// ServiceName is the gRPC service the daemon exposes. Health checks use it
// as their service name.
const ServiceName = "kernelproxy.v1.Worker"

const (
	callMethod     = "/" + ServiceName + "/Call"
	statusMethod   = "/" + ServiceName + "/Status"
	shutdownMethod = "/" + ServiceName + "/Shutdown"
)

// StatusRequest asks for the daemon status.
type StatusRequest struct{}

// StatusResponse reports the daemon state and its object store counters.
type StatusResponse struct {
	Running              bool              `json:"running"`
	PID                  int               `json:"pid"`
	UptimeSeconds        int64             `json:"uptimeSeconds"`
	LastActivityUnix     int64             `json:"lastActivityUnix"`
	IdleRemainingSeconds int64             `json:"idleRemainingSeconds"`
	Cache                domain.CacheStats `json:"cache"`
}

// ShutdownRequest asks the daemon to stop.
type ShutdownRequest struct {
	Graceful bool `json:"graceful"`
}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Success bool `json:"success"`
}

// workerService is implemented by Server. Call streams the busy notification
// followed by the reply frame.
type workerService interface {
	Call(req *domain.Request, stream grpc.ServerStream) error
	Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error)
	Shutdown(ctx context.Context, req *ShutdownRequest) (*ShutdownResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*workerService)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Shutdown", Handler: shutdownHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Call", Handler: callHandler, ServerStreams: true},
	},
	Metadata: "kernelproxy/v1/worker",
}

func callHandler(srv any, stream grpc.ServerStream) error {
	req := new(domain.Request)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(workerService).Call(req, stream)
}

func statusHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerService).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: statusMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(workerService).Status(ctx, req.(*StatusRequest))
	})
}

func shutdownHandler(
	srv any,
	ctx context.Context,
	dec func(any) error,
	interceptor grpc.UnaryServerInterceptor,
) (any, error) {
	in := new(ShutdownRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(workerService).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: shutdownMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(workerService).Shutdown(ctx, req.(*ShutdownRequest))
	})
}
