// Package daemon serves a kernel worker over gRPC on a Unix socket and
// provides the client and spawner used by the CLI.
package daemon

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Client implements ports.DaemonClient.
type Client struct {
	conn   *grpc.ClientConn
	health healthpb.HealthClient
}

var _ ports.DaemonClient = (*Client)(nil)

// Dial creates a client for the daemon listening on socket. Frames are
// encoded with codec. The connection is established lazily on first use.
func Dial(socket, codec string) (*Client, error) {
	if !SupportedCodec(codec) {
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownCodec, codec), "codec", codec)
	}
	abs, err := filepath.Abs(socket)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve socket path")
	}

	conn, err := grpc.NewClient("unix://"+abs,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codec)),
	)
	if err != nil {
		return nil, zerr.Wrap(err, "daemon client creation failed")
	}
	return &Client{conn: conn, health: healthpb.NewHealthClient(conn)}, nil
}

// Ping checks the daemon health and resets its idle timer.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return zerr.Wrap(err, domain.ErrDaemonNotRunning.Error())
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return zerr.With(zerr.Wrap(domain.ErrDaemonNotRunning, "daemon is not serving"), "status", resp.GetStatus().String())
	}
	return nil
}

// Status implements ports.DaemonClient.
func (c *Client) Status(ctx context.Context) (*ports.DaemonStatus, error) {
	resp := new(StatusResponse)
	if err := c.conn.Invoke(ctx, statusMethod, &StatusRequest{}, resp); err != nil {
		return nil, zerr.Wrap(err, "daemon status failed")
	}
	return &ports.DaemonStatus{
		Running:       resp.Running,
		PID:           resp.PID,
		Uptime:        time.Duration(resp.UptimeSeconds) * time.Second,
		LastActivity:  time.Unix(resp.LastActivityUnix, 0),
		IdleRemaining: time.Duration(resp.IdleRemainingSeconds) * time.Second,
		Cache:         resp.Cache,
	}, nil
}

// Call sends action under a fresh uid and returns the reply frame. onBusy
// runs when the busy notification arrives.
func (c *Client) Call(ctx context.Context, action domain.Action, onBusy func()) (domain.Message, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := domain.Request{Action: action, UID: uuid.NewString()}
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], callMethod)
	if err != nil {
		return domain.Message{}, zerr.Wrap(err, "daemon call failed")
	}
	if err := stream.SendMsg(&req); err != nil {
		return domain.Message{}, zerr.Wrap(err, "failed to send request")
	}
	if err := stream.CloseSend(); err != nil {
		return domain.Message{}, zerr.Wrap(err, "failed to close request stream")
	}

	for {
		var msg domain.Message
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return domain.Message{}, zerr.With(zerr.Wrap(domain.ErrNoReply, "call "+req.UID), "uid", req.UID)
			}
			return domain.Message{}, zerr.With(zerr.Wrap(err, "daemon call failed"), "uid", req.UID)
		}
		if msg.Busy {
			if onBusy != nil {
				onBusy()
			}
			continue
		}
		if msg.UID != req.UID {
			return domain.Message{}, zerr.With(zerr.New("reply for a different request"), "uid", msg.UID)
		}
		return msg, nil
	}
}

// Shutdown asks the daemon to stop after its in-flight calls.
func (c *Client) Shutdown(ctx context.Context) error {
	if err := c.conn.Invoke(ctx, shutdownMethod, &ShutdownRequest{Graceful: true}, new(ShutdownResponse)); err != nil {
		return zerr.Wrap(err, "daemon shutdown failed")
	}
	return nil
}

// Close implements ports.DaemonClient.
func (c *Client) Close() error {
	return c.conn.Close()
}
