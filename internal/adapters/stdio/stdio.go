// Package stdio exchanges newline-delimited JSON envelopes with a parent
// process over standard input and output.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"go.trai.ch/kernelproxy/internal/core/domain"
	"go.trai.ch/kernelproxy/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// maxLineSize bounds one request line. Inputs can carry whole files.
const maxLineSize = 64 << 20

// ErrMalformedRequest is returned for lines that are not request envelopes.
var ErrMalformedRequest = zerr.New("malformed request line")

// Server feeds requests read from a stream to a worker and writes every
// emitted message back as one JSON line.
type Server struct {
	handler ports.RequestHandler
	logger  ports.Logger

	mu  sync.Mutex
	enc *json.Encoder
}

// NewServer creates a stdio server for handler.
func NewServer(handler ports.RequestHandler, logger ports.Logger) *Server {
	return &Server{handler: handler, logger: logger}
}

// Serve runs the worker and reads requests from r until r is exhausted or
// ctx is done. Replies are written to w in request order.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.enc = json.NewEncoder(w)
	s.enc.SetEscapeHTML(false)

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	// A blocked read only returns once its source is closed.
	if c, ok := r.(io.Closer); ok {
		release := context.AfterFunc(ctx, func() { _ = c.Close() })
		defer release()
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		return s.handler.Run(gctx)
	})
	g.Go(func() error {
		defer stop()
		return s.read(gctx, r)
	})
	return g.Wait()
}

func (s *Server) read(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		req, err := decode(line)
		if err != nil {
			s.logger.Error(err)
			s.emit(domain.Failure(req.UID, err.Error()))
			continue
		}
		if err := s.handler.Submit(ctx, req, s.emit); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, domain.ErrWorkerStopped) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return zerr.Wrap(err, "failed to read requests")
	}
	s.logger.Debug("input closed")
	return nil
}

func decode(line []byte) (domain.Request, error) {
	var req domain.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return req, zerr.Wrap(ErrMalformedRequest, err.Error())
	}
	if req.Action.FunctionName == "" {
		return req, zerr.With(zerr.Wrap(ErrMalformedRequest, "missing action.functionName"), "uid", req.UID)
	}
	return req, nil
}

func (s *Server) emit(m domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(m); err != nil {
		s.logger.Error(zerr.Wrap(err, "failed to write message"))
	}
}
