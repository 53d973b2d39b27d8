package server

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/skilleval/engine/pkg/types"
)

// Handler is the function signature for JSON-RPC method handlers. ctx is
// canceled when the server stops.
type Handler func(ctx context.Context, session *Session, params json.RawMessage) (any, *types.RPCError)

// defaultMaxConcurrent is the default value for maxConcurrent (sequential behavior).
const defaultMaxConcurrent = 1

// Server reads NDJSON requests from an io.Reader and writes NDJSON responses to an io.Writer.
type Server struct {
	reader        *bufio.Scanner
	writer        *bufio.Writer
	mu            sync.Mutex // protects writer
	session       *Session
	handlers      map[string]Handler
	logger        *slog.Logger
	maxConcurrent int
	semaphore     chan struct{}
	inflight      sync.WaitGroup
}

// New creates a sequential Server reading from in and writing to out.
func New(in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	return NewWithConcurrency(in, out, logger, defaultMaxConcurrent)
}

// NewWithConcurrency creates a Server with a configurable concurrency limit.
// When maxConcurrent <= 1, requests are processed sequentially (default behavior).
// When maxConcurrent > 1, up to maxConcurrent requests are dispatched concurrently,
// each holding a semaphore slot for the duration of handler execution.
func NewWithConcurrency(in io.Reader, out io.Writer, logger *slog.Logger, maxConcurrent int) *Server {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	scanner := bufio.NewScanner(in)
	// 10 MB buffer for large traces.
	const maxScanBuf = 10 * 1024 * 1024
	scanner.Buffer(make([]byte, maxScanBuf), maxScanBuf)

	return &Server{
		reader:        scanner,
		writer:        bufio.NewWriter(out),
		session:       NewSession(),
		handlers:      make(map[string]Handler),
		logger:        logger,
		maxConcurrent: maxConcurrent,
		semaphore:     make(chan struct{}, maxConcurrent),
	}
}

// RegisterHandler registers a handler for the given JSON-RPC method name.
func (s *Server) RegisterHandler(method string, h Handler) {
	s.handlers[method] = h
}

// Run reads NDJSON lines from the reader, dispatches to handlers, and writes responses until
// stdin is closed or the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	lines := make(chan []byte)
	scanErr := make(chan error, 1)

	go func() {
		for s.reader.Scan() {
			line := make([]byte, len(s.reader.Bytes()))
			copy(line, s.reader.Bytes())
			lines <- line
		}
		if err := s.reader.Err(); err != nil {
			scanErr <- err
		}
		close(lines)
	}()

	// dispatchOne acquires a semaphore slot, dispatches the request, writes the
	// response, then releases the slot. When maxConcurrent == 1 it is called
	// synchronously.
	dispatchOne := func(line []byte) {
		s.semaphore <- struct{}{}
		s.inflight.Add(1)
		handle := func() {
			defer func() {
				<-s.semaphore
				s.inflight.Done()
			}()
			resp := s.dispatch(ctx, line)
			s.writeResponse(resp)
		}
		if s.maxConcurrent > 1 {
			go handle()
		} else {
			handle()
		}
	}
	defer s.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if len(line) == 0 {
				continue
			}
			dispatchOne(line)
			if s.session.State() == StateShuttingDown {
				return nil
			}
		}
	}
}

// JSON-RPC 2.0 protocol error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
)

// dispatch decodes one request line and runs its handler. It always
// returns a response; handler panics surface as ENGINE_ERROR.
func (s *Server) dispatch(ctx context.Context, line []byte) (resp *types.Response) {
	var req types.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Error("parse error", "err", err)
		return types.NewErrorResponse(0, types.NewRPCError(codeParseError, "parse error", "PARSE_ERROR", false, err.Error()))
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		s.logger.Error("invalid request", "id", req.ID, "method", req.Method)
		return types.NewErrorResponse(req.ID, types.NewRPCError(codeInvalidRequest, "invalid request", "INVALID_REQUEST", false,
			`jsonrpc must be "2.0" and method must be non-empty`))
	}

	h, ok := s.handlers[req.Method]
	if !ok {
		s.logger.Warn("method not found", "method", req.Method)
		return types.NewErrorResponse(req.ID, types.NewRPCError(codeMethodNotFound, "method not found", "METHOD_NOT_FOUND", false,
			"unknown method: "+req.Method))
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panic", "method", req.Method, "panic", r)
			resp = types.NewErrorResponse(req.ID, types.NewRPCError(types.ErrEngineError, "internal error",
				types.ErrTypeEngineError, false, fmt.Sprint(r)))
		}
	}()

	start := time.Now()
	result, rpcErr := h(ctx, s.session, req.Params)
	s.logger.Debug("request handled", "method", req.Method, "id", req.ID, "duration", time.Since(start), "ok", rpcErr == nil)
	if rpcErr != nil {
		return types.NewErrorResponse(req.ID, rpcErr)
	}

	resp, err := types.NewSuccessResponse(req.ID, result)
	if err != nil {
		s.logger.Error("failed to marshal result", "method", req.Method, "err", err)
		return types.NewErrorResponse(req.ID, types.NewRPCError(types.ErrEngineError, "failed to marshal result",
			types.ErrTypeEngineError, false, err.Error()))
	}
	return resp
}

// writeResponse serializes a Response as compact JSON followed by a newline.
func (s *Server) writeResponse(resp *types.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_ = s.writer.WriteByte('\n')
	_ = s.writer.Flush()
}

// writeNotification serializes an arbitrary value as compact JSON followed by a newline.
// It shares the writer mutex with writeResponse.
func (s *Server) writeNotification(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("failed to marshal notification", "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.writer.Write(data)
	_ = s.writer.WriteByte('\n')
	_ = s.writer.Flush()
}
