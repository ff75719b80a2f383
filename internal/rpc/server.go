package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Server accepts framed JSON requests on a local stream socket bound with
// owner-only permissions. Each connection may carry any number of requests
// until the peer closes; requests across connections run concurrently.
type Server struct {
	socketPath string
	backend    Backend

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

func NewServer(socketPath string, backend Backend) *Server {
	return &Server{socketPath: socketPath, backend: backend}
}

// Start binds the socket and begins accepting. A stale socket from a prior
// run is removed first; the bind happens under a restrictive umask so the
// socket is never observable with loose permissions.
func (s *Server) Start() error {
	if _, err := os.Stat(s.socketPath); err == nil {
		if err := os.Remove(s.socketPath); err != nil {
			return fmt.Errorf("remove stale socket %s: %w", s.socketPath, err)
		}
	}
	old := unix.Umask(0o177)
	ln, err := net.Listen("unix", s.socketPath)
	unix.Umask(old)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)
	slog.Info("rpc server listening", "socket", s.socketPath)
	return nil
}

// Stop closes the listener, waits for in-flight connections, and removes
// the socket file.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()
	if ln == nil {
		return
	}
	_ = ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.socketPath)
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Warn("rpc accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	for {
		data, err := ReadMessage(conn)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// Framing and length violations abort the connection.
			slog.Debug("rpc connection aborted", "error", err)
			return
		}
		resp := s.process(data)
		out, err := json.Marshal(resp)
		if err != nil {
			out, _ = json.Marshal(errorResponse(CodeInternalError, err.Error()))
		}
		if err := WriteMessage(conn, out); err != nil {
			return
		}
	}
}

func errorResponse(code, msg string) map[string]any {
	return map[string]any{"status": "error", "code": code, "message": msg}
}

func okResponse(msg string) map[string]any {
	return map[string]any{"status": "ok", "message": msg}
}

// process decodes and dispatches one request. Malformed payloads produce an
// error response but leave the connection usable, and a panicking backend
// call is converted into an internal error instead of crashing the daemon.
func (s *Server) process(data []byte) (resp map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("rpc dispatch panicked", "error", r)
			resp = errorResponse(CodeInternalError, fmt.Sprintf("%v", r))
		}
	}()
	var probe any
	if err := json.Unmarshal(data, &probe); err != nil {
		return errorResponse(CodeInvalidJSON, fmt.Sprintf("invalid JSON: %v", err))
	}
	if _, ok := probe.(map[string]any); !ok {
		return errorResponse(CodeInvalidRequest, "request must be a JSON object")
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(CodeInvalidRequest, fmt.Sprintf("invalid request: %v", err))
	}

	resp, err := s.dispatch(context.Background(), req)
	if err != nil {
		return errorResponse(CodeInternalError, err.Error())
	}
	return resp
}

func (s *Server) dispatch(ctx context.Context, req Request) (map[string]any, error) {
	switch req.Command {
	case "status":
		return map[string]any{"status": "ok", "processes": s.backend.Status()}, nil
	case "start":
		if req.Name == "" {
			return errorResponse(CodeInvalidRequest, "start requires name"), nil
		}
		if err := s.backend.StartProcess(ctx, req.Name); err != nil {
			return errorResponse(CodeInternalError, err.Error()), nil
		}
		return okResponse(fmt.Sprintf("Started %s", req.Name)), nil
	case "stop":
		if req.Name == "" {
			return errorResponse(CodeInvalidRequest, "stop requires name"), nil
		}
		if err := s.backend.StopProcess(ctx, req.Name); err != nil {
			return errorResponse(CodeInternalError, err.Error()), nil
		}
		return okResponse(fmt.Sprintf("Stopped %s", req.Name)), nil
	case "restart":
		if req.Name == "" {
			return errorResponse(CodeInvalidRequest, "restart requires name"), nil
		}
		if err := s.backend.RestartProcess(ctx, req.Name, req.Force); err != nil {
			return errorResponse(CodeInternalError, err.Error()), nil
		}
		return okResponse(fmt.Sprintf("Restarted %s", req.Name)), nil
	case "startgroup":
		if req.Name == "" {
			return errorResponse(CodeInvalidRequest, "startgroup requires name"), nil
		}
		if err := s.backend.StartGroup(ctx, req.Name); err != nil {
			return errorResponse(CodeInternalError, err.Error()), nil
		}
		return okResponse(fmt.Sprintf("Started group %s", req.Name)), nil
	case "stopgroup":
		if req.Name == "" {
			return errorResponse(CodeInvalidRequest, "stopgroup requires name"), nil
		}
		if err := s.backend.StopGroup(ctx, req.Name); err != nil {
			return errorResponse(CodeInternalError, err.Error()), nil
		}
		return okResponse(fmt.Sprintf("Stopped group %s", req.Name)), nil
	case "reload":
		result, err := s.backend.Reload(ctx)
		if err != nil {
			return errorResponse(CodeInternalError, fmt.Sprintf("Reload failed: %v", err)), nil
		}
		return map[string]any{
			"status":  "ok",
			"message": "Reloaded",
			"added":   result.Added,
			"removed": result.Removed,
			"changed": result.Changed,
		}, nil
	default:
		return errorResponse(CodeUnknownCommand, fmt.Sprintf("Unknown command: %s", req.Command)), nil
	}
}
