package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driving"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// state is the Server's lifecycle position, logged on every transition
// so a supervising parent process can tell a cold start from a stuck one.
type state string

const (
	stateStarting     state = "starting"
	stateReady        state = "ready"
	stateServing      state = "serving"
	stateShuttingDown state = "shutting_down"
	stateExited       state = "exited"
)

// maxLineSize is the largest single JSON-RPC request line this server
// will accept. A request carrying a whole document body would blow
// past this; callers pass paths, not content, for exactly that reason.
const maxLineSize = 8 * 1024 * 1024

// Server is the Tool Server: it reads newline-delimited JSON-RPC
// requests from stdin and writes newline-delimited responses to
// stdout, dispatching each "tools/call" through the closed toolTable.
//
// Unlike the teacher's MCP adapter, this server does not use
// reflection-based tool registration or a third-party MCP SDK. The
// wire protocol here is intentionally minimal: two methods
// (tools/list, tools/call) and a static dispatch table, so the
// contract this process exposes to its supervising proxy never shifts
// underneath a schema-inference layer.
type Server struct {
	tools driving.ToolService

	writeMu sync.Mutex
	out     *bufio.Writer

	mu    sync.Mutex
	state state
}

// NewServer builds a Tool Server around the given ToolService.
func NewServer(tools driving.ToolService) *Server {
	return &Server{tools: tools, state: stateStarting}
}

func (s *Server) setState(next state) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()
	logger.Info("tool server state: %s -> %s", prev, next)
}

// Run reads requests from in and writes responses to out until in is
// exhausted, ctx is cancelled, or a fatal I/O error occurs. Each
// request line is dispatched on its own goroutine so a slow tool call
// (an embedding round trip, a completion call) never blocks the
// reader loop; responses are serialized through a single writer so
// concurrent dispatch never interleaves partial lines.
func (s *Server) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	s.setState(stateReady)
	s.out = bufio.NewWriter(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var wg sync.WaitGroup
	s.setState(stateServing)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lineCopy := append([]byte(nil), line...)

		select {
		case <-ctx.Done():
			wg.Wait()
			s.setState(stateShuttingDown)
			s.setState(stateExited)
			return ctx.Err()
		default:
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleLine(ctx, lineCopy)
		}()
	}

	wg.Wait()
	s.setState(stateShuttingDown)
	s.setState(stateExited)

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading requests: %w", err)
	}
	return nil
}

func (s *Server) handleLine(ctx context.Context, line []byte) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeResponse(newError(nil, CodeParseError, "parse error: "+err.Error(), nil))
		return
	}

	if req.IsNotification() {
		s.dispatch(ctx, req)
		return
	}

	resp := s.dispatch(ctx, req)
	s.writeResponse(resp)
}

func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case "tools/list":
		return newResult(req.ID, map[string]any{"tools": listTools()})
	case "tools/call":
		return s.dispatchCall(ctx, req)
	default:
		logger.Debug("method not found: %s", req.Method)
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method), nil)
	}
}

type callParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) dispatchCall(ctx context.Context, req Request) Response {
	var call callParams
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return newError(req.ID, CodeInvalidParams, "invalid tools/call params: "+err.Error(), nil)
	}

	handler, ok := toolTable[call.Name]
	if !ok {
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown tool: %s", call.Name), nil)
	}

	result, err := handler(ctx, s.tools, call.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, err)
	}
	return newResult(req.ID, result)
}

func (s *Server) errorResponse(id json.RawMessage, err error) Response {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return newError(id, CodeServerError, err.Error(), nil)
	}
	if derr.Kind == domain.KindBadInput {
		return newError(id, CodeInvalidParams, derr.Detail, nil)
	}
	return newError(id, CodeServerError, derr.Error(), map[string]any{
		"kind":   string(derr.Kind),
		"detail": derr.Detail,
	})
}

func (s *Server) writeResponse(resp Response) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		logger.Warn("failed to marshal response: %v", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.out.Write(encoded) //nolint:errcheck
	s.out.WriteByte('\n') //nolint:errcheck
	s.out.Flush()         //nolint:errcheck
}
