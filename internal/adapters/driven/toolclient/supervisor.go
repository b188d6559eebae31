// Package toolclient supervises the Tool Server as a child process,
// bridging the proxy's HTTP handlers to its newline-framed JSON-RPC
// stdio transport.
package toolclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/logger"
	"github.com/relaylabs/pdfqa-server/internal/rpcwire"
)

var _ driven.ToolCaller = (*Supervisor)(nil)

// readyGrace is how long Start waits for the child to answer its
// tools/list readiness probe before giving up.
const readyGrace = 5 * time.Second

// callGrace is the default per-call deadline applied when ctx carries
// none of its own.
const callGrace = 30 * time.Second

// shutdownGrace bounds how long Stop waits for in-flight responses
// after closing stdin before killing the child outright.
const shutdownGrace = 3 * time.Second

// Supervisor owns one Tool Server child process: a single-writer stdin,
// a single-reader stdout demultiplexed by request id, and a bounded
// restart policy. All exported methods are safe for concurrent use.
type Supervisor struct {
	path string
	args []string

	restartBudget int
	restartWindow time.Duration

	writeMu sync.Mutex
	stdin   io.WriteCloser

	procMu sync.Mutex
	cmd    *exec.Cmd

	waitersMu sync.Mutex
	waiters   map[string]chan rpcwire.Response

	nextID atomic.Int64

	stateMu       sync.Mutex
	permanentFail bool
	restarts      []time.Time

	readerDone chan struct{}
}

// NewSupervisor builds a Supervisor for the executable at path, invoked
// with args. restartBudget is the number of respawns tolerated within a
// one-minute sliding window before the supervisor gives up permanently.
func NewSupervisor(path string, args []string, restartBudget int) *Supervisor {
	return &Supervisor{
		path:          path,
		args:          args,
		restartBudget: restartBudget,
		restartWindow: time.Minute,
		waiters:       make(map[string]chan rpcwire.Response),
	}
}

// Start spawns the child process, begins demultiplexing its stdout, and
// blocks until the child answers a tools/list probe or readyGrace
// elapses.
func (s *Supervisor) Start(ctx context.Context) error {
	if err := s.spawn(ctx); err != nil {
		return err
	}

	probeCtx, cancel := context.WithTimeout(ctx, readyGrace)
	defer cancel()

	req := rpcwire.Request{JSONRPC: "2.0", ID: []byte(strconv.FormatInt(s.nextID.Add(1), 10)), Method: "tools/list"}
	ch := make(chan rpcwire.Response, 1)
	s.waitersMu.Lock()
	s.waiters[string(req.ID)] = ch
	s.waitersMu.Unlock()

	if err := s.writeRequest(req); err != nil {
		return fmt.Errorf("probing tool server readiness: %w", err)
	}

	select {
	case <-ch:
		logger.Info("tool server ready")
		return nil
	case <-probeCtx.Done():
		return fmt.Errorf("tool server did not become ready within %s", readyGrace)
	}
}

func (s *Supervisor) spawn(ctx context.Context) error {
	cmd := exec.Command(s.path, s.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("tool server stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("tool server stdout pipe: %w", err)
	}
	cmd.Stderr = newStderrRelay()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting tool server: %w", err)
	}

	s.procMu.Lock()
	s.cmd = cmd
	s.procMu.Unlock()

	s.writeMu.Lock()
	s.stdin = stdin
	s.writeMu.Unlock()

	s.readerDone = make(chan struct{})
	go s.readLoop(stdout)

	logger.Info("tool server child started: pid=%d", cmd.Process.Pid)
	return nil
}

func (s *Supervisor) readLoop(stdout io.Reader) {
	defer close(s.readerDone)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp rpcwire.Response
		if err := json.Unmarshal(line, &resp); err != nil {
			logger.Warn("tool server sent malformed response: %v", err)
			continue
		}
		s.deliver(resp)
	}

	logger.Warn("tool server stdout closed, failing outstanding calls")
	s.failAllWaiters()
	s.onChildExit()
}

func (s *Supervisor) deliver(resp rpcwire.Response) {
	key := string(resp.ID)
	s.waitersMu.Lock()
	ch, ok := s.waiters[key]
	if ok {
		delete(s.waiters, key)
	}
	s.waitersMu.Unlock()

	if !ok {
		logger.Debug("no waiter for response id=%s, discarding", key)
		return
	}
	ch <- resp
}

func (s *Supervisor) failAllWaiters() {
	s.waitersMu.Lock()
	pending := s.waiters
	s.waiters = make(map[string]chan rpcwire.Response)
	s.waitersMu.Unlock()

	for _, ch := range pending {
		ch <- rpcwire.Response{Error: &rpcwire.Error{
			Code:    rpcwire.CodeServerError,
			Message: "tool server connection lost",
			Data:    map[string]any{"kind": string(domain.KindBackendUnavailable), "detail": "child process stdout closed"},
		}}
	}
}

func (s *Supervisor) onChildExit() {
	s.stateMu.Lock()
	now := time.Now()
	cutoff := now.Add(-s.restartWindow)
	kept := s.restarts[:0]
	for _, t := range s.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.restarts = kept

	if len(s.restarts) >= s.restartBudget {
		s.permanentFail = true
		s.stateMu.Unlock()
		logger.Warn("tool server restart budget exhausted, entering permanent failure")
		return
	}
	s.restarts = append(s.restarts, now)
	s.stateMu.Unlock()

	logger.Info("respawning tool server child")
	if err := s.spawn(context.Background()); err != nil {
		s.stateMu.Lock()
		s.permanentFail = true
		s.stateMu.Unlock()
		logger.Warn("tool server respawn failed: %v", err)
	}
}

// Unavailable reports whether the restart budget has been exhausted,
// in which case callers should fail fast with a 503.
func (s *Supervisor) Unavailable() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.permanentFail
}

// Call issues a tools/call request and blocks until a response arrives,
// ctx is cancelled, or the supervisor is permanently failed.
func (s *Supervisor) Call(ctx context.Context, toolName string, arguments any) (json.RawMessage, error) {
	if s.Unavailable() {
		return nil, domain.NewError(domain.KindBackendUnavailable, "tool server is unavailable after exhausting its restart budget")
	}

	argBytes, err := json.Marshal(arguments)
	if err != nil {
		return nil, domain.NewError(domain.KindBadInput, fmt.Sprintf("encoding tool arguments: %v", err))
	}
	params, err := json.Marshal(map[string]any{"name": toolName, "arguments": json.RawMessage(argBytes)})
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, fmt.Sprintf("encoding tools/call params: %v", err))
	}

	id := s.nextID.Add(1)
	idBytes := []byte(strconv.FormatInt(id, 10))
	req := rpcwire.Request{JSONRPC: "2.0", ID: idBytes, Method: "tools/call", Params: params}

	ch := make(chan rpcwire.Response, 1)
	s.waitersMu.Lock()
	s.waiters[string(idBytes)] = ch
	s.waitersMu.Unlock()

	if err := s.writeRequest(req); err != nil {
		s.waitersMu.Lock()
		delete(s.waiters, string(idBytes))
		s.waitersMu.Unlock()
		return nil, domain.Wrap(domain.KindBackendUnavailable, err)
	}

	deadline := callGrace
	if dl, ok := ctx.Deadline(); ok {
		deadline = time.Until(dl)
	}
	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, errorFromRPC(resp.Error)
		}
		result, err := json.Marshal(resp.Result)
		if err != nil {
			return nil, domain.NewError(domain.KindInternal, fmt.Sprintf("re-encoding tool result: %v", err))
		}
		return result, nil
	case <-ctx.Done():
		s.abandon(idBytes)
		return nil, domain.NewError(domain.KindModelTimeout, "tool call cancelled or deadline exceeded")
	case <-timer.C:
		s.abandon(idBytes)
		return nil, domain.NewError(domain.KindModelTimeout, "tool call exceeded its deadline")
	}
}

func (s *Supervisor) abandon(id []byte) {
	s.waitersMu.Lock()
	delete(s.waiters, string(id))
	s.waitersMu.Unlock()
}

func errorFromRPC(e *rpcwire.Error) error {
	data, ok := e.Data.(map[string]any)
	if !ok {
		return domain.NewError(domain.KindInternal, e.Message)
	}
	kind, _ := data["kind"].(string)
	detail, _ := data["detail"].(string)
	if kind == "" {
		kind = string(domain.KindInternal)
	}
	return domain.NewError(domain.Kind(kind), detail)
}

func (s *Supervisor) writeRequest(req rpcwire.Request) error {
	encoded, err := json.Marshal(req)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.stdin == nil {
		return fmt.Errorf("tool server stdin not open")
	}
	if _, err := s.stdin.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("writing to tool server stdin: %w", err)
	}
	return nil
}

// Stop closes the child's stdin, waits a bounded grace period for the
// reader loop to drain, then kills the process if it is still alive.
func (s *Supervisor) Stop() error {
	s.writeMu.Lock()
	if s.stdin != nil {
		s.stdin.Close() //nolint:errcheck
	}
	s.writeMu.Unlock()

	if s.readerDone != nil {
		select {
		case <-s.readerDone:
		case <-time.After(shutdownGrace):
		}
	}

	s.procMu.Lock()
	cmd := s.cmd
	s.procMu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
		return nil
	}
	return cmd.Process.Kill()
}
