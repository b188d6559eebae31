// Package httpproxy implements the HTTP surface of the Proxy/Supervisor:
// it translates browser requests into tools/call invocations against the
// tool server child process and renders results back as JSON, bridging
// the two asynchronous pipes spec.md §4.2 describes. It never talks
// JSON-RPC itself; that is the toolclient Supervisor's job, reached only
// through the driven.ToolCaller port.
package httpproxy

import (
	"context"
	"net/http"
	"time"

	"github.com/relaylabs/pdfqa-server/internal/adapters/driven/ratelimit"
	"github.com/relaylabs/pdfqa-server/internal/core/domain"
	"github.com/relaylabs/pdfqa-server/internal/core/ports/driven"
	"github.com/relaylabs/pdfqa-server/internal/logger"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server is the proxy's HTTP adapter: it owns no process state of its
// own beyond what is needed to route requests to the tool caller and
// the handle store.
type Server struct {
	tools   driven.ToolCaller
	handles driven.HandleStore
	limiter *ratelimit.Limiter

	dataDir        string
	maxUploadBytes int64
	defaultTopK    int
	modelID        string
	corsOrigins    []string

	mux *http.ServeMux
}

// NewServer wires a Server from its driven ports and static settings.
func NewServer(tools driven.ToolCaller, handles driven.HandleStore, limiter *ratelimit.Limiter, dataDir string, maxUploadBytes int64, defaultTopK int, modelID string, corsOrigins []string) *Server {
	s := &Server{
		tools:          tools,
		handles:        handles,
		limiter:        limiter,
		dataDir:        dataDir,
		maxUploadBytes: maxUploadBytes,
		defaultTopK:    defaultTopK,
		modelID:        modelID,
		corsOrigins:    corsOrigins,
	}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /", s.handleHealth)
	s.mux.HandleFunc("POST /upload", s.withBackpressure(s.handleUpload))
	s.mux.HandleFunc("POST /ask/{pdf_id}", s.withBackpressure(s.handleAsk))
	s.mux.HandleFunc("POST /ask-multiple/{pdf_id}", s.withBackpressure(s.handleAskMultiple))
	s.mux.HandleFunc("GET /pdfs", s.handleList)
	s.mux.HandleFunc("DELETE /pdf/{pdf_id}", s.handleDelete)
}

// ServeHTTP implements http.Handler, wrapping every route in the CORS
// allow-list middleware.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	corsMiddleware(s.corsOrigins, s.mux).ServeHTTP(w, r)
}

// withBackpressure rejects a request with 503 when the limiter's
// concurrency ceiling is already saturated, per spec.md §5's
// backpressure requirement, instead of queueing it behind the tool
// server's single stdin writer indefinitely.
func (s *Server) withBackpressure(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.tools.Unavailable() {
			writeErrorKind(w, domain.KindBackendUnavailable, "tool server is unavailable")
			return
		}
		if s.limiter != nil && !s.limiter.TryAcquire() {
			w.Header().Set("Retry-After", "1")
			writeErrorKind(w, domain.KindBackendUnavailable, "too many requests in flight, retry shortly")
			return
		}
		if s.limiter != nil {
			defer s.limiter.Release()
		}
		next(w, r)
	}
}

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Service: "pdf-qa-proxy", Version: Version})
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled
// or it fails to serve, shutting down gracefully when ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("proxy http shutdown: %v", err)
		}
	}()

	logger.Info("proxy listening on %s", addr)
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
