// Package server exposes the mapping engine over HTTP. One POST route per
// engine operation, JSON in and out, request bodies capped at 5 MB.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mapforge-io/mapforge/internal/engine"
	"github.com/mapforge-io/mapforge/internal/logging"
)

// MaxBodyBytes caps request bodies before the engine sees them.
const MaxBodyBytes = 5 << 20

// Server is the HTTP API transport.
type Server struct {
	mu         sync.RWMutex
	addr       string
	boundAddr  string
	httpServer *http.Server
	engine     *engine.Engine
	logger     *logging.Logger
}

// New creates a Server for the engine on addr.
func New(addr string, eng *engine.Engine, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Server{addr: addr, engine: eng, logger: logger}
}

// Handler returns the route table. Exposed so tests can drive the server
// through httptest without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/validate", s.post(s.handleValidate))
	mux.HandleFunc("/v1/compile", s.post(s.handleCompile))
	mux.HandleFunc("/v1/dry-run", s.post(s.handleDryRun))
	mux.HandleFunc("/v1/check-ids", s.post(s.handleCheckIDs))
	mux.HandleFunc("/v1/infer-types", s.post(s.handleInferTypes))
	mux.HandleFunc("/v1/estimate-size", s.post(s.handleEstimateSize))
	return mux
}

// Start binds the listener and begins serving. It returns once the listener
// is bound.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()

	s.logger.Infof("api server listening", map[string]any{"addr": ln.Addr().String()})
	go func() {
		_ = s.httpServer.Serve(ln)
	}()
	return nil
}

// Addr returns the bound address, useful when addr was ":0".
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.boundAddr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// post wraps a handler with the method check, the body size cap, and a
// request-scoped logger carrying a fresh request id.
func (s *Server) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)

		id := uuid.NewString()
		ctx := logging.WithRequestIDCtx(r.Context(), id)
		ctx = logging.WithLoggerCtx(ctx, s.logger.WithRequestID(id))
		h(w, r.WithContext(ctx))
	}
}
