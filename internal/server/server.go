// Package server exposes a remote.Backend over HTTP so several devices
// can share one record store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/remote/httpstore"
)

const maxBodyBytes = 32 << 20

type Server struct {
	backend remote.Backend
	mux     *http.ServeMux
	addr    string
	logger  *slog.Logger
	listen  func(network, address string) (net.Listener, error)
}

func New(backend remote.Backend, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		backend: backend,
		addr:    addr,
		logger:  logger.With("component", "server"),
		listen:  net.Listen,
	}
	srv.mux = http.NewServeMux()
	srv.routes()
	return srv
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("crewclock server: listen %s: %w", s.addr, err)
	}
	httpSrv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("record server listening", "addr", ln.Addr().String())
	err = httpSrv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	// Zones
	s.mux.HandleFunc("GET /zones/{zone}", s.handleFetchZone)
	s.mux.HandleFunc("PUT /zones/{zone}", s.handleCreateZone)
	s.mux.HandleFunc("DELETE /zones/{zone}", s.handleDeleteZone)

	// Records
	s.mux.HandleFunc("POST /zones/{zone}/lookup", s.handleLookup)
	s.mux.HandleFunc("POST /zones/{zone}/modify", s.handleModify)
	s.mux.HandleFunc("POST /zones/{zone}/query", s.handleQuery)
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "crewclock",
	})
}

func (s *Server) handleFetchZone(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	if err := s.backend.FetchZone(r.Context(), zone); err != nil {
		s.backendError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"zone": zone})
}

func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	if err := s.backend.CreateZone(r.Context(), zone); err != nil {
		s.backendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	zone := r.PathValue("zone")
	if err := s.backend.DeleteZone(r.Context(), zone); err != nil {
		s.backendError(w, r, err)
		return
	}
	s.logger.Warn("zone deleted", "zone", zone, "remote", r.RemoteAddr)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var body httpstore.LookupRequest
	if !decodeBody(w, r, &body) {
		return
	}
	recs, err := s.backend.Lookup(r.Context(), r.PathValue("zone"), body.IDs)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, httpstore.RecordsResponse{Records: recs})
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var body remote.ModifyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	res, err := s.backend.Modify(r.Context(), r.PathValue("zone"), body)
	if err != nil {
		status, eb := httpstore.EncodeError(err)
		if eb.Code == httpstore.CodePartialBatch {
			eb.Result = &res
			jsonResponse(w, status, eb)
			return
		}
		s.backendError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var body remote.Query
	if !decodeBody(w, r, &body) {
		return
	}
	recs, err := s.backend.Query(r.Context(), r.PathValue("zone"), body)
	if err != nil {
		s.backendError(w, r, err)
		return
	}
	if recs == nil {
		recs = []remote.Record{}
	}
	jsonResponse(w, http.StatusOK, httpstore.RecordsResponse{Records: recs})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (s *Server) backendError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := httpstore.EncodeError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("backend failure", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	jsonResponse(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		jsonResponse(w, http.StatusBadRequest, httpstore.ErrorBody{
			Error: "invalid json: " + err.Error(),
			Code:  httpstore.CodeEncoding,
		})
		return false
	}
	return true
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
