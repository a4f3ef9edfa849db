// Package chi serves the client search API and the internal node API over HTTP.
package chi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/cluster"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/query"
	domsearch "github.com/kailas-cloud/fedsearch/internal/domain/search"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// SearchService is the client search API.
type SearchService interface {
	Submit(ctx context.Context, req domsearch.Request) (query.Key, error)
	Poll(ctx context.Context, key query.Key) (domsearch.Response, error)
	Cancel(ctx context.Context, key query.Key) error
	Match(ctx context.Context, req searchuc.MatchRequest) ([]bool, error)
}

// HealthChecker reports node health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server implements the HTTP handlers.
type Server struct {
	search        SearchService
	executor      cluster.Executor
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(search SearchService, executor cluster.Executor, health HealthChecker, logger *zap.Logger) *Server {
	return &Server{
		search:        search,
		executor:      executor,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// SubmitResponse answers a search submission.
type SubmitResponse struct {
	Key query.Key `json:"key"`
}

// MatchResponse answers a match request, one flag per record.
type MatchResponse struct {
	Matches []bool `json:"matches"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status       string            `json:"status"`
	Node         string            `json:"node"`
	RunningTasks int               `json:"runningTasks"`
	Checks       map[string]string `json:"checks"`
}

// Routes registers every handler on r. nodeKey guards the internal API.
func (s *Server) Routes(r chi.Router, nodeKey string) {
	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/searches", s.SubmitSearch)
		r.Get("/searches/{key}", s.PollSearch)
		r.Delete("/searches/{key}", s.CancelSearch)
		r.Post("/match", s.Match)
	})

	r.Group(func(r chi.Router) {
		r.Use(NodeKeyMiddleware(nodeKey))
		r.Post(cluster.NodeSearchPath, s.NodeSearch)
		r.Post(cluster.TerminatePath, s.Terminate)
	})
}

// SubmitSearch handles POST /api/v1/searches.
func (s *Server) SubmitSearch(w http.ResponseWriter, r *http.Request) {
	var req domsearch.Request
	if !s.decode(w, r, &req) {
		return
	}
	key, err := s.search.Submit(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitResponse{Key: key})
}

// PollSearch handles GET /api/v1/searches/{key}.
func (s *Server) PollSearch(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	resp, err := s.search.Poll(r.Context(), key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CancelSearch handles DELETE /api/v1/searches/{key}.
func (s *Server) CancelSearch(w http.ResponseWriter, r *http.Request) {
	key, ok := s.key(w, r)
	if !ok {
		return
	}
	if err := s.search.Cancel(r.Context(), key); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Match handles POST /api/v1/match.
func (s *Server) Match(w http.ResponseWriter, r *http.Request) {
	var req searchuc.MatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	matches, err := s.search.Match(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MatchResponse{Matches: matches})
}

// NodeSearch handles POST /internal/v1/node-search. Results stream back as NDJSON,
// one NodeResult per line, the last one complete.
func (s *Server) NodeSearch(w http.ResponseWriter, r *http.Request) {
	var req cluster.NodeSearchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.AncestorID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "ancestorId is required")
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	send := func(res cluster.NodeResult) error {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("write node result: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	if err := s.executor.Execute(r.Context(), req, send); err != nil {
		s.logger.Warn("node search stream ended early",
			zap.String("ancestor_id", req.AncestorID), zap.Error(err))
	}
}

// Terminate handles POST /internal/v1/terminate.
func (s *Server) Terminate(w http.ResponseWriter, r *http.Request) {
	var req cluster.TerminateRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, cluster.TerminateResponse{Terminated: s.executor.Terminate(req.AncestorID)})
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}
	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{
		Status:       string(report.Status),
		Node:         report.Node,
		RunningTasks: report.RunningTasks,
		Checks:       checks,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) key(w http.ResponseWriter, r *http.Request) (query.Key, bool) {
	key, err := query.ParseKey(chi.URLParam(r, "key"))
	if err != nil {
		s.handleDomainError(w, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
		return "", false
	}
	return key, true
}
