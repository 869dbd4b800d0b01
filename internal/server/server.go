// Package server exposes the tour solvers over HTTP: a REST API for solve
// jobs, a websocket stream of job events and a JSON-RPC 2.0 endpoint.
package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/copyleftdev/tourney/internal/config"
	apperrors "github.com/copyleftdev/tourney/internal/errors"
	"github.com/copyleftdev/tourney/internal/logging"
	"github.com/copyleftdev/tourney/internal/metrics"
	"github.com/copyleftdev/tourney/internal/optimization"
	"github.com/copyleftdev/tourney/internal/optimization/planner"
)

// maxBodyBytes bounds request bodies. A 2000 stop matrix in JSON stays well
// below it.
const maxBodyBytes = 64 << 20

// Server implements the HTTP and JSON-RPC surface of the solver service.
type Server struct {
	cfg      *config.Config
	logger   *logging.Logger
	planner  *planner.Planner
	jobs     *Manager
	limiter  *rate.Limiter
	defaults planner.Options
}

// NewServer creates a server and starts its job workers.
func NewServer(cfg *config.Config, logger *logging.Logger) *Server {
	pl := planner.New(logging.NewZapLogger(logger), metrics.SolveRecorder{})
	jobs := NewManager(ManagerConfig{
		Workers:   cfg.Solver.WorkerCount,
		Retention: cfg.Jobs.Retention,
		MaxJobs:   cfg.Jobs.MaxJobs,
		Seed:      cfg.Solver.Seed,
	}, pl, NewBroker(), logger)
	jobs.Start()

	return &Server{
		cfg:      cfg,
		logger:   logger,
		planner:  pl,
		jobs:     jobs,
		limiter:  NewLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
		defaults: DefaultOptions(cfg.Solver),
	}
}

// RegisterRoutes mounts the API on r. Streams are exempt from the request
// timeout.
func (s *Server) RegisterRoutes(r chi.Router) {
	limit := RateLimit(s.limiter)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(limit)
		r.Get("/jobs/{id}/stream", s.handleStream)

		r.Group(func(r chi.Router) {
			if s.cfg.HTTP.RequestTimeout > 0 {
				r.Use(middleware.Timeout(s.cfg.HTTP.RequestTimeout))
			}
			r.Get("/solvers", s.handleSolvers)
			r.Post("/solve", s.handleSolve)
			r.Get("/jobs/{id}", s.handleStatus)
			r.Delete("/jobs/{id}", s.handleCancel)
		})
	})

	// JSON-RPC 2.0 endpoint
	r.With(limit).Post("/rpc", s.handleJSONRPC)
}

// Close cancels pending jobs and stops the running ones.
func (s *Server) Close() error {
	return s.jobs.Close()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", apperrors.ErrBadRequest, err)
	}
	return nil
}

// submit turns a solve request into a queued job.
func (s *Server) submit(req *SolveRequest) (JobView, error) {
	problem, err := req.Problem(s.cfg.Solver.MaxStops)
	if err != nil {
		return JobView{}, err
	}
	return s.jobs.Submit(problem, req.Options(s.defaults))
}

// handleSolve handles POST /api/v1/solve. With ?wait=true it holds the
// request until the job ends or the request times out.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if err := decodeBody(w, r, &req); err != nil {
		apperrors.Respond(w, r, err)
		return
	}
	view, err := s.submit(&req)
	if err != nil {
		apperrors.Respond(w, r, err)
		return
	}

	if r.URL.Query().Get("wait") == "true" {
		view, err = s.jobs.Wait(r.Context(), view.ID)
		if err != nil {
			apperrors.Respond(w, r, err)
			return
		}
		if view.Status.Terminal() {
			writeJSON(w, http.StatusOK, view)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleStatus handles GET /api/v1/jobs/{id}.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.Respond(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCancel handles DELETE /api/v1/jobs/{id}.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	view, err := s.jobs.Cancel(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.Respond(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// handleSolvers handles GET /api/v1/solvers.
func (s *Server) handleSolvers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"solvers": planner.Names(),
		"default": s.defaults.Solver,
	})
}

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jobParams struct {
	JobID string `json:"job_id"`
}

// decodeParams accepts params as an object or as a one element array
// holding the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing required parameters", apperrors.ErrBadRequest)
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return fmt.Errorf("%w: missing required parameters", apperrors.ErrBadRequest)
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid parameter format: %v", apperrors.ErrBadRequest, err)
	}
	return nil
}

func (p *jobParams) validate() error {
	if p.JobID == "" {
		return fmt.Errorf("%w: job_id is required", apperrors.ErrBadRequest)
	}
	return nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil)
		return
	}

	// Validate JSON-RPC 2.0 request
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "tsp.solve":
		var req SolveRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.submit(&req)
		}
	case "tsp.status":
		var p jobParams
		if err = decodeParams(request.Params, &p); err == nil {
			if err = p.validate(); err == nil {
				result, err = s.jobs.Get(p.JobID)
			}
		}
	case "tsp.cancel":
		var p jobParams
		if err = decodeParams(request.Params, &p); err == nil {
			if err = p.validate(); err == nil {
				result, err = s.jobs.Cancel(p.JobID)
			}
		}
	case "tsp.solvers":
		result = planner.Names()
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := rpcServerError
		if apperrors.Is(err, apperrors.ErrBadRequest) || apperrors.Is(err, optimization.ErrInvalidProblem) {
			code = rpcInvalidParams
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Debug("rpc error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
