package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shortsfactory/internal/config"
	"shortsfactory/internal/logging"
	"shortsfactory/internal/metrics"
	"shortsfactory/internal/queue"
	"shortsfactory/internal/services"
)

const maxRequestBody = 64 << 10

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router chi.Router

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if cfg.Metrics.Enabled {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}
	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(strings.TrimSpace(cfg.Paths.APIToken)))
		r.Get("/status", srv.handleStatus)
		r.Get("/jobs", srv.handleJobs)
		r.Get("/jobs/{id}", srv.handleJob)
		r.Get("/jobs/{id}/history", srv.handleHistory)
		r.Post("/jobs/{id}/approve", srv.handleApprove)
		r.Post("/jobs/{id}/reject", srv.handleReject)
		r.Post("/jobs/{id}/reprocess", srv.handleReprocess)
		r.Get("/review", srv.handlePending)
		r.Post("/ideas", srv.handleIdea)
		r.Post("/files", srv.handleFile)
		r.Get("/activity", srv.handleActivity)
	})
	srv.router = r
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	var states []queue.State
	for _, raw := range r.URL.Query()["state"] {
		for value := range strings.SplitSeq(raw, ",") {
			if strings.TrimSpace(value) == "" {
				continue
			}
			state, ok := queue.ParseState(value)
			if !ok {
				s.writeError(w, services.Wrap(services.ErrValidation, "api", "list", "unknown state "+value, nil))
				return
			}
			states = append(states, state)
		}
	}
	jobs, err := s.daemon.store.ListByState(r.Context(), states...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobViews(jobs)})
}

func (s *apiServer) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: NewJobView(job)})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	entries, err := s.daemon.store.History(r.Context(), job.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

func (s *apiServer) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.daemon.store.RecentActivity(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

func (s *apiServer) handlePending(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.daemon.gate.Pending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobViews(jobs)})
}

func (s *apiServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.daemon.gate.Approve(r.Context(), chi.URLParam(r, "id"), req.Reviewer, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: NewJobView(job)})
}

func (s *apiServer) handleReject(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, err := s.daemon.gate.Reject(r.Context(), chi.URLParam(r, "id"), req.Reviewer, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: NewJobView(job)})
}

func (s *apiServer) handleReprocess(w http.ResponseWriter, r *http.Request) {
	job, err := s.daemon.gate.Reprocess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, JobResponse{Job: NewJobView(job)})
}

func (s *apiServer) handleIdea(w http.ResponseWriter, r *http.Request) {
	var req IdeaRequest
	if !s.decode(w, r, &req) {
		return
	}
	job, created, err := s.daemon.ingest.IngestIdea(r.Context(), req.Idea)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, JobResponse{Job: NewJobView(job), Created: &created})
}

func (s *apiServer) handleFile(w http.ResponseWriter, r *http.Request) {
	var req FileRequest
	if !s.decode(w, r, &req) {
		return
	}
	kind := queue.SourceRawMedia
	if strings.TrimSpace(req.Kind) != "" {
		kind = queue.SourceKind(strings.TrimSpace(req.Kind))
	}
	job, created, err := s.daemon.ingest.IngestFile(r.Context(), req.Path, kind)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, JobResponse{Job: NewJobView(job), Created: &created})
}

func (s *apiServer) loadJob(w http.ResponseWriter, r *http.Request) (*queue.Job, bool) {
	id := chi.URLParam(r, "id")
	job, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	if job == nil {
		s.writeError(w, fmt.Errorf("job %s: %w", id, queue.ErrNotFound))
		return nil, false
	}
	return job, true
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, services.Wrap(services.ErrValidation, "api", "decode", "invalid request body", err))
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound), errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidTransition), errors.Is(err, queue.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("api request failed", logging.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
