package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"darkroom/internal/api"
	"darkroom/internal/config"
	"darkroom/internal/logging"
	"darkroom/internal/services"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	cfg    *config.Config

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		cfg:    cfg,
	}

	token := cfg.Paths.APIToken
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/batches", authMiddleware(token, srv.handleBatches))
	mux.HandleFunc("/api/batches/", authMiddleware(token, srv.handleBatchItem))
	mux.HandleFunc("/api/jobs", authMiddleware(token, srv.handleJobs))
	mux.HandleFunc("/api/jobs/", authMiddleware(token, srv.handleJobItem))
	mux.HandleFunc("/api/lanes/", authMiddleware(token, srv.handleLane))
	mux.HandleFunc("/api/priority/", authMiddleware(token, srv.handlePriority))
	mux.HandleFunc("/api/resources", authMiddleware(token, srv.handleResources))
	mux.HandleFunc("/api/resources/", authMiddleware(token, srv.handleResourceItem))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		JobDBPath:     status.JobDBPath,
		LockFilePath:  status.LockFilePath,
		ActiveBatches: status.ActiveBatches,
	})
}

func (s *apiServer) handleBatches(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records := s.daemon.svc.Coordinator.List()
		s.writeJSON(w, http.StatusOK, api.BatchListResponse{Batches: api.FromBatchRecords(records)})
	case http.MethodPost:
		var req api.StartBatchRequest
		if !s.decode(w, r, &req) {
			return
		}
		rec, err := s.daemon.svc.Coordinator.Start(r.Context(), req.UnitIDs, req.GroupID, req.Config, req.BatchID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.FromBatchRecord(rec))
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleBatchItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/batches/")
	if rest == "" {
		s.writeError(w, http.StatusNotFound, "batch not found")
		return
	}

	if rest == "cleanup" {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req api.CleanupRequest
		if !s.decode(w, r, &req) {
			return
		}
		removed := s.daemon.svc.Coordinator.Cleanup(req.OlderThanDays)
		s.writeJSON(w, http.StatusOK, api.CleanupResponse{Removed: removed})
		return
	}

	if rest == "recover" {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		recovered, failed := s.daemon.svc.Coordinator.RecoverInterrupted()
		s.writeJSON(w, http.StatusOK, api.RecoveryResponse{Recovered: recovered, Failed: failed})
		return
	}

	batchID, action, _ := strings.Cut(rest, "/")
	coord := s.daemon.svc.Coordinator

	if action == "" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		rec, ok := coord.Status(batchID)
		if !ok {
			s.writeError(w, http.StatusNotFound, "batch not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromBatchRecord(rec))
		return
	}

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "pause":
		s.writeMutation(w, coord.Pause(r.Context(), batchID), "batch is not running")
	case "resume":
		ok, err := coord.Resume(r.Context(), batchID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeMutation(w, ok, "batch is not paused")
	case "cancel":
		s.writeMutation(w, coord.Cancel(r.Context(), batchID), "batch is terminal or unknown")
	case "progress":
		var req api.ProgressRequest
		if !s.decode(w, r, &req) {
			return
		}
		ok := coord.UpdateProgress(r.Context(), batchID, req.UnitID, req.Success)
		s.writeMutation(w, ok, "batch is terminal or unknown")
	default:
		s.writeError(w, http.StatusNotFound, "unknown batch action")
	}
}

func (s *apiServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req api.SubmitJobRequest
	if !s.decode(w, r, &req) {
		return
	}
	jobID, err := s.daemon.svc.Dispatcher.Submit(r.Context(), req.UnitID, req.UserRequested, string(req.Config))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"job_id": jobID})
}

func (s *apiServer) handleJobItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if rest == "" {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}

	dispatcher := s.daemon.svc.Dispatcher

	if rest == "stats" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		stats, err := dispatcher.Stats(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, stats)
		return
	}

	jobID, action, _ := strings.Cut(rest, "/")

	if action == "" {
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		// Refresh from the backend before serving so terminal states are
		// mirrored into the record we return.
		if _, err := dispatcher.Status(r.Context(), jobID); err != nil {
			s.writeServiceError(w, err)
			return
		}
		job, err := dispatcher.Job(r.Context(), jobID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.FromJob(job))
		return
	}

	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	switch action {
	case "cancel":
		ok, err := dispatcher.Cancel(r.Context(), jobID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeMutation(w, ok, "job is already terminal")
	case "retry":
		retryID, err := dispatcher.Retry(r.Context(), jobID)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]string{"job_id": retryID})
	default:
		s.writeError(w, http.StatusNotFound, "unknown job action")
	}
}

func (s *apiServer) handleLane(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/lanes/")
	lane, action, _ := strings.Cut(rest, "/")
	dispatcher := s.daemon.svc.Dispatcher

	switch action {
	case "pause":
		ok, err := dispatcher.PauseLane(lane)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeMutation(w, ok, "lane already paused")
	case "resume":
		ok, err := dispatcher.ResumeLane(r.Context(), lane)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeMutation(w, ok, "lane is not paused")
	default:
		s.writeError(w, http.StatusNotFound, "unknown lane action")
	}
}

func (s *apiServer) handlePriority(w http.ResponseWriter, r *http.Request) {
	calc := s.daemon.svc.Calculator
	if calc == nil {
		s.writeError(w, http.StatusServiceUnavailable, "priority calculator unavailable")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/priority/")
	starvation := time.Duration(s.cfg.Priority.StarvationThresholdHours * float64(time.Hour))

	switch action {
	case "rebalance":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		adjusted, considered, err := calc.Rebalance(r.Context())
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.RebalanceResponse{Adjusted: adjusted, Considered: considered})
	case "boost":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req api.BoostGroupRequest
		if !s.decode(w, r, &req) {
			return
		}
		boosted, err := calc.BoostGroup(r.Context(), req.GroupID, req.Amount)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"boosted": boosted})
	case "weights":
		if r.Method != http.MethodPut {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req api.UpdateWeightsRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := calc.UpdateWeights(priorityWeights(req)); err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.MutationResponse{OK: true})
	case "starving":
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		units, err := calc.FindStarving(r.Context(), starvation)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.StarvingResponse{Units: api.FromStarvingUnits(units)})
	case "starving/boost":
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		boosted, candidates, err := calc.AutoBoostStarving(r.Context(), starvation)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]int{"boosted": boosted, "candidates": candidates})
	default:
		s.writeError(w, http.StatusNotFound, "unknown priority action")
	}
}

func (s *apiServer) handleResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	monitor := s.daemon.svc.Monitor
	if monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "resource monitor unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, monitor.Status())
}

func (s *apiServer) handleResourceItem(w http.ResponseWriter, r *http.Request) {
	monitor := s.daemon.svc.Monitor
	if monitor == nil {
		s.writeError(w, http.StatusServiceUnavailable, "resource monitor unavailable")
		return
	}
	action := strings.TrimPrefix(r.URL.Path, "/api/resources/")

	if action == "thresholds" {
		if r.Method != http.MethodPut {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req api.ThresholdsRequest
		if !s.decode(w, r, &req) {
			return
		}
		monitor.UpdateThresholds(resourceThresholds(req))
		s.writeJSON(w, http.StatusOK, api.MutationResponse{OK: true})
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch action {
	case "cpu":
		s.writeJSON(w, http.StatusOK, map[string]float64{"cpu_percent": monitor.CPUPercent()})
	case "memory":
		s.writeJSON(w, http.StatusOK, map[string]float64{"memory_percent": monitor.MemoryPercent()})
	case "gpu":
		gpu, ok := monitor.GPU()
		if !ok {
			s.writeJSON(w, http.StatusOK, map[string]any{"available": false})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"available":     true,
			"load_percent":  gpu.LoadPercent,
			"temperature_c": gpu.TemperatureC,
		})
	default:
		s.writeError(w, http.StatusNotFound, "unknown resource view")
	}
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *apiServer) writeMutation(w http.ResponseWriter, ok bool, reason string) {
	resp := api.MutationResponse{OK: ok}
	if !ok {
		resp.Reason = reason
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps the sentinel taxonomy onto HTTP statuses.
func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidState):
		status = http.StatusConflict
	case services.Retryable(err):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
