package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"flowops/internal/api"
	"flowops/internal/config"
	"flowops/internal/logging"
	"flowops/internal/release"
	"flowops/internal/workflow"
)

const maxRequestBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

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
	srv.server = &http.Server{
		Handler:           srv.handler(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) handler(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/releases", s.handleCreateRelease)
	mux.HandleFunc("GET /api/releases", s.handleListReleases)
	mux.HandleFunc("GET /api/releases/{id}", s.handleGetRelease)
	mux.HandleFunc("POST /api/releases/{releaseId}/hotfix", s.handleAddHotfix)
	mux.HandleFunc("POST /api/releases/{releaseId}/tasks/{taskId}/assign/{developerId}", s.handleAssign)
	mux.HandleFunc("POST /api/releases/tasks/{releaseId}/devs/{developerId}/start/{taskId}", s.handleStart)
	mux.HandleFunc("POST /api/releases/tasks/{releaseId}/devs/{developerId}/complete/{taskId}", s.handleComplete)
	mux.HandleFunc("POST /api/stale/scan", s.handleStaleScan)
	mux.HandleFunc("POST /api/notifications/test", s.handleTestNotification)
	return requestMiddleware(s.logger, authMiddleware(token, mux))
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	payload := api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		DatabasePath:  status.DatabasePath,
		LockFilePath:  status.LockFilePath,
		StaleEnabled:  status.StaleEnabled,
		Store:         api.FromStats(status.Stats),
		Notifications: api.FromDispatcherStats(status.Sinks, status.Dispatch),
	}
	if !status.StartedAt.IsZero() {
		payload.StartedAt = status.StartedAt.UTC().Format(time.RFC3339)
	}
	if status.LastScan != nil {
		scan := api.FromScanReport(*status.LastScan)
		payload.LastScan = &scan
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleCreateRelease(w http.ResponseWriter, r *http.Request) {
	var req api.CreateReleaseRequest
	if !s.decode(w, r, &req) {
		return
	}
	rel, err := s.daemon.manager.CreateRelease(r.Context(), req.ToDraft())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.ReleaseResponse{Release: api.FromRelease(rel)})
}

func (s *apiServer) handleListReleases(w http.ResponseWriter, r *http.Request) {
	rels, err := s.daemon.manager.ListReleases(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReleaseListResponse{Releases: api.FromReleases(rels)})
}

func (s *apiServer) handleGetRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := s.daemon.manager.GetRelease(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReleaseResponse{Release: api.FromRelease(rel)})
}

func (s *apiServer) handleAddHotfix(w http.ResponseWriter, r *http.Request) {
	var req api.TaskInput
	if !s.decode(w, r, &req) {
		return
	}
	releaseID := r.PathValue("releaseId")
	task, err := s.daemon.manager.AddHotfixTask(r.Context(), releaseID, req.ToTaskDraft())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.TaskResponse{ReleaseID: releaseID, Task: api.FromTask(task)})
}

type transitionFunc func(ctx context.Context, releaseID, taskID, developerID string) (release.Task, error)

func (s *apiServer) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	releaseID := r.PathValue("releaseId")
	task, err := fn(r.Context(), releaseID, r.PathValue("taskId"), r.PathValue("developerId"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.TaskResponse{ReleaseID: releaseID, Task: api.FromTask(task)})
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.daemon.manager.StartTask)
}

func (s *apiServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.daemon.manager.CompleteTask)
}

func (s *apiServer) handleAssign(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.daemon.manager.AssignDeveloper)
}

func (s *apiServer) handleStaleScan(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.ScanStale(r.Context())
	if errors.Is(err, workflow.ErrScanInProgress) {
		s.writeJSON(w, http.StatusConflict, api.ErrorResponse{Error: err.Error(), Kind: release.KindConflict})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromScanReport(report))
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, detail, err := s.daemon.TestNotification(r.Context())
	payload := map[string]any{"sent": sent, "detail": detail}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		s.writeError(w, r, release.Wrap(release.ErrValidation, "decode request", "invalid JSON body", err))
		return false
	}
	return true
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

func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := api.NewErrorResponse(err)
	status := api.HTTPStatus(resp.Kind)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, resp)
}
