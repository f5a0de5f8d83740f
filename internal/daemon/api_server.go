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
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"chartreel/internal/api"
	"chartreel/internal/config"
	"chartreel/internal/logging"
	"chartreel/internal/services"
	"chartreel/internal/supervisor"
	"chartreel/internal/timeline"
	"chartreel/internal/tts"
	"chartreel/internal/ttscache"
)

const (
	maxPropsBytes       = 32 << 20
	defaultHistoryLimit = 20
	downloadFileName    = "infographic.mp4"
)

type apiServer struct {
	bind    string
	cfg     *config.Config
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}

	router := mux.NewRouter()
	router.Use(srv.requestIDMiddleware)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/render/save-props", srv.handleSaveProps).Methods(http.MethodPost)
	apiRouter.HandleFunc("/render/start", srv.handleStart).Methods(http.MethodGet, http.MethodPost)
	apiRouter.HandleFunc("/render/status", srv.handleRenderStatus).Methods(http.MethodGet)
	apiRouter.HandleFunc("/render/cancel", srv.handleCancel).Methods(http.MethodPost)
	apiRouter.HandleFunc("/render/download", srv.handleDownload).Methods(http.MethodGet, http.MethodHead)
	apiRouter.HandleFunc("/render/history", srv.handleHistory).Methods(http.MethodGet)
	apiRouter.HandleFunc("/render/history/{id}", srv.handleHistoryRun).Methods(http.MethodGet)
	apiRouter.HandleFunc("/tts", srv.handleTTS).Methods(http.MethodGet, http.MethodHead)
	apiRouter.HandleFunc("/composition", srv.handleComposition).Methods(http.MethodGet)
	apiRouter.HandleFunc("/status", srv.handleStatus).Methods(http.MethodGet)

	router.PathPrefix("/audio/").Handler(http.StripPrefix("/audio/", http.FileServer(http.Dir(cfg.PublicAudioDir()))))

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	srv.handler = corsMiddleware(authMiddleware(cfg.Paths.APIToken, tts.ProxyPath, "/audio/")(router))
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil || s.bind == "" {
		return nil
	}
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
	if s == nil || s.listener == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	_ = s.listener.Close()
	s.listener = nil
}

func (s *apiServer) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := services.WithRequestID(r.Context(), id)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		logging.WithContext(ctx, s.logger).Debug("api request",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}

func (s *apiServer) handleSaveProps(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPropsBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	props, err := timeline.Decode(data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := s.daemon.props.Save(props); err != nil {
		status := services.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "failed to save props", "props_save_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that the output directory is writable"),
			)
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SavePropsResponse{Success: true, Message: "Input props saved"})
}

func (s *apiServer) handleStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.daemon.supervisor.Start(r.Context())
	switch {
	case errors.Is(err, supervisor.ErrRenderInProgress):
		s.writeJSON(w, http.StatusConflict, api.MessageResponse{Message: "Render already in progress"})
		return
	case err != nil:
		s.writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.StartResponse{Status: "started", JobID: snap.JobID})
}

func (s *apiServer) handleRenderStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.daemon.supervisor.Status()
	status := api.FromSnapshot(snap)
	if snap.Status == supervisor.StatusError {
		status.Diagnostics = s.daemon.supervisor.Diagnostics()
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	snap := s.daemon.supervisor.Status()
	if err := s.daemon.supervisor.Cancel(); err != nil {
		if errors.Is(err, supervisor.ErrNotRendering) {
			s.writeJSON(w, http.StatusConflict, api.MessageResponse{Message: "No render in progress"})
			return
		}
		s.writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.CancelResponse{Status: "cancelling", JobID: snap.JobID})
}

func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	file, err := os.Open(s.cfg.OutputPath())
	if err != nil {
		s.writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		s.writeError(w, http.StatusNotFound, "Video not found")
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", downloadFileName))
	http.ServeContent(w, r, downloadFileName, info.ModTime(), file)
}

func (s *apiServer) handleTTS(w http.ResponseWriter, r *http.Request) {
	key, err := ttscache.ProxyQueryKey(r.URL.Query(), s.cfg.TTS.DefaultLanguage)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Text is required")
		return
	}
	entry, err := s.daemon.cache.Resolve(r.Context(), key)
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "narration synthesis failed", "tts_failed",
			logging.Error(err),
			logging.String("lang", key.Language),
			logging.Float64("speed", key.Speed),
			logging.String(logging.FieldErrorHint, "check network access to the TTS host and the ffmpeg binary"),
		)
		s.writeError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}

	file, err := os.Open(entry.Path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	if entry.DurationSeconds > 0 {
		w.Header().Set("X-Audio-Duration", strconv.FormatFloat(entry.DurationSeconds, 'f', 3, 64))
	}
	http.ServeContent(w, r, entry.FileName, info.ModTime(), file)
}

func (s *apiServer) handleComposition(w http.ResponseWriter, r *http.Request) {
	props, err := s.daemon.props.Load()
	if err != nil {
		s.writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	comp := timeline.Compose(props, timeline.SettingsFromConfig(s.cfg.Render))
	s.writeJSON(w, http.StatusOK, api.CompositionResponse{Composition: comp})
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := s.daemon.history.List(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.HistoryResponse{Runs: api.FromRuns(runs)})
}

func (s *apiServer) handleHistoryRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.daemon.history.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, services.HTTPStatus(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromRun(run))
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status()
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:       status.Running,
		PID:           status.PID,
		APIBind:       status.APIBind,
		LockFilePath:  status.LockFilePath,
		HistoryDBPath: status.HistoryDBPath,
		LogPath:       status.LogPath,
		Render:        api.FromSnapshot(status.Render),
		Cache: api.CacheStats{
			Dir:     status.Cache.Dir,
			Entries: status.Cache.Entries,
			Bytes:   status.Cache.Bytes,
		},
		Dependencies: api.FromDependencies(status.Dependencies),
	})
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
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
